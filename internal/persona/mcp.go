package persona

import (
	"context"
	"fmt"
	"slices"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/comigor/portfolio-chat/internal/config"
	"github.com/comigor/portfolio-chat/internal/logger"
)

// PromptClient is the subset of an MCP client used to read knowledge prompts.
type PromptClient interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListPrompts(ctx context.Context, req mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error)
	GetPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error)
	Close() error
}

// Dialer connects to one configured MCP server.
type Dialer func(ctx context.Context, cfg config.MCPServerConfig) (PromptClient, error)

// Dial creates and starts an mcp-go client for the configured transport.
func Dial(ctx context.Context, serverCfg config.MCPServerConfig) (PromptClient, error) {
	var (
		mcpC *client.Client
		err  error
	)

	switch serverCfg.Type {
	case config.ClientTypeSSE:
		var sseOpts []transport.ClientOption
		if len(serverCfg.Headers) > 0 {
			sseOpts = append(sseOpts, transport.WithHeaders(serverCfg.Headers))
		}
		mcpC, err = client.NewSSEMCPClient(serverCfg.URL, sseOpts...)
	case config.ClientTypeStreamableHTTP:
		var httpOpts []transport.StreamableHTTPCOption
		if len(serverCfg.Headers) > 0 {
			httpOpts = append(httpOpts, transport.WithHTTPHeaders(serverCfg.Headers))
		}
		mcpC, err = client.NewStreamableHttpClient(serverCfg.URL, httpOpts...)
	case config.ClientTypeStdio:
		var env []string
		for k, v := range serverCfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		// Stdio clients start their subprocess on creation.
		mcpC, err = client.NewStdioMCPClient(serverCfg.Command, env, serverCfg.Args...)
		if err != nil {
			return nil, err
		}
		return mcpC, nil
	default:
		return nil, fmt.Errorf("unsupported MCP server type %q (want sse, streamable_http or stdio)", serverCfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := mcpC.Start(ctx); err != nil {
		if cerr := mcpC.Close(); cerr != nil {
			logger.L.Warn("MCP client close error after start failure", "error", cerr)
		}
		return nil, fmt.Errorf("start transport: %w", err)
	}
	return mcpC, nil
}

// DiscoverPrompts asks every server for its first argument-less prompt and
// returns the assistant text of each, in server order. Clients are closed
// afterwards; failing servers are skipped.
func DiscoverPrompts(ctx context.Context, servers []config.MCPServerConfig, dial Dialer) []string {
	if dial == nil {
		dial = Dial
	}

	var found []string
	for _, serverCfg := range servers {
		c, err := dial(ctx, serverCfg)
		if err != nil {
			logger.L.Error("Failed to create MCP client", "name", serverCfg.Name, "error", err)
			continue
		}
		text, err := firstPromptText(ctx, c)
		if cerr := c.Close(); cerr != nil {
			logger.L.Warn("MCP client close error", "name", serverCfg.Name, "error", cerr)
		}
		if err != nil {
			logger.L.Warn("MCP knowledge discovery failed", "name", serverCfg.Name, "error", err)
			continue
		}
		if text == "" {
			logger.L.Debug("MCP server offered no knowledge prompt", "name", serverCfg.Name)
			continue
		}
		logger.L.Info("Discovered knowledge prompt from MCP server", "name", serverCfg.Name, "chars", len(text))
		found = append(found, text)
	}
	return found
}

func firstPromptText(ctx context.Context, c PromptClient) (string, error) {
	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      mcp.Implementation{Name: "portfolio-chat", Version: "1"},
			Capabilities:    mcp.ClientCapabilities{},
		},
	}
	initResult, err := c.Initialize(ctx, initReq)
	if err != nil {
		return "", fmt.Errorf("initialize: %w", err)
	}
	if initResult == nil || initResult.Capabilities.Prompts == nil {
		return "", nil
	}

	prompts, err := c.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return "", fmt.Errorf("list prompts: %w", err)
	}
	if prompts == nil {
		return "", nil
	}

	indexFirst := slices.IndexFunc(prompts.Prompts, func(p mcp.Prompt) bool {
		return len(p.Arguments) == 0
	})
	if indexFirst == -1 {
		return "", nil
	}

	prompt, err := c.GetPrompt(ctx, mcp.GetPromptRequest{
		Params: mcp.GetPromptParams{Name: prompts.Prompts[indexFirst].Name},
	})
	if err != nil {
		return "", fmt.Errorf("get prompt: %w", err)
	}
	if prompt == nil {
		return "", nil
	}

	indexAssistantMsg := slices.IndexFunc(prompt.Messages, func(m mcp.PromptMessage) bool {
		return m.Role == "assistant"
	})
	if indexAssistantMsg == -1 {
		return "", nil
	}
	if content, ok := prompt.Messages[indexAssistantMsg].Content.(mcp.TextContent); ok {
		return content.Text, nil
	}
	return "", nil
}
