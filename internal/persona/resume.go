package persona

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Resume is the structured form of a knowledge file.
type Resume struct {
	Name       string       `yaml:"name"`
	Title      string       `yaml:"title"`
	Tagline    string       `yaml:"tagline"`
	Location   string       `yaml:"location"`
	Timezone   string       `yaml:"timezone"`
	Email      string       `yaml:"email"`
	Website    string       `yaml:"website"`
	Philosophy string       `yaml:"philosophy"`
	Social     []Link       `yaml:"social"`
	Education  []Education  `yaml:"education"`
	Experience []Experience `yaml:"experience"`
	Projects   []Project    `yaml:"projects"`
	Skills     []SkillGroup `yaml:"skills"`
	Expertise  []string     `yaml:"expertise"`
}

type Link struct {
	Label string `yaml:"label"`
	URL   string `yaml:"url"`
}

type Education struct {
	Institution string `yaml:"institution"`
	Degree      string `yaml:"degree"`
	Status      string `yaml:"status"`
	Description string `yaml:"description"`
}

type Experience struct {
	Company    string   `yaml:"company"`
	Role       string   `yaml:"role"`
	Type       string   `yaml:"type"`
	Duration   string   `yaml:"duration"`
	Highlights []string `yaml:"highlights"`
}

type Project struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	LiveURL      string   `yaml:"live_url"`
	GithubURL    string   `yaml:"github_url"`
	Status       string   `yaml:"status"`
	Technologies []string `yaml:"technologies"`
}

type SkillGroup struct {
	Category string   `yaml:"category"`
	Items    []string `yaml:"items"`
}

// ParseResume decodes YAML, rejecting unknown fields.
func ParseResume(data []byte) (*Resume, error) {
	var r Resume
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("persona: parse resume: %w", err)
	}
	return &r, nil
}

// LoadKnowledgeFile reads a knowledge file. YAML files are parsed as a
// Resume and rendered; anything else is used verbatim.
func LoadKnowledgeFile(path string) (string, *Resume, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("persona: read knowledge file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		r, err := ParseResume(data)
		if err != nil {
			return "", nil, err
		}
		return r.Render(), r, nil
	default:
		return strings.TrimSpace(string(data)), nil, nil
	}
}

// Render formats the resume as sectioned plain text for the model.
func (r *Resume) Render() string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}
	field := func(label, value string) {
		if value != "" {
			line("%s: %s", label, value)
		}
	}

	line("=== RESUME OF %s ===", strings.ToUpper(r.Name))
	field("Title", r.Title)
	field("Tagline", r.Tagline)
	if r.Location != "" {
		if r.Timezone != "" {
			line("Location: %s (%s)", r.Location, r.Timezone)
		} else {
			line("Location: %s", r.Location)
		}
	}
	field("Email", r.Email)
	field("Website", r.Website)
	field("Philosophy", r.Philosophy)

	if len(r.Social) > 0 {
		line("\n--- SOCIAL LINKS ---")
		for _, l := range r.Social {
			line("  %s: %s", l.Label, l.URL)
		}
	}

	if len(r.Education) > 0 {
		line("\n--- EDUCATION ---")
		for _, e := range r.Education {
			line("  %s at %s", e.Degree, e.Institution)
			if e.Status != "" {
				line("  Status: %s", e.Status)
			}
			if e.Description != "" {
				line("  %s", e.Description)
			}
		}
	}

	if len(r.Experience) > 0 {
		line("\n--- PROFESSIONAL EXPERIENCE ---")
		for _, e := range r.Experience {
			if e.Type != "" {
				line("  %s at %s (%s)", e.Role, e.Company, e.Type)
			} else {
				line("  %s at %s", e.Role, e.Company)
			}
			if e.Duration != "" {
				line("  Duration: %s", e.Duration)
			}
			for _, h := range e.Highlights {
				line("    • %s", h)
			}
		}
	}

	if len(r.Projects) > 0 {
		line("\n--- PROJECTS ---")
		for _, p := range r.Projects {
			if p.Status != "" {
				line("  %s [%s]", p.Name, p.Status)
			} else {
				line("  %s", p.Name)
			}
			if p.Description != "" {
				line("  %s", p.Description)
			}
			if p.LiveURL != "" {
				line("  Live: %s", p.LiveURL)
			}
			if p.GithubURL != "" {
				line("  GitHub: %s", p.GithubURL)
			}
			if len(p.Technologies) > 0 {
				line("  Tech: %s", strings.Join(p.Technologies, ", "))
			}
		}
	}

	if len(r.Skills) > 0 {
		line("\n--- TECHNICAL SKILLS ---")
		for _, s := range r.Skills {
			line("  %s: %s", s.Category, strings.Join(s.Items, ", "))
		}
	}

	if len(r.Expertise) > 0 {
		line("\n--- AREAS OF EXPERTISE ---")
		for _, e := range r.Expertise {
			line("  • %s", e)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
