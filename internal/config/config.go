// Package config loads the restaurant profile: prompt, canned texts and the
// timing windows of the turn pipeline.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultProfile []byte

// Profile is the restaurant-specific configuration of the bot.
type Profile struct {
	BotName        string        `yaml:"bot_name"`
	RestaurantName string        `yaml:"restaurant_name"`
	OperatingHours string        `yaml:"operating_hours"`
	CatalogLink    string        `yaml:"catalog_link"`
	SystemPrompt   string        `yaml:"system_prompt"`
	HistoryWindow  int           `yaml:"history_window"`
	MergeWindow    time.Duration `yaml:"merge_window"`
	ModelTimeout   time.Duration `yaml:"model_timeout"`
	ConfirmButton  string        `yaml:"confirm_button"`
	Throttle       Throttle      `yaml:"throttle"`
	Template       Template      `yaml:"template"`
	Texts          Texts         `yaml:"texts"`
	Branches       []Branch      `yaml:"branches"`

	prompt *template.Template
}

// Throttle configures duplicate and burst suppression.
type Throttle struct {
	SameTextWindow  time.Duration `yaml:"same_text_window"`
	ShortTextWindow time.Duration `yaml:"short_text_window"`
	ShortTextMaxLen int           `yaml:"short_text_max_len"`
}

// Template names the approved confirmation template.
type Template struct {
	Name     string `yaml:"name"`
	Language string `yaml:"language"`
}

// Texts are the fixed customer-facing replies.
type Texts struct {
	Apology        string `yaml:"apology"`
	ConfirmAck     string `yaml:"confirm_ack"`
	NoPendingOrder string `yaml:"no_pending_order"`
}

// Branch seeds the branches table when it is empty.
type Branch struct {
	Name         string `yaml:"name"`
	Location     string `yaml:"location"`
	DeliveryTime string `yaml:"delivery_time"`
}

// Model converts the seed into a store record.
func (b Branch) Model() models.Branch {
	return models.Branch{Name: b.Name, Location: b.Location, DeliveryTime: b.DeliveryTime}
}

// PromptData fills the system prompt template.
type PromptData struct {
	BotName        string
	RestaurantName string
	OperatingHours string
	CatalogLink    string
	CustomerID     string
	Catalog        string
	Branches       string
}

// Default returns the embedded profile.
func Default() (*Profile, error) {
	return parse(nil)
}

// Load returns the embedded profile overlaid with the YAML file at path.
// An empty path yields the embedded profile.
func Load(path string) (*Profile, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", path, err)
	}
	p, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	slog.Info("config.Load: profile loaded", "path", path, "bot_name", p.BotName, "branches", len(p.Branches))
	return p, nil
}

func parse(overlay []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(defaultProfile, &p); err != nil {
		return nil, fmt.Errorf("embedded profile: %w", err)
	}
	if len(overlay) > 0 {
		if err := yaml.Unmarshal(overlay, &p); err != nil {
			return nil, fmt.Errorf("failed to parse profile: %w", err)
		}
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	tmpl, err := template.New("system_prompt").Option("missingkey=error").Parse(p.SystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("invalid system_prompt template: %w", err)
	}
	p.prompt = tmpl
	return &p, nil
}

func (p *Profile) validate() error {
	switch {
	case strings.TrimSpace(p.SystemPrompt) == "":
		return fmt.Errorf("system_prompt must not be empty")
	case p.HistoryWindow <= 0:
		return fmt.Errorf("history_window must be positive, got %d", p.HistoryWindow)
	case p.MergeWindow < 0:
		return fmt.Errorf("merge_window must not be negative")
	case p.ModelTimeout <= 0:
		return fmt.Errorf("model_timeout must be positive")
	case p.Throttle.SameTextWindow < 0 || p.Throttle.ShortTextWindow < 0:
		return fmt.Errorf("throttle windows must not be negative")
	case p.Template.Name == "" || p.Template.Language == "":
		return fmt.Errorf("template name and language are required")
	case p.Texts.Apology == "" || p.Texts.ConfirmAck == "" || p.Texts.NoPendingOrder == "":
		return fmt.Errorf("texts.apology, texts.confirm_ack and texts.no_pending_order are required")
	}
	if p.ConfirmButton == "" {
		p.ConfirmButton = "confirm"
	}
	return nil
}

// RenderSystemPrompt executes the prompt template. Profile fields fill any
// data field left empty.
func (p *Profile) RenderSystemPrompt(data PromptData) (string, error) {
	if data.BotName == "" {
		data.BotName = p.BotName
	}
	if data.RestaurantName == "" {
		data.RestaurantName = p.RestaurantName
	}
	if data.OperatingHours == "" {
		data.OperatingHours = p.OperatingHours
	}
	if data.CatalogLink == "" {
		data.CatalogLink = p.CatalogLink
	}
	var b strings.Builder
	if err := p.prompt.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render system prompt: %w", err)
	}
	return b.String(), nil
}

// IsConfirmButton reports whether text is the confirmation quick reply.
func (p *Profile) IsConfirmButton(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), p.ConfirmButton)
}
