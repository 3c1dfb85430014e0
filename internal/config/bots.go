package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// BotCredential is one credentialed identity the backend can speak to the
// chat surface as.
type BotCredential struct {
	Name   string `yaml:"name"`
	AppID  string `yaml:"app_id"`
	Token  string `yaml:"token"`
	Secret string `yaml:"secret,omitempty"`
}

// Bots holds every configured bot identity. It is loaded once at startup and
// passed into constructors; nothing reads it from a global.
type Bots struct {
	Default string          `yaml:"default"`
	Bots    []BotCredential `yaml:"bots"`
}

func LoadBots(path string) (Bots, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Bots{}, fmt.Errorf("read bots config: %w", err)
	}
	var cfg Bots
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Bots{}, fmt.Errorf("parse bots config: %w", err)
	}
	if len(cfg.Bots) == 0 {
		return Bots{}, fmt.Errorf("bots config %s declares no bots", path)
	}
	if strings.TrimSpace(cfg.Default) == "" {
		cfg.Default = cfg.Bots[0].Name
	}
	return cfg, nil
}

// Get resolves a bot by name, falling back to the default identity when name
// is empty or unknown.
func (b Bots) Get(name string) (BotCredential, bool) {
	name = strings.TrimSpace(name)
	for _, c := range b.Bots {
		if c.Name == name {
			return c, true
		}
	}
	for _, c := range b.Bots {
		if c.Name == b.Default {
			return c, name == ""
		}
	}
	return BotCredential{}, false
}
