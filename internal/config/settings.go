// Package config reads the optional operator settings file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	DefaultCreator    = "songapi"
	DefaultDailyLimit = 50
)

// Settings mirrors settings.json. JSON files are read with the YAML decoder.
type Settings struct {
	API APISettings `yaml:"apiSettings" toml:"apiSettings"`
}

// APISettings holds the operator identity and the per-client daily limit.
type APISettings struct {
	Creator string `yaml:"creator" toml:"creator"`
	Limit   int    `yaml:"limit" toml:"limit"`
}

// Defaults returns the settings used when no file is configured.
func Defaults() Settings {
	return Settings{API: APISettings{Creator: DefaultCreator, Limit: DefaultDailyLimit}}
}

// Load reads path and fills unset fields from Defaults. An empty path yields Defaults.
func Load(path string) (Settings, error) {
	if strings.TrimSpace(path) == "" {
		return Defaults(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: read %s: %w", path, err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes data according to ext (".json", ".yaml", ".yml" or ".toml").
func Parse(data []byte, ext string) (Settings, error) {
	var s Settings
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
			return Settings{}, fmt.Errorf("settings: decode toml: %w", err)
		}
	case ".json", ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, fmt.Errorf("settings: decode %s: %w", strings.TrimPrefix(ext, "."), err)
		}
	default:
		return Settings{}, fmt.Errorf("settings: unsupported format %q", ext)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	def := Defaults()
	if strings.TrimSpace(s.API.Creator) == "" {
		s.API.Creator = def.API.Creator
	}
	if s.API.Limit == 0 {
		s.API.Limit = def.API.Limit
	}
	return s, nil
}

// Validate rejects values no limiter can honor.
func (s Settings) Validate() error {
	if s.API.Limit < 0 {
		return fmt.Errorf("settings: apiSettings.limit must not be negative, got %d", s.API.Limit)
	}
	return nil
}
