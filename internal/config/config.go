// Package config loads project configuration for the build cache. Both the
// current kiln.yaml format and the legacy build.yaml format decode into one
// typed Config with enumerated keys; unknown keys and bad values fail at
// load time, not at point of use.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jward/kiln/internal/checksum"
)

// FileName is the current project config file.
const FileName = "kiln.yaml"

// LegacyFileName is the older format, migrated on load when kiln.yaml is
// absent.
const LegacyFileName = "build.yaml"

// Config is the typed project configuration.
type Config struct {
	Name          string            `yaml:"name,omitempty"`
	Version       string            `yaml:"version,omitempty"`
	SourcesFolder string            `yaml:"sources_folder,omitempty"`
	CacheFolder   string            `yaml:"cache_folder,omitempty"`
	Exclude       []string          `yaml:"exclude,omitempty"`
	Algorithm     string            `yaml:"checksum_algorithm,omitempty"`
	Compilers     map[string]string `yaml:"compilers,omitempty"` // extension → compile script name
	Workers       int               `yaml:"workers,omitempty"`
}

// Default returns a config with every defaultable field populated.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.SourcesFolder == "" {
		c.SourcesFolder = "src"
	}
	if c.CacheFolder == "" {
		c.CacheFolder = ".kiln"
	}
	if c.Algorithm == "" {
		c.Algorithm = checksum.DefaultAlgorithm
	}
	if c.Compilers == nil {
		c.Compilers = map[string]string{".src": "src"}
	}
}

// validate rejects values that would only blow up mid-build.
func (c *Config) validate() error {
	if !checksum.Supported(c.Algorithm) {
		return fmt.Errorf("config: unsupported checksum_algorithm %q", c.Algorithm)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must be >= 0, got %d", c.Workers)
	}
	for ext, script := range c.Compilers {
		if len(ext) < 2 || ext[0] != '.' {
			return fmt.Errorf("config: compiler extension %q must start with '.'", ext)
		}
		if script == "" {
			return fmt.Errorf("config: compiler for %q names no script", ext)
		}
	}
	return nil
}

// Load reads the project config from dir. Resolution order: kiln.yaml,
// then a migrated build.yaml, then defaults. The result is always
// validated.
func Load(dir string) (*Config, error) {
	current := filepath.Join(dir, FileName)
	if data, err := os.ReadFile(current); err == nil {
		return parse(data)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", current, err)
	}

	legacy := filepath.Join(dir, LegacyFileName)
	if data, err := os.ReadFile(legacy); err == nil {
		return migrateLegacy(data)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", legacy, err)
	}

	return Default(), nil
}

// parse decodes the current format. Unknown keys are errors.
func parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: %w", FileName, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// legacyConfig is the old build.yaml shape: folders nested under a mapping,
// excludes called "ignore", compiler routing under "toolchain". It exists
// only to be migrated; nothing else reads it.
type legacyConfig struct {
	Project string `yaml:"project,omitempty"`
	Version string `yaml:"version,omitempty"`
	Folders struct {
		Sources string `yaml:"sources,omitempty"`
		Cache   string `yaml:"cache,omitempty"`
	} `yaml:"folders,omitempty"`
	Ignore    []string `yaml:"ignore,omitempty"`
	Toolchain struct {
		Checksum  string            `yaml:"checksum,omitempty"`
		Compilers map[string]string `yaml:"compilers,omitempty"`
	} `yaml:"toolchain,omitempty"`
}

// migrateLegacy maps the legacy keys onto Config field by field and then
// validates like any other load.
func migrateLegacy(data []byte) (*Config, error) {
	legacy := &legacyConfig{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(legacy); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: %w", LegacyFileName, err)
	}

	cfg := &Config{
		Name:          legacy.Project,
		Version:       legacy.Version,
		SourcesFolder: legacy.Folders.Sources,
		CacheFolder:   legacy.Folders.Cache,
		Exclude:       legacy.Ignore,
		Algorithm:     legacy.Toolchain.Checksum,
		Compilers:     legacy.Toolchain.Compilers,
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config in the current format.
func (c *Config) Save(dir string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
