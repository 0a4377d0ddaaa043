// Package config loads the daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/simcore/internal/core/observability/log"
	"github.com/zeusync/simcore/internal/core/world"
	"github.com/zeusync/simcore/internal/server"
)

type Config struct {
	World  world.Config  `yaml:"world"`
	Log    log.Config    `yaml:"log"`
	Server server.Config `yaml:"server"`
}

func Default() Config {
	return Config{
		World:  world.DefaultConfig(),
		Log:    log.DefaultConfig(),
		Server: server.DefaultServerConfig(),
	}
}

// Load decodes YAML from r over Default, so omitted keys keep their defaults.
// Unknown keys are rejected.
func Load(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	cfg, err := Load(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	errs = append(errs, c.World.Validate(), c.Server.Validate())
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	switch c.Log.Encoding {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log: unknown encoding %q", c.Log.Encoding))
	}
	return errors.Join(errs...)
}
