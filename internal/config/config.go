package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Log       LogConfig        `yaml:"log"`
	Client    ClientConfig     `yaml:"client"`
	Namenode  NamenodeConfig   `yaml:"namenode"`
	Database  DatabaseConfig   `yaml:"database"`
	Datanodes []DatanodeConfig `yaml:"datanodes"`
}

func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads a YAML config, expanding ${VAR} references first, then applies
// env overrides and defaults.
func Load(configPath string) (*Config, error) {
	const op = "config.Load"

	if configPath == "" {
		return nil, fmt.Errorf("%s: config path is empty", op)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: config file does not exist: %s", op, configPath)
		}
		return nil, fmt.Errorf("%s: failed to read config file: %w", op, err)
	}

	// Enrich with env variables
	data = expandEnvVars(data)

	var cfg Config
	if err := cleanenv.ParseYAML(bytes.NewReader(data), &cfg); err != nil {
		return nil, fmt.Errorf("%s: cannot parse config: %w", op, err)
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("%s: cannot read env: %w", op, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

// sectorSize is the block-protocol sector. Reflex nodes accept writes only
// at sector boundaries, so client transfers are sized in whole sectors.
const sectorSize = 512

func (c *Config) Validate() error {
	if c.Client.BufferSize <= 0 {
		return fmt.Errorf("client.buffer_size must be positive, got %d", c.Client.BufferSize)
	}
	if c.Client.BufferSize%sectorSize != 0 {
		return fmt.Errorf("client.buffer_size must be a multiple of %d, got %d", sectorSize, c.Client.BufferSize)
	}
	for i, dn := range c.Datanodes {
		if dn.Address == "" {
			return fmt.Errorf("datanodes[%d]: address is empty", i)
		}
		if dn.Kind != DatanodeKindNaRPC && dn.Kind != DatanodeKindReflex {
			return fmt.Errorf("datanodes[%d]: unknown kind %q", i, dn.Kind)
		}
		if (dn.Kind == DatanodeKindNaRPC) != (dn.StorageClass == 0) {
			return fmt.Errorf("datanodes[%d]: kind %q does not match storage class %d", i, dn.Kind, dn.StorageClass)
		}
	}
	return nil
}

func expandEnvVars(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
