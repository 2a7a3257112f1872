package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/audionotes/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is a DTO used exclusively for file unmarshalling.
type FileConfig struct {
	ServerURL      string         `json:"server_url" yaml:"server_url"`
	GRPCAddr       string         `json:"grpc_addr" yaml:"grpc_addr"`
	RequestTimeout timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	ChunkSize      int            `json:"chunk_size" yaml:"chunk_size"`
}

// LoadFile overlays c with the non-zero values found in path. YAML is used
// for .yaml and .yml files, JSON otherwise.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if fc.ServerURL != "" {
		c.ServerURL = fc.ServerURL
	}
	if fc.GRPCAddr != "" {
		c.GRPCAddr = fc.GRPCAddr
	}
	if fc.RequestTimeout.IsSet() {
		c.RequestTimeout = fc.RequestTimeout.Duration
	}
	if fc.ChunkSize != 0 {
		c.ChunkSize = fc.ChunkSize
	}
	return nil
}
