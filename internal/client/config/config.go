package config

import (
	"time"

	"github.com/spf13/pflag"
)

const (
	DefaultChunkSize = 64 << 10
	MaxChunkSize     = 4 << 20
)

// Config holds runtime settings for notesctl.
type Config struct {
	ServerURL      string
	GRPCAddr       string
	RequestTimeout time.Duration
	ChunkSize      int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8000"
	c.GRPCAddr = "127.0.0.1:50051"
	c.RequestTimeout = 30 * time.Second
	c.ChunkSize = DefaultChunkSize
}

// BindFlags registers persistent flags that override c when set.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.ServerURL, "server", "s", c.ServerURL, "base URL of the audionotes server")
	fs.StringVar(&c.GRPCAddr, "grpc-addr", c.GRPCAddr, "address of the gRPC upload endpoint")
	fs.DurationVar(&c.RequestTimeout, "timeout", c.RequestTimeout, "timeout for REST requests")
}

// ChunkSizeOrDefault clamps ChunkSize to (0, MaxChunkSize].
func (c *Config) ChunkSizeOrDefault() int {
	switch {
	case c.ChunkSize <= 0:
		return DefaultChunkSize
	case c.ChunkSize > MaxChunkSize:
		return MaxChunkSize
	default:
		return c.ChunkSize
	}
}

// Resolve loads the file at path, if any, underneath the flags explicitly
// set in fs. fs must be the set passed to BindFlags.
func (c *Config) Resolve(path string, fs *pflag.FlagSet) error {
	if path == "" {
		return nil
	}

	flagged := *c
	if err := c.LoadFile(path); err != nil {
		return err
	}

	if fs.Changed("server") {
		c.ServerURL = flagged.ServerURL
	}
	if fs.Changed("grpc-addr") {
		c.GRPCAddr = flagged.GRPCAddr
	}
	if fs.Changed("timeout") {
		c.RequestTimeout = flagged.RequestTimeout
	}
	return nil
}
