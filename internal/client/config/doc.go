// Package config loads runtime configuration for the notesctl client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON or YAML file passed with --config (see (*Config).LoadFile).
//  3. Command-line flags bound with (*Config).BindFlags.
//
// # File schema
//
// Durations use timex.Duration, so they can be strings like "30s" or
// integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8000",
//	  "grpc_addr": "127.0.0.1:50051",
//	  "request_timeout": "30s",
//	  "chunk_size": 65536
//	}
package config
