package config

import (
	"flag"
	"os"
	"strings"

	"github.com/dmitrijs2005/audionotes/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string   HTTP bind address (e.g. ":8000")
//	-r string   gRPC bind address (e.g. ":50051")
//	-t string   database driver (postgres, sqlite)
//	-d string   database DSN
//	-o string   object store driver (s3, minio)
//	-e string   S3 endpoint
//	-b string   S3 bucket
//	-g string   S3 region
//	-u string   S3 access key
//	-p string   S3 secret key
//	-k string   Kafka brokers, comma separated
//	-q string   Redis address
//	-l string   log level
//	-m duration metadata timeout
//	-w duration chunk timeout
//
// Arguments are filtered with flagx.FilterArgs first so foreign flags such
// as -c do not break parsing.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-r", "-t", "-d", "-o", "-e", "-b", "-g", "-u", "-p", "-k", "-q", "-l", "-m", "-w",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port")
	fs.StringVar(&config.GRPCAddr, "r", config.GRPCAddr, "gRPC address and port")
	fs.StringVar(&config.DatabaseDriver, "t", config.DatabaseDriver, "database driver (postgres, sqlite)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.StorageDriver, "o", config.StorageDriver, "object store driver (s3, minio)")
	fs.StringVar(&config.S3Endpoint, "e", config.S3Endpoint, "S3 endpoint")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3AccessKey, "u", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "p", config.S3SecretKey, "S3 secret key")
	brokers := fs.String("k", strings.Join(config.KafkaBrokers, ","), "Kafka brokers, comma separated")
	fs.StringVar(&config.RedisAddr, "q", config.RedisAddr, "Redis address")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level (debug, info, warn, error)")
	fs.DurationVar(&config.MetadataTimeout, "m", config.MetadataTimeout, "upload metadata timeout")
	fs.DurationVar(&config.ChunkTimeout, "w", config.ChunkTimeout, "upload chunk idle timeout")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.KafkaBrokers = splitList(*brokers)
}
