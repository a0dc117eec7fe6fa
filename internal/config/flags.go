package config

import (
	"flag"
	"os"

	"github.com/dkravets/chanfile/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-n string   target channel for uploads
//	-u string   S3 user
//	-p string   S3 password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-dps int    download page size, bytes
//	-ups int    upload page size, bytes
//	-mbs int    minimum buffering threshold, bytes
//	-mup int    fallback pages-per-object cap
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with subcommand arguments.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:],
		[]string{"-n", "-u", "-p", "-b", "-g", "-e", "-dps", "-ups", "-mbs", "-mup"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.Channel, "n", config.Channel, "target channel")
	fs.StringVar(&config.S3User, "u", config.S3User, "S3 user")
	fs.StringVar(&config.S3Password, "p", config.S3Password, "S3 password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.IntVar(&config.DownloadPageSize, "dps", config.DownloadPageSize, "download page size (bytes)")
	fs.IntVar(&config.UploadPageSize, "ups", config.UploadPageSize, "upload page size (bytes)")
	minBuffer := fs.Int64("mbs", int64(config.MinBufferSize), "minimum buffering threshold (bytes)")
	fs.IntVar(&config.MaxUploadParts, "mup", config.MaxUploadParts, "fallback pages-per-object cap")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if *minBuffer >= 0 {
		config.MinBufferSize = uint64(*minBuffer)
	}
}
