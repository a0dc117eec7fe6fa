// Package config handles configuration for the chanfile CLI and transfer
// pipelines, including defaults, JSON overlay, and command-line flags.
package config

import "github.com/dkravets/chanfile/internal/common"

// Config holds runtime settings for chanfile.
//
// Fields:
//   - DownloadPageSize / UploadPageSize: backend transfer unit per
//     direction. Both default to the backend page size; they may be tuned
//     independently.
//   - MinBufferSize: objects below this size stay memory-resident instead
//     of being pushed to the backend page-by-page.
//   - MaxUploadParts: fallback pages-per-object cap when the backend does
//     not report its own.
//   - Channel: default target channel for uploads.
//   - S3User / S3Password: credentials for the S3-compatible backend.
//   - S3Bucket / S3Region / S3BaseEndpoint: object storage settings.
type Config struct {
	DownloadPageSize int
	UploadPageSize   int
	MinBufferSize    uint64
	MaxUploadParts   int
	Channel          string
	S3User           string
	S3Password       string
	S3Bucket         string
	S3Region         string
	S3BaseEndpoint   string
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: The S3 credentials are insecure and must be overridden outside dev.
func (c *Config) LoadDefaults() {
	c.DownloadPageSize = common.PageSize
	c.UploadPageSize = common.PageSize
	c.MinBufferSize = 10 * common.PageSize
	c.MaxUploadParts = 4000
	c.Channel = "media"
	c.S3User = "admin"
	c.S3Password = "secretpassword"
	c.S3Bucket = "chanfile"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
