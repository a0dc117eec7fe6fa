package config

import (
	"encoding/json"
	"os"

	"github.com/dkravets/chanfile/internal/flagx"
)

// JsonConfig is the DTO for JSON configuration files. Only fields present
// in the file override the running config, so a file may set just the
// backend credentials and leave the transfer tuning at its defaults.
type JsonConfig struct {
	DownloadPageSize *int    `json:"download_page_size"`
	UploadPageSize   *int    `json:"upload_page_size"`
	MinBufferSize    *uint64 `json:"min_buffer_size"`
	MaxUploadParts   *int    `json:"max_upload_parts"`
	Channel          *string `json:"channel"`
	S3User           *string `json:"s3_user"`
	S3Password       *string `json:"s3_password"`
	S3Bucket         *string `json:"s3_bucket"`
	S3Region         *string `json:"s3_region"`
	S3BaseEndpoint   *string `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c/-config flags; when
// neither is set, nothing is loaded. An unreadable or invalid file panics,
// matching the flag parser's failure mode.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.DownloadPageSize != nil {
		config.DownloadPageSize = *c.DownloadPageSize
	}
	if c.UploadPageSize != nil {
		config.UploadPageSize = *c.UploadPageSize
	}
	if c.MinBufferSize != nil {
		config.MinBufferSize = *c.MinBufferSize
	}
	if c.MaxUploadParts != nil {
		config.MaxUploadParts = *c.MaxUploadParts
	}
	if c.Channel != nil {
		config.Channel = *c.Channel
	}
	if c.S3User != nil {
		config.S3User = *c.S3User
	}
	if c.S3Password != nil {
		config.S3Password = *c.S3Password
	}
	if c.S3Bucket != nil {
		config.S3Bucket = *c.S3Bucket
	}
	if c.S3Region != nil {
		config.S3Region = *c.S3Region
	}
	if c.S3BaseEndpoint != nil {
		config.S3BaseEndpoint = *c.S3BaseEndpoint
	}
}
