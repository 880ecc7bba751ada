package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/ozolins/attachup/internal/flagx"
	"github.com/ozolins/attachup/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
type JsonConfig struct {
	EndpointAddr          string         `json:"endpoint_addr"`
	PublicBaseURL         string         `json:"public_base_url"`
	SecretKey             string         `json:"secret_key"`
	SignSecret            string         `json:"sign_secret"`
	Password              string         `json:"password"`
	TokenValidityDuration timex.Duration `json:"token_validity_duration"`
	CDNNumber             int            `json:"cdn_number"`
	SessionTTL            timex.Duration `json:"session_ttl"`
	S3Enabled             bool           `json:"s3_enabled"`
	S3RootUser            string         `json:"s3_root_user"`
	S3RootPassword        string         `json:"s3_root_password"`
	S3Bucket              string         `json:"s3_bucket"`
	S3Region              string         `json:"s3_region"`
	S3BaseEndpoint        string         `json:"s3_base_endpoint"`
}

// parseJson overlays Config with values loaded from a JSON file selected via
// the -c/-config flags. Intended usage is: defaults -> parseJson ->
// parseFlags, where later stages override earlier ones.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	cfg.EndpointAddr = jc.EndpointAddr
	cfg.PublicBaseURL = jc.PublicBaseURL
	cfg.SecretKey = jc.SecretKey
	cfg.SignSecret = jc.SignSecret
	cfg.Password = jc.Password
	cfg.TokenValidityDuration = time.Duration(jc.TokenValidityDuration.Duration)
	cfg.CDNNumber = jc.CDNNumber
	cfg.SessionTTL = time.Duration(jc.SessionTTL.Duration)
	cfg.S3Enabled = jc.S3Enabled
	cfg.S3RootUser = jc.S3RootUser
	cfg.S3RootPassword = jc.S3RootPassword
	cfg.S3Bucket = jc.S3Bucket
	cfg.S3Region = jc.S3Region
	cfg.S3BaseEndpoint = jc.S3BaseEndpoint
}
