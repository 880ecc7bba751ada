// Package config handles configuration for the server component,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the attachup server.
//
// Fields:
//   - EndpointAddr: bind address for the public HTTP endpoint.
//   - PublicBaseURL: externally reachable base URL, used to build signed
//     session-open locations.
//   - SecretKey: HMAC secret for signing JWTs (HS256). Do not use test defaults in prod.
//   - SignSecret: HMAC secret for upload policies and signed URLs.
//   - Password: shared login password for issuing tokens.
//   - TokenValidityDuration: access token lifetime.
//   - CDNNumber: CDN generation advertised in v3 forms.
//   - SessionTTL: how long an idle resumable session is kept before GC.
//   - S3Enabled: store completed objects in S3-compatible storage instead of memory.
//   - S3RootUser / S3RootPassword: credentials for the S3-compatible backend.
//   - S3Bucket / S3Region / S3BaseEndpoint: object storage settings.
type Config struct {
	EndpointAddr          string
	PublicBaseURL         string
	SecretKey             string
	SignSecret            string
	Password              string
	TokenValidityDuration time.Duration
	CDNNumber             int
	SessionTTL            time.Duration
	S3Enabled             bool
	S3RootUser            string
	S3RootPassword        string
	S3Bucket              string
	S3Region              string
	S3BaseEndpoint        string
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddr = ":8080"
	c.PublicBaseURL = "http://127.0.0.1:8080"
	c.SecretKey = "secretKey"
	c.SignSecret = "signSecret"
	c.Password = "password"
	c.TokenValidityDuration = 15 * time.Minute
	c.CDNNumber = 3
	c.SessionTTL = 24 * time.Hour
	c.S3Enabled = false
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "attachments"
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
