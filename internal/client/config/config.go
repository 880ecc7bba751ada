package config

import "time"

// Config holds runtime settings for the attachup CLI.
//
// Fields:
//   - ServerBaseURL: HTTP base URL of the credential server (plain channel).
//   - SocketURL: websocket URL of the credential server (socket channel).
//   - DirectUploadURL: storage endpoint v2 multipart uploads are POSTed to.
//   - JournalPath: SQLite file holding the local upload journal.
//   - ForcePlain: skip the socket channel and use plain HTTP only.
//   - RequestTimeout: per-request timeout for credential fetches.
type Config struct {
	ServerBaseURL   string
	SocketURL       string
	DirectUploadURL string
	JournalPath     string
	ForcePlain      bool
	RequestTimeout  time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerBaseURL = "http://127.0.0.1:8080"
	c.SocketURL = "ws://127.0.0.1:8080/v1/ws"
	c.DirectUploadURL = "http://127.0.0.1:8080/v1/attachments/upload"
	c.JournalPath = "journal.db"
	c.ForcePlain = false
	c.RequestTimeout = 30 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
