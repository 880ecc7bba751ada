package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/ozolins/attachup/internal/flagx"
	"github.com/ozolins/attachup/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify the timeout either as a string like
// "30s" or as integer nanoseconds.
type JsonConfig struct {
	ServerBaseURL   string         `json:"server_base_url"`
	SocketURL       string         `json:"socket_url"`
	DirectUploadURL string         `json:"direct_upload_url"`
	JournalPath     string         `json:"journal_path"`
	ForcePlain      bool           `json:"force_plain"`
	RequestTimeout  timex.Duration `json:"request_timeout"`
}

// parseJson overlays Config with values loaded from a JSON file selected via
// the -c/-config flags. Missing file path means nothing is loaded. Read or
// unmarshal errors panic; the caller may recover if desired.
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

	cfg.ServerBaseURL = jc.ServerBaseURL
	cfg.SocketURL = jc.SocketURL
	cfg.DirectUploadURL = jc.DirectUploadURL
	cfg.JournalPath = jc.JournalPath
	cfg.ForcePlain = jc.ForcePlain
	cfg.RequestTimeout = time.Duration(jc.RequestTimeout.Duration)
}
