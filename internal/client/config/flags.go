package config

import (
	"flag"
	"os"
	"time"

	"github.com/ozolins/attachup/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-s string   HTTP base URL of the credential server
//	-w string   websocket URL of the credential server
//	-u string   v2 direct upload endpoint
//	-j string   path to the local upload journal
//	-p          force the plain HTTP channel (skip the socket)
//	-t int      request timeout in seconds
//
// Note: The function filters os.Args to only include the flags it knows
// about, using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-s", "-w", "-u", "-j", "-p", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerBaseURL, "s", cfg.ServerBaseURL, "credential server base URL")
	fs.StringVar(&cfg.SocketURL, "w", cfg.SocketURL, "credential server websocket URL")
	fs.StringVar(&cfg.DirectUploadURL, "u", cfg.DirectUploadURL, "v2 direct upload endpoint")
	fs.StringVar(&cfg.JournalPath, "j", cfg.JournalPath, "upload journal path")
	fs.BoolVar(&cfg.ForcePlain, "p", cfg.ForcePlain, "force plain HTTP channel")
	requestTimeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
}
