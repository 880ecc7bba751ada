package config

import (
	"flag"
	"os"

	"github.com/ozolins/attachup/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   bind address for the HTTP endpoint
//	-b string   public base URL
//	-k string   JWT signing secret
//	-s          store objects in S3-compatible storage
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-b", "-k", "-s"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.EndpointAddr, "a", cfg.EndpointAddr, "address and port to bind")
	fs.StringVar(&cfg.PublicBaseURL, "b", cfg.PublicBaseURL, "public base URL")
	fs.StringVar(&cfg.SecretKey, "k", cfg.SecretKey, "JWT signing secret")
	fs.BoolVar(&cfg.S3Enabled, "s", cfg.S3Enabled, "use S3-compatible object storage")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
