// Package cli implements the interactive attachup client: a small REPL that
// logs in, uploads attachments over the v2 or v3 protocol, and lists the
// local upload journal.
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/ozolins/attachup/internal/client/attachment"
	"github.com/ozolins/attachup/internal/client/channel"
	"github.com/ozolins/attachup/internal/client/config"
	"github.com/ozolins/attachup/internal/client/journal"
	"github.com/ozolins/attachup/internal/logging"

	_ "modernc.org/sqlite"
)

type App struct {
	config *config.Config
	logger logging.Logger
	reader *bufio.Reader
	out    io.Writer

	db      *sql.DB
	journal journal.Repository

	httpClient *http.Client
	token      string
	sock       *channel.WSChannel
	uploader   *attachment.Uploader
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	return NewAppWithIO(c, logger, os.Stdin, os.Stdout)
}

// NewAppWithIO wires the app against explicit streams, used by tests.
func NewAppWithIO(c *config.Config, logger logging.Logger, in io.Reader, out io.Writer) (*App, error) {
	db, repo, err := journal.InitDatabase(context.Background(), c.JournalPath)
	if err != nil {
		return nil, err
	}

	return &App{
		config:     c,
		logger:     logger,
		reader:     bufio.NewReader(in),
		out:        out,
		db:         db,
		journal:    repo,
		httpClient: &http.Client{Timeout: c.RequestTimeout},
	}, nil
}

func (a *App) isLoggedIn() bool {
	return a.token != ""
}

func (a *App) Run(ctx context.Context) {
	defer a.Close()
	a.Root(ctx)
}

func (a *App) Close() {
	if a.sock != nil {
		a.sock.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
