// Package server initializes and runs the credential server: it wires the
// form issuer, object storage, and the reference origin behind one HTTP
// endpoint and handles graceful shutdown.
package server

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ozolins/attachup/internal/logging"
	"github.com/ozolins/attachup/internal/server/api"
	"github.com/ozolins/attachup/internal/server/config"
	"github.com/ozolins/attachup/internal/server/forms"
	"github.com/ozolins/attachup/internal/server/origin"
	"github.com/ozolins/attachup/internal/server/store"
)

type App struct {
	config *config.Config
	logger logging.Logger
	server *api.HTTPServer
}

func NewApp(c *config.Config) (*App, error) {

	slog := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slog)

	var objects store.ObjectStore
	if c.S3Enabled {
		objects = store.NewS3Store(c)
	} else {
		objects = store.NewMemStore()
	}

	issuer := forms.NewIssuer(c)
	o := origin.NewOrigin(c, issuer, objects, logger)
	srv := api.NewHTTPServer(c, logger, issuer, o)

	return &App{config: c, logger: logger, server: srv}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

}
