package main

import (
	"context"
	"log"
	"os"

	"github.com/ozolins/attachup/internal/buildinfo"
	"github.com/ozolins/attachup/internal/server"
	"github.com/ozolins/attachup/internal/server/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
