package main

import (
	"context"
	"log"
	"os"

	"github.com/ozolins/attachup/internal/buildinfo"
	"github.com/ozolins/attachup/internal/client/cli"
	"github.com/ozolins/attachup/internal/client/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
