package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/arcticchat/internal/buildinfo"
	"github.com/dmitrijs2005/arcticchat/internal/server"
	"github.com/dmitrijs2005/arcticchat/internal/server/config"
	"github.com/joho/godotenv"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	// A missing .env is fine; the environment and flags still apply.
	_ = godotenv.Load()

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
