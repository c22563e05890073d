// The planserver command serves the inheritance plan API backed by a local
// sqlite database.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/heirvault/escrow-backend/api/planhandler"
	"github.com/heirvault/escrow-backend/cmd/flags"
	"github.com/heirvault/escrow-backend/httpserver"
	"github.com/heirvault/escrow-backend/plan"
)

var cliFlags = append([]cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for the plan API",
	},
	&cli.StringFlag{
		Name:  "db-path",
		Value: "plans.db",
		Usage: "path to the sqlite plan database",
	},
	flags.LogServiceFlagFn("plan-server"),
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "planserver",
		Usage: "Serve the inheritance plan API",
		Flags: cliFlags,
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String("listen-addr")
			dbPath := cCtx.String("db-path")

			logger := flags.SetupLogger(cCtx)
			cfg := flags.ConfigureServer(cCtx, logger, listenAddr)

			store, err := plan.NewSQLStore(dbPath)
			if err != nil {
				logger.Error("Failed to open plan database", "err", err, "path", dbPath)
				return err
			}
			defer store.Close()

			handler := planhandler.NewHandler(store, logger)
			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server", "db", dbPath)
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
