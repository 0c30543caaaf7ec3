// Command mailstackd is the long-lived server process: REST + MCP
// (stdio proxy's HTTP backend, JSON-RPC, SSE) plus the in-process sync
// poll loop and outbox worker, grounded on the teacher's main.go
// command-dispatch shape with the dropped migrate/database commands
// (no Postgres in this module — see DESIGN.md) replaced by the single
// "server" action urfave/cli wires up directly.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/customeros/mailstack/config"
	"github.com/customeros/mailstack/server"
)

func main() {
	app := &cli.App{
		Name:  "mailstackd",
		Usage: "multi-account IMAP client engine: REST API + MCP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rest-port",
				Usage:   "override REST_PORT for this run",
				EnvVars: []string{"REST_PORT"},
			},
		},
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
		log.Printf("mailstackd: %v", err)
		os.Exit(1)
	}
}

func runServer(c *cli.Context) error {
	cfg, err := config.InitConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}
	if port := c.String("rest-port"); port != "" {
		cfg.AppConfig.RestPort = port
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("server setup failed: %w", err)
	}

	if err := srv.Run(); err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}
	return nil
}
