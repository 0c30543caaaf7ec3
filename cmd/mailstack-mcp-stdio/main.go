// Command mailstack-mcp-stdio is the stdio MCP transport: a pure
// line-in/line-out JSON-RPC proxy to the HTTP MCP endpoint, for desktop
// MCP clients that only speak stdio. Grounded directly on
// original_source/src/bin/mcp_stdio.rs's "read line, forward to backend
// API, write response line" loop; all protocol handling lives in
// internal/mcp.Proxy, this binary only wires environment/flags to it.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/customeros/mailstack/internal/mcp"
)

func main() {
	app := &cli.App{
		Name:  "mailstack-mcp-stdio",
		Usage: "proxy MCP stdio JSON-RPC to the mailstackd HTTP backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "backend-url",
				Usage:    "base URL of the running mailstackd MCP backend",
				EnvVars:  []string{"MCP_BACKEND_URL"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "API key the backend expects on X-API-Key",
				EnvVars: []string{"MAILSTACK_API_KEY"},
			},
			&cli.IntFlag{
				Name:    "timeout-seconds",
				Usage:   "per-request timeout against the backend",
				EnvVars: []string{"MCP_TIMEOUT"},
				Value:   30,
			},
		},
		Action: runProxy,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "mailstack-mcp-stdio: %v\n", err)
		os.Exit(1)
	}
}

func runProxy(c *cli.Context) error {
	backendURL := c.String("backend-url")
	if backendURL == "" {
		return fmt.Errorf("MCP_BACKEND_URL (or --backend-url) is required")
	}

	proxy := mcp.NewProxy(
		backendURL,
		c.String("api-key"),
		time.Duration(c.Int("timeout-seconds"))*time.Second,
		os.Stdout,
		os.Stderr,
	)

	fmt.Fprintf(os.Stderr, "mailstack-mcp-stdio: proxying to %s\n", backendURL)
	if err := proxy.Run(os.Stdin); err != nil {
		return fmt.Errorf("stdio loop: %w", err)
	}
	// EOF on stdin is a normal, successful exit (§6 exit codes).
	return nil
}
