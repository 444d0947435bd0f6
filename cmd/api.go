package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/threadline/internal/api"
	"github.com/threadline/internal/config"
	"github.com/threadline/internal/logging"
)

// APICommand returns the CLI command for starting the API server
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the Threadline API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if port := c.Int("port"); port > 0 {
				cfg.Server.Port = port
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logging.Setup(cfg.Log.Level, cfg.Log.Format)

			server, err := api.NewServer(cfg)
			if err != nil {
				return err
			}
			return server.Start()
		},
	}
}
