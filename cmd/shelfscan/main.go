package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/use-agent/shelfscan/config"
	"github.com/use-agent/shelfscan/metrics"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using process environment")
	}

	app := &cli.App{
		Name:  "shelfscan",
		Usage: "audit retailer product pages for AI shopping readiness",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Usage:   "SQLite database for audit records (overrides SHELFSCAN_DB_PATH)",
				EnvVars: []string{"SHELFSCAN_DB_PATH"},
			},
			&cli.StringFlag{
				Name:    "soa",
				Usage:   "share-of-answer CSV (overrides SHELFSCAN_SOA_FILE)",
				EnvVars: []string{"SHELFSCAN_SOA_FILE"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: ServeAction,
			},
			{
				Name:  "audit",
				Usage: "audit the URLs of a discovery CSV and write output rows",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "CSV with a url column", Required: true},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "record rows CSV (default stdout)"},
					&cli.StringFlag{Name: "aggregate-output", Usage: "also write domain rows for this run"},
					&cli.BoolFlag{Name: "no-render", Usage: "audit static HTML only"},
				},
				Action: AuditAction,
			},
			{
				Name:  "aggregate",
				Usage: "compose domain scores from stored records",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "domain", Aliases: []string{"d"}, Usage: "restrict to these domains"},
					&cli.StringFlag{Name: "mode", Value: "", Usage: "domain, category or category_weighted"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "domain rows CSV (default stdout)"},
				},
				Action: AggregateAction,
			},
			{
				Name:  "trends",
				Usage: "summarise rating history from repeated audits",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "domain", Aliases: []string{"d"}, Usage: "restrict to one domain"},
					&cli.IntFlag{Name: "top", Value: 10, Usage: "number of top review gainers"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "JSON file (default stdout)"},
				},
				Action: TrendsAction,
			},
		},
		Action: ServeAction,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("shelfscan failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment, applies global flags and installs the
// logger.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if db := c.String("db"); db != "" {
		cfg.Store.Path = db
	}
	if soa := c.String("soa"); soa != "" {
		cfg.Aggregate.ShareOfAnswerFile = soa
	}
	initLogger(cfg.Log)
	metrics.Init()
	return cfg, nil
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
