package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/postcards/internal"
	pkgconfig "github.com/starford/postcards/pkg/config"
)

const defaultConfigPath = "config/config.yaml"

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, opts...); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

func export(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	stats, err := internal.Export(ctx, cmd.String("dir"), opts...)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	fmt.Fprintf(os.Stdout, "written=%d unchanged=%d removed=%d\n", stats.Written, stats.Unchanged, stats.Removed)
	return nil
}

func importDir(ctx context.Context, cmd *cli.Command) error {
	dir := cmd.Args().First()
	if dir == "" {
		return fmt.Errorf("import: directory argument is required")
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	stats, err := internal.Import(ctx, dir, opts...)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	fmt.Fprintf(os.Stdout, "created=%d updated=%d failed=%d\n", stats.Created, stats.Updated, stats.Failed)
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "postcards",
		Usage:  "Scripture postcards with personal notes and a Bible verse lookup proxy",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: defaultConfigPath,
				Value:       defaultConfigPath,
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve postcard tools over MCP stdio",
				Action: serveMCP,
			},
			{
				Name:   "export",
				Usage:  "Write every postcard as Markdown",
				Action: export,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "dir",
						Aliases: []string{"d"},
						Usage:   "Target directory (defaults to vault.path)",
						Sources: cli.EnvVars("POSTCARDS_EXPORT_DIR"),
					},
				},
			},
			{
				Name:      "import",
				Usage:     "Create or update postcards from Markdown files",
				ArgsUsage: "<dir>",
				Action:    importDir,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
