package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/statusboard/internal"
	"github.com/starford/statusboard/internal/apperr"
	pkgconfig "github.com/starford/statusboard/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOrDefault(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// stdout carries the protocol.
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

// output opens the --output flag, with "-" meaning stdout.
func output(cmd *cli.Command) (io.WriteCloser, error) {
	path := cmd.String("output")
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func export(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	w, err := output(cmd)
	if err != nil {
		return err
	}
	defer w.Close()

	return internal.Export(ctx, w, cmd.Bool("archived"),
		internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func exportWorkbook(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	w, err := output(cmd)
	if err != nil {
		return err
	}
	defer w.Close()

	return internal.ExportWorkbook(ctx, w, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func importProjects(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	in := io.Reader(os.Stdin)
	if path := cmd.String("file"); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	n, err := internal.Import(ctx, in, cmd.Bool("yes"),
		internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if errors.Is(err, apperr.ErrConfirmationRequired) {
		return errors.New("import replaces all active projects; re-run with --yes to confirm")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "imported %d projects\n", n)
	return nil
}

func outputFlag(usage string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   usage,
		Value:   "-",
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "statusboard",
		Usage:  "Single-user project dashboard with step hierarchies, dependencies and completion gates",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and event stream",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools over stdio",
				Action: serveMCP,
			},
			{
				Name:  "export",
				Usage: "Write projects as a JSON export document",
				Flags: []cli.Flag{
					outputFlag("File to write, - for stdout"),
					&cli.BoolFlag{Name: "archived", Usage: "Export the archive instead of active projects"},
				},
				Action: export,
			},
			{
				Name:   "export-xlsx",
				Usage:  "Write active and archived projects as an Excel workbook",
				Flags:  []cli.Flag{outputFlag("Workbook file to write, - for stdout")},
				Action: exportWorkbook,
			},
			{
				Name:  "import",
				Usage: "Replace active projects with a JSON export document",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Export document to read, - for stdin", Value: "-"},
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Confirm replacing the active projects"},
				},
				Action: importProjects,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
