package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sitegen/internal/build"
	"git.home.luguber.info/inful/sitegen/internal/config"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// Global carries shared state into every command's Run method.
type Global struct {
	Logger *slog.Logger
	// Out receives user-facing output. Logs go to stderr.
	Out io.Writer
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// CLI definition and global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"sitegen.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	EnvFile string           `name:"env-file" help:"Load environment variables from this file before reading the config" type:"path"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Build the site into the output directory"`
	Preview PreviewCmd `cmd:"" help:"Serve the site with live reload and rebuild on change"`
	Init    InitCmd    `cmd:"" help:"Create a new project skeleton"`
	Check   CheckCmd   `cmd:"" help:"Build into a temporary directory and report problems"`
	Clean   CleanCmd   `cmd:"" help:"Remove the output directory and optionally the cache"`
	History HistoryCmd `cmd:"" help:"Show recent builds"`
}

// AfterApply runs after flag parsing; setup logging once.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if c.EnvFile != "" {
		if err := config.LoadEnvFile(c.EnvFile); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to load env file").
				WithContext("path", c.EnvFile).
				Build()
		}
		slog.Debug("Loaded environment variables", "path", c.EnvFile)
	}
	return nil
}

// loadConfig reads the config file named by --config.
func (c *CLI) loadConfig() (*config.Config, error) {
	return config.Load(c.Config)
}

// printReport writes the build summary and every issue to w.
func printReport(w io.Writer, r *build.Report) {
	if r == nil {
		return
	}
	for _, is := range r.Issues {
		_, _ = fmt.Fprintln(w, is.String())
	}
	_, _ = fmt.Fprintln(w, r.Summary())
}
