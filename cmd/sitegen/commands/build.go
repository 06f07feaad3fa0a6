package commands

import (
	"context"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/sitegen/internal/build"
	"git.home.luguber.info/inful/sitegen/internal/config"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Output  string `short:"o" name:"output" help:"Output directory (overrides output_dir)"`
	Drafts  bool   `name:"drafts" help:"Include pages marked as drafts"`
	BaseURL string `name:"base-url" help:"Base URL (overrides base_url)"`
	Strict  bool   `name:"strict" help:"Treat undefined variables, broken links and execution failures as errors"`
	NoExec  bool   `name:"no-exec" help:"Do not run executable code blocks; cached results are still used"`
}

// apply copies flag overrides onto cfg.
func (b *BuildCmd) apply(cfg *config.Config) {
	if b.Output != "" {
		cfg.OutputDir = b.Output
	}
	if b.Drafts {
		cfg.IncludeDrafts = true
	}
	if b.BaseURL != "" {
		cfg.BaseURL = b.BaseURL
	}
	if b.Strict {
		cfg.Strict = true
	}
	if b.NoExec {
		cfg.Execute.NoExec = true
	}
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	b.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunBuild(ctx, g, cfg)
}

// RunBuild performs one full build and prints its report.
func RunBuild(ctx context.Context, g *Global, cfg *config.Config) error {
	engine, err := build.NewEngine(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	r, err := engine.RunFullBuild(ctx)
	printReport(g.out(), r)
	return err
}
