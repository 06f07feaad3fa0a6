package commands

import (
	"context"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/preview"
)

// PreviewCmd serves the site with live reload.
type PreviewCmd struct {
	Port   int    `name:"port" help:"Port to listen on; the next free port is used when taken (default from preview.port)"`
	Open   bool   `name:"open" help:"Open the site in the default browser"`
	Drafts bool   `name:"drafts" help:"Include pages marked as drafts"`
	Output string `short:"o" name:"output" help:"Output directory (overrides output_dir)"`
}

func (p *PreviewCmd) apply(cfg *config.Config) {
	if p.Port > 0 {
		cfg.Preview.Port = p.Port
	}
	if p.Drafts {
		cfg.IncludeDrafts = true
	}
	if p.Output != "" {
		cfg.OutputDir = p.Output
	}
}

func (p *PreviewCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return preview.Run(ctx, cfg, preview.Options{
		Override: p.apply,
		Open:     p.Open,
	})
}
