package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// CheckCmd builds into a throwaway directory so the real output is left
// alone, and fails when the build has errors.
type CheckCmd struct {
	Strict bool `name:"strict" help:"Treat warnings such as broken links as errors"`
}

func (c *CheckCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if c.Strict {
		cfg.Strict = true
	}

	tmp, err := os.MkdirTemp("", "sitegen-check-*")
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create temporary output directory").Build()
	}
	defer func() { _ = os.RemoveAll(tmp) }()
	cfg.OutputDir = tmp
	cfg.Build.History = false

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunBuild(ctx, g, cfg)
}
