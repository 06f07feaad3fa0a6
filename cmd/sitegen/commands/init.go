package commands

import (
	"fmt"

	"git.home.luguber.info/inful/sitegen/internal/scaffold"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Dir   string `arg:"" optional:"" default:"." help:"Project directory" type:"path"`
	Force bool   `help:"Overwrite an existing configuration and skeleton files"`
	Git   bool   `help:"Initialize a git repository and commit the skeleton"`
}

func (i *InitCmd) Run(g *Global, _ *CLI) error {
	w := g.out()
	_, _ = fmt.Fprintf(w, "Initializing sitegen project in %s\n", i.Dir)
	res, err := scaffold.Init(i.Dir, scaffold.Options{Force: i.Force, Git: i.Git})
	if err != nil {
		_, _ = fmt.Fprintln(w, "Initialization failed")
		return err
	}
	for _, f := range res.Written {
		_, _ = fmt.Fprintf(w, "  created %s\n", f)
	}
	for _, f := range res.Skipped {
		_, _ = fmt.Fprintf(w, "  kept    %s\n", f)
	}
	if res.Commit != "" {
		_, _ = fmt.Fprintf(w, "Committed skeleton as %s\n", res.Commit[:min(len(res.Commit), 12)])
	}
	_, _ = fmt.Fprintln(w, "Run 'sitegen preview' inside the project to start writing.")
	return nil
}
