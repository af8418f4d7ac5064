package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/Swind/go-execution-manager/config"
)

func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Check a configuration file and report every error",
		Flags:   []cli.Flag{configFlag()},
		Action:  ValidateAction,
	}
}

func ValidateAction(c *cli.Context) error {
	f, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	cfgs, err := f.Build()
	if err != nil {
		errs := multierr.Errors(err)
		for _, e := range errs {
			fmt.Fprintf(c.App.ErrWriter, "✗ %v\n", e)
		}
		return cli.Exit(fmt.Sprintf("Failed: %d configuration error(s)", len(errs)), 1)
	}

	for _, cfg := range cfgs {
		fmt.Fprintf(c.App.Writer, "✓ %s (%s)\n", cfg.ContextName(), cfg.ContextType())
	}
	return nil
}
