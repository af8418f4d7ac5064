// Command execmgr validates execution manager configuration files and runs
// them under synthetic load.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "execmgr",
		Usage: "Validate and exercise execution context configurations",
		Commands: []*cli.Command{
			ValidateCommand(),
			RunCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Required: true,
		Usage:    "Path to the YAML configuration file",
	}
}
