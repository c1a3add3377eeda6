package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Run with `go run ./tools/boc-cli`

func main() {
	app := &cli.App{
		Name:     "Bag-of-Cells Toolbox",
		HelpName: "boc",
		Usage:    "A set of utilities to inspect serialized bag-of-cells files",
		Flags:    []cli.Flag{},
		Commands: []*cli.Command{
			&getInfoCommand,
			&dumpCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
