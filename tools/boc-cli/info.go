package main

import (
	"fmt"
	"os"

	"github.com/cellforge/toncodec/cell"
	"github.com/urfave/cli/v2"
)

var (
	bocFileFlag = cli.StringFlag{
		Name:     "file",
		Usage:    "the bag-of-cells file to inspect",
		Required: true,
	}
)

var getInfoCommand = cli.Command{
	Action: getInfo,
	Name:   "info",
	Usage:  "prints summary information about a bag-of-cells file",
	Flags: []cli.Flag{
		&bocFileFlag,
	},
}

func getInfo(ctx *cli.Context) error {
	file := ctx.String(bocFileFlag.Name)
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	bag, err := cell.Parse(data)
	if err != nil {
		return err
	}

	fmt.Printf("File size: %d bytes\n", len(data))
	fmt.Printf("Cells:     %d\n", bag.CellCount())
	fmt.Printf("Roots:     %d\n", len(bag.Roots()))
	for i, root := range bag.Roots() {
		fmt.Printf("Root %d:    %s (depth %d)\n", i, root.Hash(), root.Depth())
	}
	return nil
}
