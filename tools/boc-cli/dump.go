package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/cellforge/toncodec/cell"
	"github.com/urfave/cli/v2"
)

var dumpCommand = cli.Command{
	Action: dump,
	Name:   "dump",
	Usage:  "prints the cell tree of a bag-of-cells file",
	Flags: []cli.Flag{
		&bocFileFlag,
	},
}

func dump(ctx *cli.Context) error {
	file := ctx.String(bocFileFlag.Name)
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	bag, err := cell.Parse(data)
	if err != nil {
		return err
	}
	for _, root := range bag.Roots() {
		dumpCell(root, 0)
	}
	return nil
}

func dumpCell(c *cell.Cell, depth int) {
	kind := ""
	if c.IsExotic() {
		kind = fmt.Sprintf(" <%s>", c.Type())
	}
	fmt.Printf("%s%d[%s]%s\n", strings.Repeat("  ", depth), c.BitLen(), hex.EncodeToString(c.Data()), kind)
	for i := 0; i < c.RefCount(); i++ {
		dumpCell(c.Ref(i), depth+1)
	}
}
