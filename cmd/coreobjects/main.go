// Command coreobjects runs the incremental collector engine and its
// simulations from the command line
package main

import (
	"os"

	"github.com/coreobjects/coreobjects/pkg/cli"
)

var version = "dev"

func main() {
	c := cli.NewCLI(&cli.Config{Version: version})
	if err := c.Execute(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
