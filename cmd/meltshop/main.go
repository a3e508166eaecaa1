// Command meltshop monitors a melting shop: machine weights, melting
// sessions, operator events and sensor alerts.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/meltshop/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "meltshop:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
