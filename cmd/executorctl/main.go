// Command executorctl drives the transaction execution core either over a
// recorded block file (replay) or as a long-running node surface (serve),
// mirroring the two-mode shape of the teacher's own cmd/geth entrypoint —
// one binary, subcommands for offline replay vs. live service.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/young-rocks/aptos-core/log"
)

func main() {
	app := &cli.App{
		Name:  "executorctl",
		Usage: "drive the Move transaction execution core: replay recorded blocks or serve the node-facing API",
		Commands: []*cli.Command{
			replayCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("executorctl exiting with error", "err", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
