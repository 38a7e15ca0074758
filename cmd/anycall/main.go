// Command anycall is an interactive demo shell for the RPCSystem: it
// opens one node, lets you register and call functions, and drives
// everything from a readline prompt. Modeled on neo-go's cli/vm REPL
// (github.com/urfave/cli for flags, github.com/chzyer/readline for the
// prompt, github.com/kballard/go-shellquote for tokenizing command lines).
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "anycall"
	app.Usage = "interactive anycall RPC node"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "host",
			Usage: "advertise address other peers dial to reach this node",
			Value: "127.0.0.1",
		},
		cli.IntFlag{
			Name:  "port",
			Usage: "TCP port to listen on",
			Value: 4000,
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug-level logging",
		},
	}
	app.Action = runShell

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
