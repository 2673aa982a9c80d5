// Package main implements the devtester executable: the CLI entry point
// that loads a run's configuration, resolves its report sink and
// runnable selection, and drives the runner to completion.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/google/subcommands"
	"golang.org/x/sys/unix"
)

func installSignalHandler() {
	ch := make(chan os.Signal, 1)
	go func() {
		sig := <-ch
		fmt.Fprintf(os.Stderr, "\ndevtester: caught %v signal; exiting\n", sig)
		os.Exit(1)
	}()
	signal.Notify(ch, unix.SIGINT)
}

func doMain() int {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&runCmd{}, "")
	subcommands.Register(&listCmd{}, "")

	installSignalHandler()

	log.SetFlags(0)
	return int(subcommands.Execute(context.Background()))
}

func main() {
	os.Exit(doMain())
}
