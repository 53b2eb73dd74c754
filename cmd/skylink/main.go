package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/ppiankov/skylink/internal/cli"
)

func main() {
	// fang adds styled help and errors, completions, man pages and --version.
	if err := fang.Execute(
		context.Background(),
		cli.RootCmd(),
		fang.WithVersion(cli.Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
