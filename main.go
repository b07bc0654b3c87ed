package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/electronjoe/photomanifest/cmd"
)

func main() {
	root := cmd.NewRootCmd()

	// fang adds styled help, --version and cancels the context on interrupt.
	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(cmd.Version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}
