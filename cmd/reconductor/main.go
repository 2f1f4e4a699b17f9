// cmd/reconductor/main.go
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/reconductor/reconductor/cmd/reconductor/commands"
)

func main() {
	if err := commands.NewCommand().Execute(); err != nil {
		switch {
		case errors.Is(err, commands.ErrInterrupted):
			os.Exit(130)
		case errors.Is(err, commands.ErrTargetsFailed):
			os.Exit(1)
		default:
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
	}
}
