package main

import (
	"os"

	"github.com/dgallion1/docaudio/cmd/docaudio/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
