package main

import (
	"fmt"
	"os"

	"github.com/safwat-fathi/almuetasim-api/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "almuetasim: %v\n", err)
		os.Exit(1)
	}
}
