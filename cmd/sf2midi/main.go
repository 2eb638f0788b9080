package main

import (
	"embed"
	"fmt"
	"os"

	"github.com/zurustar/sf2midi/pkg/app"
)

// Copy a .sf2 file into soundfonts/ before building to bundle it.
//
//go:embed soundfonts
var embeddedSoundFonts embed.FS

func main() {
	application := app.New(embeddedSoundFonts)
	if err := application.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
