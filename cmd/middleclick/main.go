package main

import (
	"fmt"
	"os"

	"github.com/stigoleg/middleclick/internal/cli"
	"github.com/stigoleg/middleclick/internal/ui"
)

const appVersion = "0.4.0"

func main() {
	if err := cli.Execute(appVersion); err != nil {
		fmt.Fprintln(os.Stderr, ui.Current.Error.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
