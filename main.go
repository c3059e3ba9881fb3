package main

import (
	"embed"
	"fmt"
	"os"

	"github.com/tomfevang/datasmith/cmd"
)

//go:embed docs
var docsFS embed.FS

func main() {
	cmd.DocsFS = docsFS
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
