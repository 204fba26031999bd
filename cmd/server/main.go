// Command server runs the HTTP API. It is equivalent to "gravilog serve".
package main

import (
	"fmt"
	"os"

	"github.com/gravilog-risk-core/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	root.SetArgs(append([]string{"serve"}, os.Args[1:]...))
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		os.Exit(1)
	}
}
