// Command mcp-server serves the MCP tools over stdio. It is equivalent to
// "gravilog mcp".
package main

import (
	"fmt"
	"os"

	"github.com/gravilog-risk-core/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	root.SetArgs(append([]string{"mcp"}, os.Args[1:]...))
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server failed: %v\n", err)
		os.Exit(1)
	}
}
