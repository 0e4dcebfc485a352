// discernctl runs Discern detectors from the command line.
//
// Usage:
//
//	discernctl threat "Act now, only 2 left!"
//	discernctl scan gaslighting - < message.txt
//	discernctl check love-bombing --select 0,2,5
//	discernctl project --domain physical=40 --domain financial=55 ...
//	discernctl mcp          # MCP server on stdio
//	discernctl assistant --nats-url nats://localhost:4222
package main

import (
	"fmt"
	"os"
)

// Version information (set via ldflags)
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
