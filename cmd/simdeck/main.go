// Command simdeck is a terminal dashboard for multi-agent simulation
// servers: it subscribes to a server's event feed, keeps a derived live
// state, and renders it as a TUI. It can also record feeds to SQLite and
// replay them offline.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
