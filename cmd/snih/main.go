// Command snih harvests the Argentine national hydrological information
// system (SNIH) and exports its datasets as CSV or JSON files.
package main

import (
	"os"
)

// Version is set by build flags.
var Version = "dev"

func main() {
	if err := getRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
