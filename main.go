// The main package for the journal-ingest executable.
package main

import (
	"github.com/JakeFAU/journal-ingest/cmd"
)

func main() {
	cmd.Execute()
}
