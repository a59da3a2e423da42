// Command anonymize-local runs the local-only anonymization pipeline: the
// transfer table materializes alongside the source and is the deliverable.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ardoooo/anonymizepg/internal/cli"
	"github.com/ardoooo/anonymizepg/internal/runctl"
)

func main() {
	cmd := cli.NewRootCommand("anonymize-local", "Anonymize and transfer rows into a local transfer table", runctl.Local)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
