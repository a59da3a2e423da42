// Command anonymize-replicate runs the replicated anonymization pipeline:
// rows inserted into the transfer table are streamed by logical
// replication to one or more destination clusters.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ardoooo/anonymizepg/internal/cli"
	"github.com/ardoooo/anonymizepg/internal/runctl"
)

func main() {
	cmd := cli.NewRootCommand("anonymize-replicate", "Anonymize and replicate rows to destination clusters", runctl.Replicated)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
