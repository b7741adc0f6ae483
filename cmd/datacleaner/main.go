// Command datacleaner runs and schedules data quality analysis jobs.
package main

import (
	"os"

	"github.com/wehubfusion/datacleaner/internal/cli"
)

func main() {
	if err := cli.NewRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
