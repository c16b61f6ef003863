// Command crmd runs the CRM pipeline service.
package main

import (
	"fmt"
	"os"

	"crmcore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "crmd:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
