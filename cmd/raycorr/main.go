// Command raycorr runs ray correlation scenarios, the sphere-world demo, and
// journal queries.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/raycorr/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
