// Command oxm inspects the lifecycle event registry and mapping files and
// serves the mapper's admin API.
package main

import (
	"fmt"
	"os"

	"github.com/leandroluk/oxm/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "oxm:", err)
		os.Exit(1)
	}
}
