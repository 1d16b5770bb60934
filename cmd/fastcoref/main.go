// fastcoref trains and evaluates coreference models
package main

import (
	"os"

	"github.com/ksteimel/fast-coref/cmd/fastcoref/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
