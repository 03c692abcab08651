// The main package for the gradcafe-pipeline executable.
package main

import (
	"github.com/jhu-ep/gradcafe-pipeline/cmd"
)

func main() {
	cmd.Execute()
}
