// Package main is the entry point for framestream.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/framestream/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
