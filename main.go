// Package main is the entry point for the VRT bridge.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/vrtbridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
