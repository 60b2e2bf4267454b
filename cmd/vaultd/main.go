package main

import (
	"fmt"
	"os"

	"yieldredirect/services/vaultd"
)

func main() {
	if err := vaultd.Main(); err != nil {
		fmt.Fprintf(os.Stderr, "vaultd: %v\n", err)
		os.Exit(1)
	}
}
