package main

import (
	"fmt"
	"os"
	"path/filepath"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	if len(args) < 2 {
		usage(args)
		return 1
	}

	switch args[1] {
	case "bundle":
		if len(args) >= 3 && args[2] == "verify" {
			return runBundleVerify(args[3:])
		}
	}

	usage(args)
	return 1
}

func usage(args []string) {
	name := "ledgerctl"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  %s bundle verify -in <evidence_bundle.json> [-json]\n", name)
}
