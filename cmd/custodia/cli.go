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
	case "register":
		return runRegister(args[2:])
	case "sign":
		return runSign(args[2:])
	case "reconcile":
		return runReconcile(args[2:])
	case "status":
		return runStatus(args[2:])
	}

	usage(args)
	return 1
}

func usage(args []string) {
	name := "custodia"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  %s register --url <source-url> [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s sign [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s reconcile [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s status --id <media-id> [--out <file>]\n", name)
}
