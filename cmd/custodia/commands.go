package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"custodia/internal/app"
	"custodia/internal/config"
)

func runRegister(args []string) int {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var url string
	var outPath string
	fs.StringVar(&url, "url", "", "source url")
	fs.StringVar(&outPath, "out", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if url == "" {
		fmt.Fprintln(os.Stderr, "register: --url is required")
		return 1
	}

	ctx := context.Background()
	a, err := app.Build(ctx, config.FromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "register: %v\n", err)
		return 1
	}
	result, err := a.Register.Run(ctx, url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "register: %v\n", err)
		return 1
	}
	return writeJSON(outPath, result)
}

func runSign(args []string) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var outPath string
	fs.StringVar(&outPath, "out", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx := context.Background()
	a, err := app.Build(ctx, config.FromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		return 1
	}
	summary, err := a.Pipeline.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		return 1
	}
	return writeJSON(outPath, summary)
}

func runReconcile(args []string) int {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var outPath string
	fs.StringVar(&outPath, "out", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx := context.Background()
	a, err := app.Build(ctx, config.FromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
		return 1
	}
	summary, err := a.Reconcile.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
		return 1
	}
	return writeJSON(outPath, summary)
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var id int64
	var outPath string
	fs.Int64Var(&id, "id", 0, "media id")
	fs.StringVar(&outPath, "out", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id <= 0 {
		fmt.Fprintln(os.Stderr, "status: --id is required")
		return 1
	}

	ctx := context.Background()
	a, err := app.Build(ctx, config.FromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}
	record, err := a.Ledger.Get(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}
	return writeJSON(outPath, record)
}

func writeJSON(path string, payload any) int {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		return 1
	}
	if err := writeOutput(path, encoded); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}
