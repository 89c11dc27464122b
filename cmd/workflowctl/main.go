package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/nexus-forge/workflowcore/internal/config"
	"github.com/nexus-forge/workflowcore/internal/telemetry"
	"github.com/nexus-forge/workflowcore/internal/workflow/loader"
)

const Version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		os.Exit(runValidate(os.Args[2:]))
	case "dry-run":
		os.Exit(runDryRun(os.Args[2:]))
	case "version":
		fmt.Println(Version)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "workflowctl: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `workflowctl validates and simulates workflow definitions.

Usage:
  workflowctl validate <path>
  workflowctl dry-run <path> [--tier <tag>]
  workflowctl version`)
}

func newLogger() *telemetry.Logger {
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	level := config.DefaultLogLevel
	format := config.DefaultLogFormat
	if err == nil {
		level = cfg.Logging.Level
		format = cfg.Logging.Format
	}
	return telemetry.NewLogger(telemetry.LoggerConfig{
		Level:     level,
		Format:    format,
		Output:    os.Stderr,
		AddSource: false,
	})
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	tier := fs.String("tier", "", "workflow tier/type to resolve when the document uses a tiered layout")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: workflowctl validate <path> [--tier <tag>]")
		return 2
	}
	path := fs.Arg(0)

	logger := newLogger()
	wf, warnings, err := loader.Load(path, *tier)
	if err != nil {
		logger.Error("workflow validation failed", "path", path, "error", err)
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		return 1
	}

	for _, w := range warnings {
		fmt.Printf("ERROR: %s\n", w)
	}

	if len(warnings) > 0 {
		fmt.Printf("FAIL: %d orchestration error(s): %q (%d steps)\n", len(warnings), wf.Name, len(wf.Steps))
		return 1
	}

	fmt.Printf("OK: %q (%d steps)\n", wf.Name, len(wf.Steps))
	return 0
}

func runDryRun(args []string) int {
	fs := flag.NewFlagSet("dry-run", flag.ExitOnError)
	tier := fs.String("tier", "", "workflow tier/type to resolve when the document uses a tiered layout")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: workflowctl dry-run <path> [--tier <tag>]")
		return 2
	}
	path := fs.Arg(0)

	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: read workflow definition: %v\n", err)
		return 1
	}

	doc, err := loader.ParseDocument(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		return 1
	}

	report := loader.Simulate(doc, *tier)
	if len(report.Errors) > 0 {
		for _, e := range report.Errors {
			fmt.Printf("ERROR: %s\n", e)
		}
		return 1
	}

	for _, line := range report.PredictedFlow {
		fmt.Println(line)
	}
	return 0
}
