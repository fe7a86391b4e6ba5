package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "submit":
		if hasHelpFlag(args) {
			printSubmitHelp()
			return 0
		}
		return runSubmit(args)
	case "purge":
		if hasHelpFlag(args) {
			printPurgeHelp()
			return 0
		}
		return runPurge(args)
	case "config":
		return runConfigNoun(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: cpg-chip version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("cpg-chip %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Print(`cpg-chip - submit and clean up the Mutect2 CHIP pipeline on the batch service

Usage:
  cpg-chip <command> [flags]

Commands:
  submit            Build the driver job for the full workflow and dispatch it
  purge             Remove a run's outputs from the release bucket
  config show       Print the merged configuration
  config get        Print one value by dot path (e.g. workflow.dataset)
  config check      Validate the configuration for submit or purge
  version           Print version information

Common flags:
  --config <file>   Config file; repeat to layer files (default $CPG_CONFIG_PATH or ./config.yaml)
  --dry-run         Print the batch spec instead of submitting it
  --log-level <l>   debug, info, warn or error

Run 'cpg-chip <command> --help' for command flags.
`)
}

func printSubmitHelp() {
	fmt.Println("Usage: cpg-chip submit [--config <file>]... [--repo <name>] [--commit <sha>] [--dry-run] [--log-level <level>]")
	fmt.Println("Builds the mutect2-chip-full driver job and dispatches the batch without waiting.")
}

func printPurgeHelp() {
	fmt.Println("Usage: cpg-chip purge [--config <file>]... [--dry-run] [--log-level <level>]")
	fmt.Println("Removes <release bucket>/<name>/<workflow_name>/<run_id>/mutect2-chip/... after allow-list and path checks.")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: cpg-chip config <action>")
	fmt.Fprintln(w, "Actions: show, get <path>, check [--mode submit|purge] [--strict] [--json]")
}
