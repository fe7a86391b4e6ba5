package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mgeaghan/cpg-chip/internal/doctor"
)

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "show":
		return runConfigShow(actionArgs)
	case "get":
		return runConfigGet(actionArgs)
	case "check":
		return runConfigCheck(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runConfigShow(args []string) int {
	var common commonFlags
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	common.register(fs)
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if !parseFlags(fs, args) {
		return 1
	}

	cfg, err := common.loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	if *jsonOut {
		// Route through GetPath so JSON output uses the yaml key names.
		val, err := cfg.GetPath("")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		data, _ := json.MarshalIndent(val, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	digests, err := cfg.SourceDigests()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	for _, d := range digests {
		fmt.Printf("# source: %s blake3:%s\n", d.Path, d.Digest[:12])
	}
	fmt.Printf("# fingerprint: %s\n", cfg.ShortFingerprint())
	fmt.Print(string(data))
	return 0
}

func runConfigGet(args []string) int {
	var common commonFlags
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	common.register(fs)
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: cpg-chip config get <path> [--json]")
		return 1
	}

	cfg, err := common.loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	val, err := cfg.GetPath(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(val, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("%v\n", val)
	}
	return 0
}

func runConfigCheck(args []string) int {
	var common commonFlags
	var mode string
	var strict, jsonOut bool
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	common.register(fs)
	fs.StringVar(&mode, "mode", string(doctor.ModeSubmit), "Command to validate for (submit, purge)")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if !parseFlags(fs, args) {
		return 1
	}

	m, err := doctor.ParseMode(mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := common.loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.Check(cfg, m)
	if jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}
