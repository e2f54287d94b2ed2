package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/asheshgoplani/agent-pulse/internal/config"
)

func handleConfig(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(stdout)
	format := fs.String("format", "toml", "Output format for show: toml or yaml")
	fs.Usage = func() {
		fmt.Fprintln(stdout, "Usage: agent-pulse config <show|init|path|validate> [--format toml|yaml]")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "  show       Print the effective config with defaults filled in")
		fmt.Fprintln(stdout, "  init       Write a commented example config if none exists")
		fmt.Fprintln(stdout, "  path       Print the config file path")
		fmt.Fprintln(stdout, "  validate   Check the config file for errors")
	}
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	sub := "show"
	if fs.NArg() > 0 {
		sub = fs.Arg(0)
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("%w: unexpected arguments: %v", errUsage, fs.Args()[1:])
	}

	switch sub {
	case "path":
		path, err := config.Path()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, path)
		return nil

	case "init":
		path, created, err := config.CreateExample()
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(stdout, "%s Created %s\n", successSymbol, FormatPath(path))
		} else {
			fmt.Fprintf(stdout, "%s Config already exists: %s\n", bulletSymbol, FormatPath(path))
		}
		return nil

	case "show":
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		data, err := config.Render(cfg.Effective(), *format)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		_, err = stdout.Write(data)
		return err

	case "validate":
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			return fmt.Errorf("%s", config.FormatValidationErrors(errs))
		}
		path, _ := config.Path()
		fmt.Fprintf(stdout, "%s %s is valid\n", successSymbol, FormatPath(path))
		return nil

	default:
		fs.Usage()
		return fmt.Errorf("%w: unknown config command %q", errUsage, sub)
	}
}
