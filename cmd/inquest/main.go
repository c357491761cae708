package main

import (
	"flag"
	"fmt"
	"os"
)

// CLI flags parsed from command line.
type cliFlags struct {
	ConfigDir     string
	JobKey        string
	Seed          seedFlags
	Agents        string
	ServeMCP      bool
	MCPAddr       string
	StatusSession string
	MCPEndpoint   string
	Verbose       bool
	Version       bool
}

// seedFlags collects repeated -seed namespace/name=value pairs.
type seedFlags []string

func (s *seedFlags) String() string { return fmt.Sprint([]string(*s)) }

func (s *seedFlags) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// version is set by goreleaser at build time.
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var flags cliFlags

	fs := flag.NewFlagSet("inquest", flag.ContinueOnError)
	fs.StringVar(&flags.ConfigDir, "config-dir", ".", "directory holding inquest.yml")
	fs.StringVar(&flags.JobKey, "job", "", "job key to investigate (e.g. a ticket id)")
	fs.Var(&flags.Seed, "seed", "initial parameter as namespace/name=value (repeatable)")
	fs.StringVar(&flags.Agents, "agents", "", "comma-separated remote investigator base URLs")
	fs.BoolVar(&flags.ServeMCP, "serve-mcp", false, "run as an MCP tool server instead of executing one job")
	fs.StringVar(&flags.MCPAddr, "mcp-addr", ":8391", "listen address for the MCP server")
	fs.StringVar(&flags.StatusSession, "status", "", "query a running server for this session's progress")
	fs.StringVar(&flags.MCPEndpoint, "endpoint", "http://localhost:8391", "base URL of the MCP server for -status")
	fs.BoolVar(&flags.Verbose, "verbose", false, "enable debug logging")
	fs.BoolVar(&flags.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if flags.Version {
		fmt.Println(version)
		return nil
	}

	if flags.ServeMCP {
		return serveMCP(flags)
	}

	if flags.StatusSession != "" {
		return runStatus(flags)
	}

	if flags.JobKey == "" {
		return fmt.Errorf("-job is required (or use -serve-mcp)")
	}
	return runJob(flags)
}
