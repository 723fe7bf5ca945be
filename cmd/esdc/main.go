// esdc compiles scripts to archives, runs them and inspects the results.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"
	"github.com/xyproto/env/v2"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/esdraft/manifest"
)

func main() {
	verbose := flag.Bool("v", env.Bool("ESDRAFT_VERBOSE"), "Verbose output (env ESDRAFT_VERBOSE)")
	configDir := flag.String("config", env.Str("ESDRAFT_CONFIG", "."), "Directory to search upward for esdraft.toml (env ESDRAFT_CONFIG)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: esdc [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  build [-o dir] [files...]   Compile scripts (default: the project's source dirs)\n")
		fmt.Fprintf(os.Stderr, "  run <file>                  Compile and run a script, printing its completion value\n")
		fmt.Fprintf(os.Stderr, "  dump [-full] <archive>      Disassemble a compiled archive\n")
		fmt.Fprintf(os.Stderr, "  cache list                  List cached archives\n")
		fmt.Fprintf(os.Stderr, "  cache purge [-older-than d] Remove cached archives\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(os.Stdout, *configDir, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches a subcommand.
func run(out io.Writer, configDir string, args []string) error {
	m, err := manifest.FindAndLoad(configDir)
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}
	if m == nil {
		dir, err := filepath.Abs(configDir)
		if err != nil {
			return err
		}
		m = manifest.Default(dir)
	}

	switch args[0] {
	case "build":
		return buildCommand(out, m, args[1:])
	case "run":
		return runCommand(out, m, args[1:])
	case "dump":
		return dumpCommand(out, args[1:])
	case "cache":
		return cacheCommand(out, m, args[1:])
	}
	return fmt.Errorf("unknown command %q", args[0])
}
