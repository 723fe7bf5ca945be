package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/chazu/esdraft/compiler"
	"github.com/chazu/esdraft/compiler/code"
)

func dumpCommand(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	full := fs.Bool("full", false, "Include line, handler and local variable tables")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: esdc dump [-full] <archive>")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	ar, err := code.UnmarshalArchive(data)
	if err != nil {
		return fmt.Errorf("%s: %w", fs.Arg(0), err)
	}
	cu, err := compiler.Load(ar)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, cu.Listing(*full))
	return err
}
