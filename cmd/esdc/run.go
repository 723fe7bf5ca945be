package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/chazu/esdraft/cache"
	"github.com/chazu/esdraft/manifest"
	"github.com/chazu/esdraft/runtime"
)

func runCommand(out io.Writer, m *manifest.Manifest, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: esdc run <file>")
	}

	opts := m.ToOptions()
	opts.Output = out
	if m.Cache.Enabled {
		store, err := cache.Open(m.CachePath())
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Cache = store
	}

	cu, err := compileFile(m, fs.Arg(0), opts)
	if err != nil {
		return err
	}

	realm := runtime.NewRealm()
	realm.Define("print", func(cx *runtime.ExecutionContext, this runtime.Value, args []runtime.Value) (runtime.Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = runtime.ToString(a)
		}
		fmt.Fprintln(out, strings.Join(parts, " "))
		return runtime.Undefined, nil
	})
	v, err := cu.Execute(realm.NewContext())
	if err != nil {
		return err
	}
	if v != runtime.Undefined {
		fmt.Fprintln(out, runtime.ToString(v))
	}
	return nil
}
