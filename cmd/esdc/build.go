package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/esdraft/cache"
	"github.com/chazu/esdraft/compiler"
	"github.com/chazu/esdraft/compiler/parse"
	"github.com/chazu/esdraft/manifest"
)

// ArchiveExt is the suffix of archives written by build.
const ArchiveExt = ".esa"

func buildCommand(out io.Writer, m *manifest.Manifest, args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	outDir := fs.String("o", filepath.Join(m.Dir, ".esdraft", "out"), "Output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	files := fs.Args()
	if len(files) == 0 {
		var err error
		if files, err = m.ScriptFiles(); err != nil {
			return err
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no scripts found in %v", m.Source.Dirs)
	}
	if err := os.MkdirAll(*outDir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	opts := m.ToOptions()
	if m.Cache.Enabled {
		store, err := cache.Open(m.CachePath())
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Cache = store
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, file := range files {
		file := file // per-iteration copy (go 1.21 loop semantics)
		g.Go(func() error {
			var listing bytes.Buffer
			o := opts
			o.Output = &listing
			name, err := buildFile(m, file, *outDir, o)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(out, "%s -> %s\n", file, name)
			_, err = out.Write(listing.Bytes())
			return err
		})
	}
	return g.Wait()
}

// compileFile parses and compiles one script.
func compileFile(m *manifest.Manifest, file string, opts compiler.Options) (*compiler.CompiledUnit, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	script, err := parse.ParseScript(string(src), filepath.Base(file))
	if err != nil {
		return nil, err
	}
	if rel, err := filepath.Rel(m.Dir, file); err == nil {
		script.Path = filepath.ToSlash(rel)
	}
	return compiler.Compile(script, m.UnitName(file), opts)
}

func buildFile(m *manifest.Manifest, file, outDir string, opts compiler.Options) (string, error) {
	cu, err := compileFile(m, file, opts)
	if err != nil {
		return "", err
	}
	data, err := cu.Archive().Marshal()
	if err != nil {
		return "", err
	}
	base := filepath.Join(outDir, m.UnitName(file))
	if err := os.WriteFile(base+ArchiveExt, data, 0644); err != nil {
		return "", err
	}
	if smap := cu.SourceMap(); smap != "" {
		if err := os.WriteFile(base+".smap", []byte(smap), 0644); err != nil {
			return "", err
		}
	}
	return base + ArchiveExt, nil
}
