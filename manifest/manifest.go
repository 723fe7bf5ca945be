// Package manifest handles esdraft.toml project configuration.
package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/esdraft/compiler"
	"github.com/chazu/esdraft/compiler/codegen"
)

// FileName is the name of the project configuration file.
const FileName = "esdraft.toml"

// Manifest represents an esdraft.toml project configuration.
type Manifest struct {
	Project  Project        `toml:"project"`
	Source   Source         `toml:"source"`
	Compiler CompilerConfig `toml:"compiler"`
	Cache    CacheConfig    `toml:"cache"`

	// Dir is the directory containing the esdraft.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures script locations.
type Source struct {
	Dirs []string `toml:"dirs"`
	// Extensions lists the file suffixes treated as scripts.
	Extensions []string `toml:"extensions"`
}

// CompilerConfig mirrors compiler.Options. Zero limits select the
// compiler's defaults.
type CompilerConfig struct {
	StatementsThreshold int    `toml:"statements-threshold"`
	MaxMethodSize       int    `toml:"max-method-size"`
	MaxStringSize       int    `toml:"max-string-size"`
	IncludeSource       bool   `toml:"include-source"`
	Debug               string `toml:"debug"` // "", "debug" or "full"
	SourceMap           bool   `toml:"source-map"`
}

// CacheConfig configures the compiled-unit cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns the configuration used when a directory has no
// esdraft.toml.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if len(m.Source.Extensions) == 0 {
		m.Source.Extensions = []string{".js"}
	}
	if m.Cache.Path == "" {
		m.Cache.Path = filepath.Join(".esdraft", "cache.db")
	}
}

// Load parses an esdraft.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	switch m.Compiler.Debug {
	case "", "debug", "full":
	default:
		return nil, fmt.Errorf("%s: compiler.debug must be \"debug\" or \"full\", got %q", path, m.Compiler.Debug)
	}
	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find an esdraft.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// ScriptFiles lists the scripts under the source directories, sorted.
// Missing source directories are skipped.
func (m *Manifest) ScriptFiles() ([]string, error) {
	var files []string
	for _, root := range m.SourceDirPaths() {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) && path == root {
					return filepath.SkipDir
				}
				return err
			}
			if !d.IsDir() && m.isScript(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}

func (m *Manifest) isScript(path string) bool {
	for _, ext := range m.Source.Extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// CachePath returns the absolute path of the cache database.
func (m *Manifest) CachePath() string {
	if filepath.IsAbs(m.Cache.Path) {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}

// ToOptions converts the [compiler] table to compiler options. The cache is
// left unset; callers open it from CachePath.
func (m *Manifest) ToOptions() compiler.Options {
	c := m.Compiler
	opts := compiler.Options{
		Limits: codegen.Limits{
			StatementsThreshold: c.StatementsThreshold,
			MaxMethodSize:       c.MaxMethodSize,
			MaxStringSize:       c.MaxStringSize,
		},
		IncludeSource: c.IncludeSource,
	}
	switch c.Debug {
	case "debug":
		opts.Flags |= compiler.Debug
	case "full":
		opts.Flags |= compiler.Debug | compiler.FullDebug
	}
	if c.SourceMap {
		opts.Flags |= compiler.SourceMap
	}
	return opts
}
