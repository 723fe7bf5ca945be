package main

import (
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/chazu/esdraft/cache"
	"github.com/chazu/esdraft/manifest"
)

func cacheCommand(out io.Writer, m *manifest.Manifest, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: esdc cache list|purge")
	}
	store, err := cache.Open(m.CachePath())
	if err != nil {
		return err
	}
	defer store.Close()

	switch args[0] {
	case "list":
		entries, err := store.List()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "UNIT\tSIZE\tCREATED\tKEY")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", e.Unit, e.Size, e.Created.Format(time.RFC3339), shortKey(e.Key))
		}
		return w.Flush()

	case "purge":
		fs := flag.NewFlagSet("purge", flag.ContinueOnError)
		olderThan := fs.Duration("older-than", 0, "Only remove entries older than this")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		var before time.Time
		if *olderThan > 0 {
			before = time.Now().Add(-*olderThan)
		}
		n, err := store.Purge(before)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "purged %d archive(s)\n", n)
		return nil
	}
	return fmt.Errorf("unknown cache command %q", args[0])
}

func shortKey(k string) string {
	if len(k) > 16 {
		return k[:16]
	}
	return k
}
