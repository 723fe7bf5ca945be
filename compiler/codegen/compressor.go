package codegen

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	rt "github.com/chazu/esdraft/runtime"
)

// compressor compresses function sources in the background while the
// generator emits code. Each submission yields a future that is joined when
// the function's runtime-info method is emitted.
type compressor struct {
	enabled bool
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	closed  bool
}

type sourceFuture struct {
	done chan struct{}
	text string
	err  error
}

var noSource = func() *sourceFuture {
	f := &sourceFuture{done: make(chan struct{}), text: rt.NoSource}
	close(f.done)
	return f
}()

func newCompressor(enabled bool) *compressor {
	c := &compressor{enabled: enabled}
	if !enabled {
		return c
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.group, c.ctx = errgroup.WithContext(ctx)
	c.cancel = cancel
	c.group.SetLimit(runtime.GOMAXPROCS(0))
	return c
}

// submit schedules src for compression. A disabled compressor, or an empty
// source, resolves immediately to NoSource.
func (c *compressor) submit(src string) *sourceFuture {
	if !c.enabled || src == "" {
		return noSource
	}
	f := &sourceFuture{done: make(chan struct{})}
	c.group.Go(func() error {
		defer close(f.done)
		if err := c.ctx.Err(); err != nil {
			f.text, f.err = rt.NoSource, err
			return nil
		}
		f.text, f.err = rt.CompressSource(src)
		return f.err
	})
	return f
}

// get waits for the compressed source.
func (f *sourceFuture) get() (string, error) {
	<-f.done
	return f.text, f.err
}

// close cancels pending work and waits for running tasks. Later calls
// return nil.
func (c *compressor) close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if !c.enabled {
		return nil
	}
	c.cancel()
	return c.group.Wait()
}
