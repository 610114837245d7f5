package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

// groupGoSafe runs fn in an errgroup goroutine and restarts it with
// exponential backoff when it panics. A returned error keeps errgroup
// semantics; ctx cancellation stops the restart loop.
//
// Panics are printed to stderr since the logger may be what panicked.
func groupGoSafe(ctx context.Context, group *errgroup.Group, name string, fn func(context.Context) error) {
	if group == nil || fn == nil {
		return
	}
	group.Go(func() (err error) {
		backoff := 200 * time.Millisecond
		const maxBackoff = 30 * time.Second
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			var recovered any
			func() {
				defer func() { recovered = recover() }()
				err = fn(ctx)
			}()
			if recovered == nil {
				return err
			}

			_, _ = fmt.Fprintf(os.Stderr, "WARN: %s panicked: %v\n%s\n", name, recovered, debug.Stack())
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	})
}
