package main

import (
	"context"
	"errors"
	"log"

	"golang.org/x/sync/errgroup"
)

// runWatcher runs loop until ctx ends. The status server is auxiliary: its
// failure is logged and never stops the loop.
func runWatcher(ctx context.Context, loop, status func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop(gctx) })
	if status != nil {
		g.Go(func() error {
			if err := status(gctx); err != nil {
				log.Printf("[http] status server stopped: %v", err)
			}
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
