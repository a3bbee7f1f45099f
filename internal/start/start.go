// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package start runs blinkctl's long-lived subcommands (the schema
// exchange watcher) under a signal-driven shutdown, and fans independent
// loops of a single run out across goroutines.
package start

import (
	"context"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"
)

func signalsToCatch() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// RunFunc is a unit of long-running work: it blocks until ctx is done or
// it fails on its own, and its error (if any) becomes the run's result.
type RunFunc func(ctx context.Context) error

// Run executes fn under a context that is canceled on SIGINT, and gives
// fn up to stopTimeout after cancellation to return before Run gives up
// and returns anyway. fn's error, if any, is always returned; a timeout
// expiring before fn returns is not itself reported as an error.
func Run(ctx context.Context, stopTimeout time.Duration, fn RunFunc) error {
	sigCtx, stop := signal.NotifyContext(ctx, signalsToCatch()...)
	defer stop()

	result := make(chan error, 1)
	go func() { result <- fn(sigCtx) }()

	select {
	case err := <-result:
		return err
	case <-sigCtx.Done():
	}

	select {
	case err := <-result:
		return err
	case <-time.After(stopTimeout):
		return nil
	}
}

// RunAll runs every fn concurrently, canceling the rest as soon as one
// returns an error, and returns the first such error (or nil once every
// fn has returned cleanly).
func RunAll(ctx context.Context, fns ...RunFunc) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		fn := fn
		group.Go(func() error { return fn(groupCtx) })
	}
	return group.Wait()
}
