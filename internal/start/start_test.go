// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package start_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinkprotocol/blink/internal/start"
)

func TestRunReturnsFnError(t *testing.T) {
	t.Parallel()

	want := errors.New("boom")
	err := start.Run(context.Background(), time.Second, func(ctx context.Context) error {
		return want
	})
	assert.Equal(t, want, err)
}

func TestRunCancelsFnWhenParentContextIsDone(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	started := make(chan struct{})
	err := start.Run(ctx, 10*time.Millisecond, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunAllReturnsFirstErrorAndCancelsTheRest(t *testing.T) {
	t.Parallel()

	want := errors.New("first failure")
	other := make(chan struct{})

	err := start.RunAll(context.Background(),
		func(ctx context.Context) error { return want },
		func(ctx context.Context) error {
			<-ctx.Done()
			close(other)
			return ctx.Err()
		},
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, want)
	<-other
}
