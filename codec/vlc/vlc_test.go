// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vlc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinkprotocol/blink/codec/vlc"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	values := []int64{0, 1, -1, 63, -64, 64, -65, 127, -128, 8191, -8192, 1 << 20, -(1 << 20), 1<<62 - 1, -(1 << 62)}

	for _, v := range values {
		v := v
		t.Run("", func(t *testing.T) {
			t.Parallel()

			encoded := vlc.Encode(v)
			got, ok, next, err := vlc.Decode(encoded, 0)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, v, got)
			assert.Equal(t, len(encoded), next)
		})
	}
}

func TestEncodeNullRoundTrip(t *testing.T) {
	t.Parallel()

	encoded := vlc.EncodeNull()
	assert.Equal(t, []byte{vlc.NullByte}, encoded)

	got, ok, next, err := vlc.Decode(encoded, 0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(0), got)
	assert.Equal(t, 1, next)
}

func TestDecodeAtOffset(t *testing.T) {
	t.Parallel()

	buf := append(vlc.Encode(5), vlc.Encode(300)...)
	first, ok, next, err := vlc.Decode(buf, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(5), first)

	second, ok, _, err := vlc.Decode(buf, next)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(300), second)
}

func TestDecodeTruncatedBuffer(t *testing.T) {
	t.Parallel()

	encoded := vlc.Encode(1 << 20)
	_, _, _, err := vlc.Decode(encoded[:len(encoded)-1], 0)
	require.Error(t, err)
}
