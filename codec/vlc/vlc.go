// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vlc implements Blink's Variable Length Coding: a stop-bit,
// 7-bit-chunked little-endian integer encoding with a dedicated NULL
// sentinel, used throughout the Compact Binary codec for integers,
// lengths, and counts.
package vlc

import (
	"github.com/blinkprotocol/blink/internal/blinkerr"
)

const (
	nullByte = 0xC0
	stopBit  = 0x80
	signBit  = 0x40
	dataMask = 0x7F
)

// NullByte is the single-byte sentinel that represents an absent value.
const NullByte = nullByte

func encodeChunks(value int64, forceExtended bool) []byte {
	var out []byte
	remaining := value
	isFirst := true
	for {
		b := byte(remaining & dataMask)
		remaining >>= 7
		signSet := b&signBit != 0
		done := (remaining == 0 && !signSet) || (remaining == -1 && signSet)
		if forceExtended && isFirst && done {
			done = false
		}
		if done {
			b |= stopBit
		}
		out = append(out, b)
		if done {
			break
		}
		isFirst = false
	}
	return out
}

// Encode renders value as Blink VLC bytes.
func Encode(value int64) []byte {
	encoded := encodeChunks(value, false)
	if len(encoded) == 1 && encoded[0] == nullByte {
		encoded = encodeChunks(value, true)
	}
	return encoded
}

// EncodeNull renders the VLC NULL sentinel.
func EncodeNull() []byte {
	return []byte{nullByte}
}

// Decode reads a VLC integer from buf starting at offset, returning the
// decoded value (ok=false when the sentinel was read), and the offset of
// the byte following the encoding.
func Decode(buf []byte, offset int) (value int64, ok bool, next int, err error) {
	if offset >= len(buf) {
		return 0, false, offset, blinkerr.NewDecode(offset, "offset beyond end of buffer")
	}
	if buf[offset] == nullByte {
		return 0, false, offset + 1, nil
	}

	var shift uint
	var acc int64
	index := offset
	for {
		if index >= len(buf) {
			return 0, false, index, blinkerr.NewDecode(offset, "truncated VLC value")
		}
		b := buf[index]
		index++
		acc |= int64(b&dataMask) << shift
		shift += 7
		if b&stopBit != 0 {
			if b&signBit != 0 {
				acc |= -1 << shift
			}
			return acc, true, index, nil
		}
	}
}
