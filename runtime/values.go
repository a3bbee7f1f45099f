// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package runtime holds the transient value types produced by decoders and
// consumed by encoders: decimals, static group values, and messages.
package runtime

import "github.com/blinkprotocol/blink/schema"

// DecimalValue is the (exponent, mantissa) pair backing Blink's decimal
// primitive: value = mantissa * 10^exponent.
type DecimalValue struct {
	Exponent int64
	Mantissa int64
}

// StaticGroupValue holds the field values of an inline (unframed) group.
type StaticGroupValue struct {
	Fields map[string]interface{}
}

// NewStaticGroupValue copies fields into a new StaticGroupValue.
func NewStaticGroupValue(fields map[string]interface{}) StaticGroupValue {
	copied := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return StaticGroupValue{Fields: copied}
}

// Get returns the named field, or def when absent.
func (s StaticGroupValue) Get(name string, def interface{}) interface{} {
	if v, ok := s.Fields[name]; ok {
		return v
	}
	return def
}

// Message is the runtime representation of a dynamic group: a resolved
// type name, its field values, and any trailing extension messages.
type Message struct {
	TypeName   schema.QName
	Fields     map[string]interface{}
	Extensions []Message
}

// NewMessage builds a Message, copying fields defensively.
func NewMessage(typeName schema.QName, fields map[string]interface{}, extensions []Message) Message {
	copied := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return Message{TypeName: typeName, Fields: copied, Extensions: append([]Message(nil), extensions...)}
}

// Get returns the named field, or def when absent.
func (m Message) Get(name string, def interface{}) interface{} {
	if v, ok := m.Fields[name]; ok {
		return v
	}
	return def
}
