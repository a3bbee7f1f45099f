// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynschema

import (
	"context"
	"sync"

	"github.com/blinkprotocol/blink/codec/compact"
	"github.com/blinkprotocol/blink/registry"
	"github.com/blinkprotocol/blink/runtime"
)

// AliveRequest and AliveResponse report whether a Session is still
// processing schema updates, and which type ids it currently knows about.
type AliveRequest struct{}

type AliveResponse struct {
	KnownTypeIDs []int64
}

// Heartbeat is sent periodically by a schema exchange client, listing the
// type ids declared by the schema transport updates it has applied so far.
type Heartbeat struct {
	AppliedTypeIDs []int64
}

// Update is sent by a Session to a client in response to a Heartbeat,
// carrying any schema transport messages the client has not yet applied.
type Update struct {
	Pending []runtime.Message
}

// Session wraps a SchemaRegistry with the bookkeeping needed to replay
// schema transport messages to clients that connect or reconnect
// mid-stream: every applied message is retained so a late subscriber can
// catch up instead of missing updates that preceded it.
type Session struct {
	mu       sync.Mutex
	registry *registry.SchemaRegistry
	applied  []runtime.Message
	byTypeID map[int64]bool
}

// NewSession wraps reg for a single exchange session.
func NewSession(reg *registry.SchemaRegistry) *Session {
	return &Session{registry: reg, byTypeID: make(map[int64]bool)}
}

// Alive reports the type ids currently registered, letting a caller
// confirm the session is live and see its current view of the schema.
func (s *Session) Alive(ctx context.Context, req *AliveRequest) (*AliveResponse, error) {
	return &AliveResponse{KnownTypeIDs: s.registry.TypeRegistry().KnownTypeIDs()}, nil
}

// Apply runs message through ApplySchemaUpdate and, on success, records it
// so future heartbeats can be answered without re-decoding the stream.
func (s *Session) Apply(message runtime.Message) error {
	if err := ApplySchemaUpdate(s.registry, message); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	group, err := s.registry.TypeRegistry().GetGroupByName(message.TypeName)
	if err == nil && group.TypeID != nil {
		s.byTypeID[*group.TypeID] = true
	}
	s.applied = append(s.applied, message)
	return nil
}

// IngestStream decodes every Compact Binary frame in buf, routing schema
// transport messages through Apply (so Subscribe can later replay them to
// a catching-up client) and collecting every other frame as an
// application message to return to the caller.
func (s *Session) IngestStream(buf []byte, strict bool) ([]runtime.Message, error) {
	var messages []runtime.Message
	offset := 0
	for offset < len(buf) {
		typeRegistry := s.registry.TypeRegistry()
		msg, next, err := compact.DecodeMessage(buf, offset, typeRegistry, strict)
		if err != nil {
			return nil, err
		}
		offset = next

		group, err := typeRegistry.GetGroupByName(msg.TypeName)
		if err != nil {
			return nil, err
		}
		if group.TypeID != nil && IsSchemaTransportMessage(*group.TypeID) {
			if err := s.Apply(msg); err != nil {
				return nil, err
			}
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Subscribe answers every Heartbeat received on toServer with an Update
// naming the transport messages the client has not reported applying. It
// blocks until ctx is done or toServer is closed.
func (s *Session) Subscribe(ctx context.Context, toServer <-chan Heartbeat, toClient chan<- Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case hb, ok := <-toServer:
			if !ok {
				return nil
			}
			update := s.diff(hb.AppliedTypeIDs)
			select {
			case toClient <- update:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *Session) diff(known []int64) Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int64]bool, len(known))
	for _, id := range known {
		seen[id] = true
	}

	var pending []runtime.Message
	for _, msg := range s.applied {
		id, ok := requireInt64(msg.Fields["Id"])
		if !ok {
			continue
		}
		if !seen[id] {
			pending = append(pending, msg)
		}
	}
	return Update{Pending: pending}
}
