// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package registry

import (
	"sync"

	"github.com/blinkprotocol/blink/internal/blinkerr"
	"github.com/blinkprotocol/blink/schema"
)

// SchemaRegistry is a mutable wrapper around a TypeRegistry that supports
// the Dynamic Schema Exchange layer's runtime updates (see dynschema).
// spec.md §4.4 describes only the one operation exposed here,
// ApplyGroupDecl; it is not present in original_source (see DESIGN.md) and
// is designed from that description: it either tags an existing group
// with a numeric id, or inserts a placeholder group carrying only the
// name and id.
//
// A SchemaRegistry is owned by a single logical decode stream; concurrent
// mutation from multiple streams is undefined (spec.md §5), but the mutex
// here still protects the registry against being read by one goroutine
// while dynschema applies an update from another, and lets
// dynschema.DecodeBuffersWithSchemaExchange decode several independent
// buffers concurrently while serializing their registry writes.
type SchemaRegistry struct {
	mu       sync.RWMutex
	registry *TypeRegistry
}

// NewSchemaRegistry wraps an existing TypeRegistry for mutation.
func NewSchemaRegistry(r *TypeRegistry) *SchemaRegistry {
	return &SchemaRegistry{registry: r}
}

// TypeRegistry returns the underlying registry itself, not a copy.
// Callers must not retain it across a subsequent ApplyGroupDecl call
// without re-fetching, since the returned pointer's contents can change
// underneath a concurrent mutation.
func (s *SchemaRegistry) TypeRegistry() *TypeRegistry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry
}

// ApplyGroupDecl tags an existing group named name with typeID, or — when
// no such group is registered yet — inserts a placeholder group carrying
// only the name and the id. It fails if typeID is already held by a
// different group.
func (s *SchemaRegistry) ApplyGroupDecl(name schema.QName, typeID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.registry.byID[typeID]; ok && existing.Name != name {
		return blinkerr.NewRegistry("type id %d already used by %s", typeID, existing.Name)
	}

	group, ok := s.registry.byName[name.String()]
	if !ok {
		group = &schema.GroupDef{Name: name}
		s.registry.byName[name.String()] = group
	}

	id := typeID
	group.TypeID = &id
	s.registry.byID[typeID] = group
	return nil
}
