// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package registry indexes compiled schema groups by qualified name and by
// numeric type id, for use by every codec during encode/decode dispatch.
package registry

import (
	"github.com/blinkprotocol/blink/internal/blinkerr"
	"github.com/blinkprotocol/blink/schema"
)

// TypeRegistry is an in-memory, dual-indexed map from Blink type
// identifiers (qualified name and numeric type id) to group definitions.
//
// The registry is intentionally lightweight; callers synchronize their own
// concurrent mutation (see SchemaRegistry for the one mutable variant that
// needs it).
type TypeRegistry struct {
	byName map[string]*schema.GroupDef
	byID   map[int64]*schema.GroupDef
}

// NewTypeRegistry builds a registry, optionally pre-populated from s.
func NewTypeRegistry(s *schema.Schema) (*TypeRegistry, error) {
	r := &TypeRegistry{
		byName: make(map[string]*schema.GroupDef),
		byID:   make(map[int64]*schema.GroupDef),
	}
	if s != nil {
		for _, group := range s.Groups() {
			if err := r.RegisterGroup(group); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// RegisterGroup adds group to the registry, failing if its name or id is
// already taken.
func (r *TypeRegistry) RegisterGroup(group *schema.GroupDef) error {
	key := group.Name.String()
	if _, ok := r.byName[key]; ok {
		return blinkerr.NewRegistry("group %s already registered", key)
	}
	if group.TypeID != nil {
		if _, ok := r.byID[*group.TypeID]; ok {
			return blinkerr.NewRegistry("type id %d already registered", *group.TypeID)
		}
		r.byID[*group.TypeID] = group
	}
	r.byName[key] = group
	return nil
}

// GetGroupByName looks up a group by qualified name.
func (r *TypeRegistry) GetGroupByName(name schema.QName) (*schema.GroupDef, error) {
	g, ok := r.byName[name.String()]
	if !ok {
		return nil, blinkerr.NewRegistry("unknown group %s", name)
	}
	return g, nil
}

// GetGroupByID looks up a group by numeric type id.
func (r *TypeRegistry) GetGroupByID(typeID int64) (*schema.GroupDef, error) {
	g, ok := r.byID[typeID]
	if !ok {
		return nil, blinkerr.NewRegistry("unknown type id %d", typeID)
	}
	return g, nil
}

// Contains reports whether name is registered.
func (r *TypeRegistry) Contains(name schema.QName) bool {
	_, ok := r.byName[name.String()]
	return ok
}

// KnownTypeIDs returns every registered numeric type id.
func (r *TypeRegistry) KnownTypeIDs() []int64 {
	out := make([]int64, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	return out
}
