// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package schema

import (
	"fmt"

	"github.com/blinkprotocol/blink/internal/blinkerr"
)

// resolver walks a SchemaAst into the runtime Schema model: qualifying
// names against the document namespace, collapsing type aliases, resolving
// named references to enum/group types, detecting cycles, and merging
// inline with incremental annotations.
type resolver struct {
	ast       *SchemaAst
	schema    *Schema
	namespace string

	enumAsts  map[string]EnumDefAst
	enumNames map[string]QName
	enumCache map[string]*EnumType

	groupAsts  map[string]GroupDefAst
	groupNames map[string]QName
	groupCache map[string]*GroupDef

	typeDefs  map[string]TypeDefAst
	typeCache map[string]TypeRef

	incrementalAnnotations map[string][]Annotation

	building       map[string]bool
	resolvingTypes map[string]bool
	definitions    map[string]bool
}

// ResolveSchema resolves a parsed SchemaAst into the runtime Schema model.
func ResolveSchema(ast *SchemaAst) (*Schema, error) {
	r := &resolver{
		ast:                    ast,
		schema:                 NewSchema(ast.Namespace),
		namespace:              ast.Namespace,
		enumAsts:               make(map[string]EnumDefAst),
		enumNames:              make(map[string]QName),
		enumCache:              make(map[string]*EnumType),
		groupAsts:              make(map[string]GroupDefAst),
		groupNames:             make(map[string]QName),
		groupCache:             make(map[string]*GroupDef),
		typeDefs:               make(map[string]TypeDefAst),
		typeCache:              make(map[string]TypeRef),
		incrementalAnnotations: make(map[string][]Annotation),
		building:               make(map[string]bool),
		resolvingTypes:         make(map[string]bool),
		definitions:            make(map[string]bool),
	}
	if err := r.registerEnums(ast.Enums); err != nil {
		return nil, err
	}
	if err := r.registerTypeDefs(ast.TypeDefs); err != nil {
		return nil, err
	}
	if err := r.registerGroups(ast.Groups); err != nil {
		return nil, err
	}
	if err := r.indexIncrementalAnnotations(ast.IncrementalAnnotations); err != nil {
		return nil, err
	}
	r.schema.Annotations = r.collectAnnotations(ast.SchemaAnnotations, "schema")

	for key := range r.groupAsts {
		if _, err := r.ensureGroup(key, true); err != nil {
			return nil, err
		}
	}
	return r.schema, nil
}

func (r *resolver) registerEnums(enums []EnumDefAst) error {
	for _, e := range enums {
		qname := r.qualifyDeclName(e.Name)
		key := qname.String()
		if err := r.ensureUniqueName(key); err != nil {
			return err
		}
		r.enumAsts[key] = e
		r.enumNames[key] = qname
	}
	return nil
}

func (r *resolver) registerTypeDefs(defs []TypeDefAst) error {
	for _, d := range defs {
		qname := r.qualifyDeclName(d.Name)
		key := qname.String()
		if err := r.ensureUniqueName(key); err != nil {
			return err
		}
		r.typeDefs[key] = d
	}
	return nil
}

func (r *resolver) registerGroups(groups []GroupDefAst) error {
	for _, g := range groups {
		qname := r.qualifyDeclName(g.Name)
		key := qname.String()
		if err := r.ensureUniqueName(key); err != nil {
			return err
		}
		r.groupAsts[key] = g
		r.groupNames[key] = qname
	}
	return nil
}

func (r *resolver) ensureUniqueName(key string) error {
	if r.definitions[key] {
		return blinkerr.NewSchema("duplicate definition for %s", key)
	}
	r.definitions[key] = true
	return nil
}

func (r *resolver) qualifyDeclName(raw QName) QName {
	namespace := raw.Namespace
	if namespace == "" {
		namespace = r.namespace
	}
	return QName{Namespace: namespace, Name: raw.Name}
}

func (r *resolver) candidateKeys(raw QName) []string {
	if raw.Namespace != "" {
		return []string{raw.String()}
	}
	var out []string
	if r.namespace != "" {
		out = append(out, r.namespace+":"+raw.Name)
	}
	out = append(out, raw.Name)
	return out
}

func (r *resolver) resolveName(raw QName, population map[string]bool, kind string) (string, error) {
	for _, candidate := range r.candidateKeys(raw) {
		if population[candidate] {
			return candidate, nil
		}
	}
	return "", blinkerr.NewSchema("unknown %s %s", kind, raw)
}

func (r *resolver) collectAnnotations(annotations []Annotation, extraKey string) map[QName]string {
	result := make(map[QName]string)
	for _, a := range annotations {
		key := r.qualifyDeclName(a.Name)
		result[key] = a.Value
	}
	if extraKey != "" {
		for _, a := range r.incrementalAnnotations[extraKey] {
			key := r.qualifyDeclName(a.Name)
			result[key] = a.Value
		}
	}
	return result
}

func (r *resolver) ensureGroup(key string, allowPartial bool) (*GroupDef, error) {
	if g, ok := r.groupCache[key]; ok {
		if !allowPartial && r.building[key] {
			return nil, blinkerr.NewSchema("cyclic inheritance involving %s", r.groupNames[key])
		}
		return g, nil
	}
	ast, ok := r.groupAsts[key]
	if !ok {
		return nil, blinkerr.NewSchema("unknown group %s", key)
	}
	annotations := r.collectAnnotations(ast.Annotations, key)
	group := &GroupDef{
		Name:        r.groupNames[key],
		TypeID:      ast.TypeID,
		Annotations: annotations,
	}
	r.groupCache[key] = group
	r.building[key] = true
	defer delete(r.building, key)

	super, err := r.resolveSuper(ast)
	if err != nil {
		return nil, err
	}
	group.Super = super

	fields, err := r.resolveFields(key, ast)
	if err != nil {
		return nil, err
	}
	group.Fields = fields

	if _, ok := r.schema.groups[group.Name.String()]; !ok {
		if err := r.schema.AddGroup(group); err != nil {
			return nil, err
		}
	}
	return group, nil
}

func (r *resolver) resolveSuper(ast GroupDefAst) (*GroupDef, error) {
	if ast.SuperName == nil {
		return nil, nil
	}
	superKey, err := r.resolveName(*ast.SuperName, boolKeys(r.groupAsts), "group")
	if err != nil {
		return nil, err
	}
	return r.ensureGroup(superKey, false)
}

func boolKeys(m map[string]GroupDefAst) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

func (r *resolver) resolveFields(groupKey string, ast GroupDefAst) ([]FieldDef, error) {
	out := make([]FieldDef, 0, len(ast.Fields))
	for _, fieldAst := range ast.Fields {
		typeRef, err := r.resolveType(fieldAst.TypeRef, false)
		if err != nil {
			return nil, err
		}
		annotations := r.collectAnnotations(fieldAst.Annotations, fmt.Sprintf("%s.%s", groupKey, fieldAst.Name))
		out = append(out, FieldDef{
			Name:        fieldAst.Name,
			TypeRef:     typeRef,
			Optional:    fieldAst.Optional,
			Annotations: annotations,
		})
	}
	return out, nil
}

func (r *resolver) resolveType(typeRef TypeRefAst, inSequence bool) (TypeRef, error) {
	switch t := typeRef.(type) {
	case PrimitiveTypeRefAst:
		kind, err := PrimitiveKindFromName(t.Name)
		if err != nil {
			return nil, err
		}
		return PrimitiveType{Primitive: kind}, nil
	case BinaryTypeRefAst:
		if t.Kind != "string" && t.Kind != "binary" && t.Kind != "fixed" {
			return nil, blinkerr.NewSchema("unknown binary type %s", t.Kind)
		}
		size := t.Size
		if size < 0 {
			size = 0
		}
		return NewBinaryType(t.Kind, size)
	case SequenceTypeRefAst:
		if inSequence {
			return nil, blinkerr.NewSchema("blink does not allow nested sequences")
		}
		elementType, err := r.resolveType(t.ElementType, true)
		if err != nil {
			return nil, err
		}
		if _, ok := elementType.(SequenceType); ok {
			return nil, blinkerr.NewSchema("blink does not allow nested sequences")
		}
		return SequenceType{ElementType: elementType}, nil
	case ObjectTypeRefAst:
		return ObjectType{}, nil
	case NamedTypeRefAst:
		return r.resolveNamedType(t)
	}
	return nil, blinkerr.NewSchema("unsupported type reference %#v", typeRef)
}

func (r *resolver) resolveNamedType(ref NamedTypeRefAst) (TypeRef, error) {
	var group *GroupDef
	found := false
	for _, candidate := range r.candidateKeys(ref.Name) {
		if _, ok := r.enumAsts[candidate]; ok {
			if ref.GroupMode != "" {
				return nil, blinkerr.NewSchema("enum %s cannot use group mode %s", r.enumNames[candidate], ref.GroupMode)
			}
			return r.ensureEnum(candidate)
		}
		if _, ok := r.groupAsts[candidate]; ok {
			g, err := r.ensureGroup(candidate, true)
			if err != nil {
				return nil, err
			}
			group = g
			found = true
			break
		}
		if _, ok := r.typeDefs[candidate]; ok {
			return r.ensureTypeDef(candidate)
		}
	}
	if !found {
		return nil, blinkerr.NewSchema("unknown type %s", ref.Name)
	}
	switch ref.GroupMode {
	case "static":
		return StaticGroupRef{Group: group}, nil
	case "dynamic":
		// Some schema description documents (like the Blink schema
		// transport) omit type ids even though they describe dynamic
		// payloads; allow it here and defer strict enforcement to the
		// codec layer.
		return DynamicGroupRef{Group: group}, nil
	default:
		return StaticGroupRef{Group: group}, nil
	}
}

func (r *resolver) ensureTypeDef(key string) (TypeRef, error) {
	if t, ok := r.typeCache[key]; ok {
		return t, nil
	}
	def, ok := r.typeDefs[key]
	if !ok {
		return nil, blinkerr.NewSchema("unknown type definition %s", key)
	}
	if r.resolvingTypes[key] {
		return nil, blinkerr.NewSchema("cyclic type definition involving %s", def.Name)
	}
	r.resolvingTypes[key] = true
	resolved, err := r.resolveType(def.TypeRef, false)
	delete(r.resolvingTypes, key)
	if err != nil {
		return nil, err
	}
	r.typeCache[key] = resolved
	return resolved, nil
}

func (r *resolver) ensureEnum(key string) (*EnumType, error) {
	if e, ok := r.enumCache[key]; ok {
		return e, nil
	}
	ast, ok := r.enumAsts[key]
	if !ok {
		return nil, blinkerr.NewSchema("unknown enum %s", key)
	}
	annotations := r.collectAnnotations(ast.Annotations, key)
	symbols := make(map[string]int64)
	symbolAnnotations := make(map[string]map[QName]string)
	for _, symbolAst := range ast.Symbols {
		if _, ok := symbols[symbolAst.Name]; ok {
			return nil, blinkerr.NewSchema("duplicate enum symbol %s in %s", symbolAst.Name, key)
		}
		symbols[symbolAst.Name] = symbolAst.Value
		symbolKey := fmt.Sprintf("%s.%s", key, symbolAst.Name)
		symbolAnnotations[symbolAst.Name] = r.collectAnnotations(symbolAst.Annotations, symbolKey)
	}
	enum, err := NewEnumType(r.enumNames[key], symbols)
	if err != nil {
		return nil, err
	}
	enum.Annotations = annotations
	enum.SymbolAnnotations = symbolAnnotations
	r.enumCache[key] = enum
	return enum, nil
}

func (r *resolver) indexIncrementalAnnotations(incremental []IncrementalAnnotationAst) error {
	for _, entry := range incremental {
		qname := r.qualifyDeclName(entry.Target.Name)
		baseKey := qname.String()
		member := entry.Target.Member
		key := baseKey
		if member != "" {
			key = baseKey + "." + member
			if ast, ok := r.groupAsts[baseKey]; ok {
				hasField := false
				for _, f := range ast.Fields {
					if f.Name == member {
						hasField = true
						break
					}
				}
				if !hasField {
					return blinkerr.NewSchema("unknown field %s on %s", member, baseKey)
				}
			} else if ast, ok := r.enumAsts[baseKey]; ok {
				hasSymbol := false
				for _, s := range ast.Symbols {
					if s.Name == member {
						hasSymbol = true
						break
					}
				}
				if !hasSymbol {
					return blinkerr.NewSchema("unknown enum symbol %s on %s", member, baseKey)
				}
			} else {
				return blinkerr.NewSchema("unknown component %s for incremental annotation", baseKey)
			}
		} else {
			_, inGroups := r.groupAsts[baseKey]
			_, inEnums := r.enumAsts[baseKey]
			_, inTypeDefs := r.typeDefs[baseKey]
			if !inGroups && !inEnums && !inTypeDefs {
				return blinkerr.NewSchema("unknown component %s for incremental annotation", baseKey)
			}
		}
		r.incrementalAnnotations[key] = append(r.incrementalAnnotations[key], entry.Annotations...)
	}
	return nil
}
