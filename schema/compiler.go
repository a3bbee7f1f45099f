// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package schema

import "os"

// CompileSchema parses and resolves Blink schema text into a Schema.
func CompileSchema(text string) (*Schema, error) {
	ast, err := ParseSchema(text)
	if err != nil {
		return nil, err
	}
	return ResolveSchema(ast)
}

// CompileSchemaFile reads path and compiles it.
func CompileSchemaFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return CompileSchema(string(data))
}
