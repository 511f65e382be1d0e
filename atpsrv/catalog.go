// Copyright 2025 The ATP Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package atpsrv

import (
	"context"

	"github.com/invopop/jsonschema"
)

// Tool is a single invocable capability exposed by the agent. Implementations
// are read-only after startup; the server never mutates a catalog.
type Tool interface {
	// Name is the unique tool name callers address it by.
	Name() string

	// Description is a human-readable summary of what the tool does.
	Description() string

	// Plugin is the logical group the tool belongs to. Tools sharing a plugin
	// are advertised as one skill on the agent card.
	Plugin() string

	// InputSchema describes the tool's expected arguments.
	InputSchema() *jsonschema.Schema

	// Execute runs the tool. Errors are translated into task failures by the
	// dispatcher, never propagated to the transport.
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Catalog is the external registry of invocable tools consumed by the server.
type Catalog interface {
	// Tools returns all registered tools.
	Tools() []Tool
}

// StaticCatalog is a fixed, in-memory [Catalog].
type StaticCatalog struct {
	tools []Tool
}

var _ Catalog = (*StaticCatalog)(nil)

// NewStaticCatalog creates a catalog from a fixed tool list.
func NewStaticCatalog(tools ...Tool) *StaticCatalog {
	return &StaticCatalog{tools: tools}
}

// Tools implements [Catalog].
func (c *StaticCatalog) Tools() []Tool {
	return c.tools
}

// ToolParam declares one argument of a function-backed tool.
type ToolParam struct {
	// Name of the argument.
	Name string
	// Type is the JSON schema type, e.g. "string", "number", "boolean".
	Type string
	// Description of the argument.
	Description string
	// Required marks the argument as mandatory.
	Required bool
}

// ExecuteFunc adapts a plain function to a tool executor.
type ExecuteFunc func(ctx context.Context, args map[string]any) (any, error)

type funcTool struct {
	name        string
	plugin      string
	description string
	schema      *jsonschema.Schema
	execute     ExecuteFunc
}

var _ Tool = (*funcTool)(nil)

// NewTool creates a function-backed tool with an explicit parameter list
// compiled to a JSON schema.
func NewTool(name, plugin, description string, params []ToolParam, execute ExecuteFunc) Tool {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: jsonschema.NewProperties(),
	}
	for _, p := range params {
		schema.Properties.Set(p.Name, &jsonschema.Schema{
			Type:        p.Type,
			Description: p.Description,
		})
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}
	return &funcTool{
		name:        name,
		plugin:      plugin,
		description: description,
		schema:      schema,
		execute:     execute,
	}
}

func (t *funcTool) Name() string                 { return t.name }
func (t *funcTool) Description() string          { return t.description }
func (t *funcTool) Plugin() string               { return t.plugin }
func (t *funcTool) InputSchema() *jsonschema.Schema { return t.schema }

func (t *funcTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	return t.execute(ctx, args)
}

// SchemaFor reflects a JSON schema from a Go struct type using json and
// jsonschema struct tags. Useful for tools with typed argument structs.
func SchemaFor[T any]() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	return reflector.Reflect(new(T))
}
