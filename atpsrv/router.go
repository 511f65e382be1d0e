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
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/atpproject/atp-go/atp"
	"github.com/atpproject/atp-go/internal/taskexec"
	"github.com/atpproject/atp-go/log"
)

// catalogExecutor routes inbound messages to catalog tools. Routing is
// intentionally simple: the first tool whose name appears in the message text
// wins. Arguments come from data parts, with missing numeric parameters
// filled from numbers found in the text, in schema declaration order.
type catalogExecutor struct {
	catalog Catalog
}

var _ taskexec.Executor = (*catalogExecutor)(nil)

// NewCatalogExecutor creates an executor that resolves messages against the
// provided catalog.
func NewCatalogExecutor(catalog Catalog) taskexec.Executor {
	return &catalogExecutor{catalog: catalog}
}

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// Execute implements [taskexec.Executor].
func (e *catalogExecutor) Execute(ctx context.Context, task *atp.Task, message *atp.Message) (*taskexec.Result, error) {
	text := message.Text()
	tool := e.match(text)
	if tool == nil {
		// No tool matched. Echo back so the caller learns what is available.
		names := make([]string, 0, len(e.catalog.Tools()))
		for _, t := range e.catalog.Tools() {
			names = append(names, t.Name())
		}
		artifact := atp.NewArtifact(atp.NewDataPart(map[string]any{
			"message":        "Message received but no matching tool found",
			"text":           text,
			"availableTools": names,
		}))
		return &taskexec.Result{Artifact: artifact, Message: "no matching tool"}, nil
	}

	log.Info(ctx, "routing message to tool", "task_id", task.ID, "tool", tool.Name())

	args := collectArgs(message)
	fillNumericArgs(tool, args, text)

	result, err := tool.Execute(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("tool %s failed: %w", tool.Name(), err)
	}

	artifact := atp.NewArtifact(atp.NewDataPart(result))
	artifact.Metadata = map[string]any{"tool": tool.Name()}
	return &taskexec.Result{Artifact: artifact, Message: "executed " + tool.Name()}, nil
}

func (e *catalogExecutor) match(text string) Tool {
	lower := strings.ToLower(text)
	for _, tool := range e.catalog.Tools() {
		if strings.Contains(lower, strings.ToLower(tool.Name())) {
			return tool
		}
	}
	return nil
}

// collectArgs merges the maps of all data parts of the message.
func collectArgs(message *atp.Message) map[string]any {
	args := make(map[string]any)
	for _, part := range message.Parts {
		if data, ok := part.Data().(map[string]any); ok {
			for k, v := range data {
				args[k] = v
			}
		}
	}
	return args
}

// fillNumericArgs assigns numbers found in the text to the tool's numeric
// parameters, in schema declaration order, skipping parameters already set.
func fillNumericArgs(tool Tool, args map[string]any, text string) {
	schema := tool.InputSchema()
	if schema == nil || schema.Properties == nil {
		return
	}

	numbers := numberPattern.FindAllString(text, -1)
	next := 0
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		if next >= len(numbers) {
			return
		}
		name, prop := pair.Key, pair.Value
		if prop.Type != "number" && prop.Type != "integer" {
			continue
		}
		if _, ok := args[name]; ok {
			continue
		}
		if v, err := strconv.ParseFloat(numbers[next], 64); err == nil {
			args[name] = v
			next++
		}
	}
}
