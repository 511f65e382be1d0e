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
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/atpproject/atp-go/atp"
	"github.com/atpproject/atp-go/log"
)

// WellKnownAgentCardPath is the standard HTTP path for retrieving the agent card.
const WellKnownAgentCardPath = "/.well-known/agent-card"

// CardGenerator builds a deterministic [atp.AgentCard] from a [Catalog].
// Configuration methods are meant for startup wiring and are not safe for
// concurrent use with Generate.
type CardGenerator struct {
	name        string
	description string
	provider    *atp.AgentProvider

	schemes      []atp.SecurityScheme
	capabilities atp.AgentCapabilities

	catalog Catalog
}

// NewCardGenerator creates a card generator for the given catalog. Streaming
// is advertised by default since the server always exposes SSE endpoints.
func NewCardGenerator(name, description string, catalog Catalog) *CardGenerator {
	return &CardGenerator{
		name:        name,
		description: description,
		catalog:     catalog,
		capabilities: atp.AgentCapabilities{
			Streaming:         true,
			PushNotifications: false,
		},
	}
}

// SetProvider sets the provider information advertised on the card.
func (g *CardGenerator) SetProvider(provider *atp.AgentProvider) {
	g.provider = provider
}

// AddSecurityScheme appends an authentication scheme to the card. Schemes are
// declarative; the server does not enforce them.
func (g *CardGenerator) AddSecurityScheme(scheme atp.SecurityScheme) {
	g.schemes = append(g.schemes, scheme)
}

// SetCapabilities overrides the advertised capabilities.
func (g *CardGenerator) SetCapabilities(capabilities atp.AgentCapabilities) {
	g.capabilities = capabilities
}

// Generate builds the agent card. It is a pure function of the generator
// configuration and the catalog: repeated calls with an unchanged catalog
// produce structurally equal cards.
func (g *CardGenerator) Generate() *atp.AgentCard {
	return &atp.AgentCard{
		Name:            g.name,
		Description:     g.description,
		ProtocolVersion: atp.Version,
		Capabilities:    g.capabilities,
		SecuritySchemes: slices.Clone(g.schemes),
		Skills:          g.skills(),
		Provider:        g.provider,
		Metadata: map[string]any{
			"totalTools": len(g.catalog.Tools()),
		},
	}
}

// skills groups catalog tools by plugin, one skill per plugin. Plugins and
// tools are sorted by name so the output is deterministic regardless of
// catalog iteration order.
func (g *CardGenerator) skills() []atp.AgentSkill {
	byPlugin := make(map[string][]Tool)
	for _, tool := range g.catalog.Tools() {
		plugin := tool.Plugin()
		if plugin == "" {
			plugin = "unknown"
		}
		byPlugin[plugin] = append(byPlugin[plugin], tool)
	}

	plugins := make([]string, 0, len(byPlugin))
	for plugin := range byPlugin {
		plugins = append(plugins, plugin)
	}
	slices.Sort(plugins)

	skills := make([]atp.AgentSkill, 0, len(plugins))
	for _, plugin := range plugins {
		tools := byPlugin[plugin]
		slices.SortFunc(tools, func(a, b Tool) int {
			return strings.Compare(a.Name(), b.Name())
		})

		names := make([]string, len(tools))
		for i, tool := range tools {
			names[i] = tool.Name()
		}

		var examples []string
		for _, tool := range tools[:min(3, len(tools))] {
			examples = append(examples, fmt.Sprintf("%s: %s", tool.Name(), tool.Description()))
		}

		skills = append(skills, atp.AgentSkill{
			Name:        plugin,
			Description: "Tools: " + strings.Join(names, ", "),
			Examples:    examples,
			Metadata: map[string]any{
				"toolCount": len(tools),
				"tools":     names,
			},
		})
	}
	return skills
}

// NewAgentCardHandler creates an [http.Handler] serving the public agent card.
// The card can be queried from any origin.
func NewAgentCardHandler(generator *CardGenerator) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		ctx := attachLogger(req)
		if req.Method == http.MethodOptions {
			writePublicCardHTTPOptions(rw, req)
			rw.WriteHeader(http.StatusOK)
			return
		}
		if req.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		cardBytes, err := json.Marshal(generator.Generate())
		if err != nil {
			log.Error(ctx, "agent card marshaling failed", err)
			rw.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeAgentCardBytes(ctx, rw, req, cardBytes)
	})
}

func attachLogger(req *http.Request) context.Context {
	logger := log.LoggerFrom(req.Context())
	withAttrs := logger.With(
		"method", req.Method,
		"host", req.Host,
		"remote_addr", req.RemoteAddr,
	)
	return log.AttachLogger(req.Context(), withAttrs)
}

func writePublicCardHTTPOptions(rw http.ResponseWriter, req *http.Request) {
	writeCORSHeaders(rw, req)
	rw.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	rw.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	rw.Header().Set("Access-Control-Max-Age", "86400")
}

func writeAgentCardBytes(ctx context.Context, rw http.ResponseWriter, req *http.Request, bytes []byte) {
	writeCORSHeaders(rw, req)
	rw.Header().Set("Content-Type", "application/json")
	if _, err := rw.Write(bytes); err != nil {
		log.Error(ctx, "failed to write agent card response", err)
	}
}

func writeCORSHeaders(rw http.ResponseWriter, req *http.Request) {
	origin := req.Header.Get("Origin")
	if origin != "" {
		rw.Header().Set("Access-Control-Allow-Origin", origin)
		rw.Header().Set("Access-Control-Allow-Credentials", "true")
		rw.Header().Set("Vary", "Origin")
	} else {
		rw.Header().Set("Access-Control-Allow-Origin", "*")
	}
}
