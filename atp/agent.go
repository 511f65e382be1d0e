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

package atp

// AgentCard is a self-describing manifest for an agent. It provides essential
// metadata including the agent's identity, capabilities, skills and security
// requirements. Served at the well-known discovery path.
type AgentCard struct {
	// Name is a human-readable name for the agent.
	Name string `json:"name"`

	// Description is a human-readable description of the agent, assisting
	// users and other agents in understanding its purpose.
	Description string `json:"description,omitempty"`

	// ProtocolVersion is the version of the protocol this agent supports.
	ProtocolVersion ProtocolVersion `json:"protocolVersion"`

	// Capabilities is a declaration of optional capabilities supported by the agent.
	Capabilities AgentCapabilities `json:"capabilities"`

	// SecuritySchemes is a declaration of the security schemes available to
	// authorize requests. Declarative only, the server does not enforce them.
	SecuritySchemes []SecurityScheme `json:"securitySchemes,omitempty"`

	// Skills is the set of skills, or distinct capabilities, that the agent can perform.
	Skills []AgentSkill `json:"skills"`

	// Provider is information about the agent's service provider.
	Provider *AgentProvider `json:"provider,omitempty"`

	// Metadata is optional card metadata.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AgentCapabilities defines optional capabilities supported by an agent.
type AgentCapabilities struct {
	// Streaming indicates the agent supports SSE streaming endpoints.
	Streaming bool `json:"streaming"`

	// PushNotifications indicates the agent can push task updates to a
	// caller-provided endpoint.
	PushNotifications bool `json:"pushNotifications"`
}

// AgentSkill represents a distinct capability or function that an agent can perform.
type AgentSkill struct {
	// Name is a human-readable name for the skill.
	Name string `json:"name"`

	// Description is a detailed description of the skill.
	Description string `json:"description,omitempty"`

	// Examples are example prompts or scenarios that this skill can handle.
	Examples []string `json:"examples,omitempty"`

	// Metadata is optional skill metadata.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SecurityScheme describes an authentication scheme, mirroring the OpenAPI
// security scheme object.
type SecurityScheme struct {
	// Type of the scheme, e.g. "apiKey", "http", "oauth2".
	Type string `json:"type"`

	// Name of the header, query or cookie parameter for apiKey schemes.
	Name string `json:"name,omitempty"`

	// In is the location of the apiKey parameter: "header", "query" or "cookie".
	In string `json:"in,omitempty"`

	// Scheme is the HTTP authorization scheme for http schemes, e.g. "bearer".
	Scheme string `json:"scheme,omitempty"`

	// Description of the scheme.
	Description string `json:"description,omitempty"`
}

// AgentProvider represents the service provider of an agent.
type AgentProvider struct {
	// Organization is the name of the organization providing the agent.
	Organization string `json:"organization"`

	// URL is a website of the organization.
	URL string `json:"url,omitempty"`
}
