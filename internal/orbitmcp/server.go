// Package orbitmcp exposes a running Stage over the Model Context Protocol,
// so an operator or an LLM-driven agent can introspect cluster topology and
// issue invocations without a bespoke client. It is read/invoke-only: there
// is no tool for registering new addressable interfaces, since that is a
// startup-time wiring decision, not an operational one.
package orbitmcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/roasbeef/subtrate/pkg/orbit"
)

// Server wraps an MCP server exposing introspection and invocation tools
// bound to a single Stage.
type Server struct {
	server  *mcp.Server
	stage   *orbit.Stage
	proxies *orbit.ActorProxyFactory
}

// NewServer creates an orbitmcp Server bound to stg, registering every
// introspection and invocation tool.
func NewServer(stg *orbit.Stage) *Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "orbitd",
		Version: "0.1.0",
	}, nil)

	s := &Server{
		server:  mcpServer,
		stage:   stg,
		proxies: orbit.NewActorProxyFactory(stg, 10_000),
	}

	s.registerTools()

	return s
}

// Run serves the MCP server over stdio until ctx is cancelled, matching how
// orbitd's own stdio-mode daemon loop blocks.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "node_status",
		Description: "Report this node's identity, status, and hosted capability list",
	}, s.handleNodeStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "active_handlers",
		Description: "Report the number of currently active local addressable handlers",
	}, s.handleActiveHandlers)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "invoke",
		Description: "Invoke a method on an addressable reference through this node's Stage",
	}, s.handleInvoke)
}
