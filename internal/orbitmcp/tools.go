package orbitmcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NodeStatusResult reports the local node's identity and lifecycle status.
type NodeStatusResult struct {
	NodeIdentity string   `json:"node_identity"`
	ClusterName  string   `json:"cluster_name"`
	Status       string   `json:"status"`
	Capabilities []string `json:"capabilities"`
}

func (s *Server) handleNodeStatus(_ context.Context,
	_ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, NodeStatusResult, error) {

	info := s.stage.NetSystem().Self()

	return nil, NodeStatusResult{
		NodeIdentity: string(info.NodeIdentity),
		ClusterName:  info.ClusterName,
		Status:       info.Status.String(),
		Capabilities: info.Capabilities,
	}, nil
}

// ActiveHandlersResult reports the local handler count.
type ActiveHandlersResult struct {
	ActiveCount int `json:"active_count"`
}

func (s *Server) handleActiveHandlers(_ context.Context,
	_ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, ActiveHandlersResult, error) {

	return nil, ActiveHandlersResult{ActiveCount: s.stage.ActiveCount()}, nil
}

// InvokeArgs are the arguments for the invoke tool.
type InvokeArgs struct {
	// InterfaceID names the addressable interface to call.
	InterfaceID string `json:"interface_id" jsonschema:"Addressable interface to call"`

	// Key identifies the specific addressable instance.
	Key string `json:"key" jsonschema:"Addressable key"`

	// MethodID names the method to invoke.
	MethodID string `json:"method_id" jsonschema:"Method to invoke on the addressable"`

	// Args are the positional arguments passed to the method.
	Args []any `json:"args,omitempty" jsonschema:"Positional method arguments"`

	// TimeoutMillis overrides the call's default timeout, if positive.
	TimeoutMillis int64 `json:"timeout_millis,omitempty" jsonschema:"Call timeout override in milliseconds"`
}

// InvokeResult carries the invocation's return value.
type InvokeResult struct {
	Result any `json:"result"`
}

func (s *Server) handleInvoke(ctx context.Context,
	_ *mcp.CallToolRequest, args InvokeArgs) (*mcp.CallToolResult, InvokeResult, error) {

	proxy := s.proxies.GetReference(args.InterfaceID, args.Key)
	if args.TimeoutMillis > 0 {
		proxy = proxy.WithTimeoutMillis(args.TimeoutMillis)
	}

	result, err := proxy.Invoke(ctx, args.MethodID, args.Args...)
	if err != nil {
		return nil, InvokeResult{}, err
	}

	return nil, InvokeResult{Result: result}, nil
}
