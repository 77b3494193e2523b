package orbitdocs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/subtrate/internal/orbitcore/capability"
	"github.com/roasbeef/subtrate/internal/orbitcore/directory"
	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
	"github.com/roasbeef/subtrate/internal/orbitcore/transport"
	"github.com/roasbeef/subtrate/pkg/orbit"
)

type noopAddressable struct{}

func (noopAddressable) Invoke(_ context.Context, _ string, _ []any) (any, error) {
	return nil, nil
}

func newTestDocsStage(t *testing.T) *orbit.Stage {
	t.Helper()

	node := netid.NodeIdentity("docs-test-node")
	tp := transport.NewInMemoryTransport(node)
	t.Cleanup(tp.Close)

	cfg := orbit.DefaultConfig()
	cfg.NodeIdentity = node
	cfg.ClusterName = "docs-test-cluster"
	cfg.TickRateMillis = 50

	stg := orbit.NewStage(cfg, directory.NewMemoryBackend(), tp)
	stg.Register(capability.Definition{
		InterfaceID:   "Widget",
		Lifecycle:     capability.LifecyclePolicy{AutoActivate: true, AutoDeactivate: true},
		Routing:       capability.RoutingPolicy{PreferLocal: true},
		TimeoutMillis: 5000,
	}, func() any { return noopAddressable{} })

	require.NoError(t, stg.Start(context.Background()))
	t.Cleanup(func() { stg.Stop(context.Background()) })

	return stg
}

func TestBuildTopologyMarkdownListsCapabilities(t *testing.T) {
	t.Parallel()

	stg := newTestDocsStage(t)
	markdown := BuildTopologyMarkdown(stg)

	require.Contains(t, markdown, "docs-test-node")
	require.Contains(t, markdown, "docs-test-cluster")
	require.Contains(t, markdown, "`Widget`")
}

func TestRenderHTMLProducesHeading(t *testing.T) {
	t.Parallel()

	html := RenderHTML("# Hello\n\n- one\n- two\n")
	require.Contains(t, string(html), "<h1")
	require.Contains(t, string(html), "<li>one</li>")
}

func TestRenderHTMLEmptyInputRendersEmpty(t *testing.T) {
	t.Parallel()

	html := RenderHTML("")
	require.Equal(t, "", string(html))
}
