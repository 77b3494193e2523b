// Package orbitdocs renders a Stage's live runtime topology — node
// identity, hosted capabilities, and active handler count — as an HTML
// status page, for operators who want a glance at a node without a full
// MCP or orbitctl round trip.
package orbitdocs

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/roasbeef/subtrate/pkg/orbit"
)

// BuildTopologyMarkdown renders stg's current topology as Markdown: node
// identity and status, the interfaces it can host, and its active handler
// count. It is regenerated on every call, so the result always reflects
// the Stage's live state rather than a snapshot taken at startup.
func BuildTopologyMarkdown(stg *orbit.Stage) string {
	info := stg.NetSystem().Self()

	var b strings.Builder

	fmt.Fprintf(&b, "# Node `%s`\n\n", info.NodeIdentity)
	fmt.Fprintf(&b, "- **Cluster:** %s\n", info.ClusterName)
	fmt.Fprintf(&b, "- **Status:** %s\n", info.Status)
	fmt.Fprintf(&b, "- **Active handlers:** %d\n\n", stg.ActiveCount())

	fmt.Fprintln(&b, "## Hosted capabilities")
	fmt.Fprintln(&b)

	if len(info.Capabilities) == 0 {
		fmt.Fprintln(&b, "_none registered_")
		return b.String()
	}

	capabilities := append([]string(nil), info.Capabilities...)
	sort.Strings(capabilities)

	for _, c := range capabilities {
		fmt.Fprintf(&b, "- `%s`\n", c)
	}

	return b.String()
}

// RenderHTML converts markdown to HTML using goldmark with GitHub-flavored
// extensions, falling back to escaped plain text if conversion fails.
func RenderHTML(markdown string) template.HTML {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)

	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(markdown))
	}

	return template.HTML(buf.String())
}
