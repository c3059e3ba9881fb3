package mcptools

import (
	"io/fs"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAll registers all datasmith tools and resources on the given MCP
// server. The embeddedFS provides access to embedded docs served as MCP
// resources.
func RegisterAll(s *mcp.Server, embeddedFS fs.ReadFileFS) {
	registerListTables(s)
	registerDescribeTable(s)
	registerPreviewData(s)
	registerListGenerators(s)

	registerResources(s, embeddedFS)
}
