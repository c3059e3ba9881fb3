package mcptools

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// registerResources registers embedded docs as MCP resources so that AI
// clients automatically discover them when the server is connected.
func registerResources(s *mcp.Server, embeddedFS fs.ReadFileFS) {
	registerGuideResource(s, embeddedFS,
		"usage-guide",
		"DataSmith usage guide",
		"Walkthrough of the command server protocol and the generator kinds: "+
			"connecting to a database, requesting generation jobs, polling progress, "+
			"paging packets, and committing inserts. Read this resource before "+
			"driving datasmith from a client.",
		"docs/usage.md",
	)
}

func registerGuideResource(
	s *mcp.Server,
	embeddedFS fs.ReadFileFS,
	name, title, description, path string,
) {
	uri := "guide://" + name

	s.AddResource(&mcp.Resource{
		Name:        name,
		URI:         uri,
		Title:       title,
		Description: description,
		MIMEType:    "text/markdown",
	}, func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		data, err := embeddedFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading embedded guide %s: %w", name, err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      req.Params.URI,
					MIMEType: "text/markdown",
					Text:     string(data),
				},
			},
		}, nil
	})
}
