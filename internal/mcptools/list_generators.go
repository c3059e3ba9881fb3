package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tomfevang/datasmith/internal/populate"
)

type listGeneratorsArgs struct{}

func registerListGenerators(s *mcp.Server) {
	mcp.AddTool(s, &mcp.Tool{
		Name: "list_generators",
		Description: "List the fake-value provider methods accepted by faker column specs " +
			"and callable from script templates. Takes no arguments.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, handleListGenerators)
}

func handleListGenerators(_ context.Context, _ *mcp.CallToolRequest, _ listGeneratorsArgs) (*mcp.CallToolResult, any, error) {
	methods := populate.New().Methods()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Provider methods (%d):\n", len(methods))
	for i := 0; i < len(methods); i += 8 {
		end := i + 8
		if end > len(methods) {
			end = len(methods)
		}
		fmt.Fprintf(&sb, "  %s\n", strings.Join(methods[i:end], ", "))
	}

	return textResult(sb.String()), nil, nil
}
