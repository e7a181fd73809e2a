// Package mcp bridges Model Context Protocol tool results into the stream
// scanner's wire format, so MCP-backed tools and recorded MCP sessions flow
// through the same normalization path as direct transport parts.
package mcp

import (
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vizorai/canvas/internal/stream"
)

// PartFromCallToolResult wraps an MCP tool result into a terminal stream
// part. The result's structured content, when present, becomes the inner
// result object; otherwise the concatenated text content is carried as a
// nested JSON string for the normalizer to parse. Error results stay on the
// same path and are skipped downstream.
func PartFromCallToolResult(toolName, toolCallID string, res *mcp.CallToolResult) stream.Part {
	part := stream.Part{
		ToolName:   toolName,
		ToolCallID: toolCallID,
		State:      stream.StateOutputAvailable,
	}
	if res == nil {
		part.State = stream.StateError
		return part
	}

	inner := map[string]any{
		"success": !res.IsError,
		"isError": res.IsError,
	}
	if sc, ok := res.StructuredContent.(map[string]any); ok {
		for k, v := range sc {
			if _, taken := inner[k]; !taken {
				inner[k] = v
			}
		}
	} else if text := textContent(res); text != "" {
		inner["content"] = text
	}

	part.Output = map[string]any{
		"structuredContent": map[string]any{
			"result": []any{inner},
		},
	}
	return part
}

// textContent concatenates the text blocks of a result.
func textContent(res *mcp.CallToolResult) string {
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}
