package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/halverson/skald/internal/pipeline"
	"github.com/halverson/skald/internal/storage"
)

// MCPServer exposes document search and memory over the Model Context
// Protocol so external agents can use the index as a tool.
type MCPServer struct {
	retriever pipeline.ContextRetriever
	memory    MemoryReader
	documents DocumentLister
	threshold float32
}

// MemoryReader reads a memory target's markdown content.
type MemoryReader interface {
	Read(target string) (string, error)
}

// DocumentLister lists indexed documents.
type DocumentLister interface {
	ListDocuments() ([]storage.Document, error)
}

// NewMCPServer wires the MCP tool surface.
func NewMCPServer(retriever pipeline.ContextRetriever, memoryStore MemoryReader, documents DocumentLister, threshold float32) *MCPServer {
	return &MCPServer{
		retriever: retriever,
		memory:    memoryStore,
		documents: documents,
		threshold: threshold,
	}
}

// ServeStdio blocks serving MCP requests over stdin/stdout.
func (m *MCPServer) ServeStdio(version string) error {
	s := server.NewMCPServer("skald", version)

	s.AddTool(
		mcp.NewTool("search_documents",
			mcp.WithDescription("Search the indexed documents and return the most relevant chunks with sources."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Natural language search query")),
		),
		m.handleSearchDocuments,
	)

	s.AddTool(
		mcp.NewTool("read_memory",
			mcp.WithDescription("Read the stored memory for a target: user or company."),
			mcp.WithString("target", mcp.Required(), mcp.Description("Memory target, user or company")),
		),
		m.handleReadMemory,
	)

	s.AddTool(
		mcp.NewTool("list_documents",
			mcp.WithDescription("List all indexed documents with their chunk counts."),
		),
		m.handleListDocuments,
	)

	return server.ServeStdio(s)
}

func (m *MCPServer) handleSearchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcpError("query is required"), nil
	}

	chunks, err := m.retriever.Retrieve(ctx, query)
	if err != nil {
		return mcpError(fmt.Sprintf("search failed: %v", err)), nil
	}

	var b strings.Builder
	found := 0
	for _, c := range chunks {
		if c.Distance >= m.threshold {
			continue
		}
		found++
		fmt.Fprintf(&b, "[%d] %s (chunk %d, distance %.3f)\n%s\n\n", found, c.Source, c.ChunkIndex+1, c.Distance, c.Text)
	}
	if found == 0 {
		return mcpText("No relevant chunks found."), nil
	}
	return mcpText(b.String()), nil
}

func (m *MCPServer) handleReadMemory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireString("target")
	if err != nil {
		return mcpError("target is required"), nil
	}

	content, err := m.memory.Read(target)
	if err != nil {
		return mcpError(fmt.Sprintf("reading memory failed: %v", err)), nil
	}
	return mcpText(content), nil
}

func (m *MCPServer) handleListDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := m.documents.ListDocuments()
	if err != nil {
		return mcpError(fmt.Sprintf("listing documents failed: %v", err)), nil
	}
	if len(docs) == 0 {
		return mcpText("No documents indexed."), nil
	}

	var b strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&b, "- %s (%s, %d chunks, uploaded %s)\n", d.Filename, d.FileType, d.ChunkCount, d.UploadedAt.Format("2006-01-02"))
	}
	return mcpText(b.String()), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return mcp.NewToolResultText(text)
}

func mcpError(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}
