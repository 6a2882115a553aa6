// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes postcard tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/postcards/internal/apperr"
	"github.com/starford/postcards/internal/models"
	"github.com/starford/postcards/internal/postcards"
)

// FormatURI identifies the postcard format resource.
const FormatURI = "postcards://format"

// PostcardService is the postcard lifecycle used by the tools.
type PostcardService interface {
	List(ctx context.Context) ([]models.Postcard, error)
	Get(ctx context.Context, id string) (*models.Postcard, error)
	Create(ctx context.Context, in postcards.Input) (*models.Postcard, error)
	Update(ctx context.Context, id string, in postcards.Input) (*models.Postcard, error)
	Delete(ctx context.Context, id string) error
}

// VerseLookup resolves a scripture reference.
type VerseLookup interface {
	Lookup(ctx context.Context, reference string) (*models.VerseLookupResult, error)
}

// Server wraps the MCP server with postcard tools.
type Server struct {
	mcp    *server.MCPServer
	svc    PostcardService
	verses VerseLookup
}

// New creates a new MCP server with all postcard tools registered.
func New(svc PostcardService, verses VerseLookup) *Server {
	s := &Server{svc: svc, verses: verses}

	s.mcp = server.NewMCPServer(
		"Postcards",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_postcards",
		mcp.WithDescription("List all postcards, most recently updated first."),
	), s.listPostcards)

	s.mcp.AddTool(mcp.NewTool("get_postcard",
		mcp.WithDescription("Read one postcard by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Postcard id")),
	), s.getPostcard)

	s.mcp.AddTool(mcp.NewTool("create_postcard",
		append([]mcp.ToolOption{
			mcp.WithDescription("Create a postcard. Reference and text are required. " +
				"Read the format via get_postcard_format or the " + FormatURI + " resource first."),
		}, withPostcardFields()...)...,
	), s.createPostcard)

	s.mcp.AddTool(mcp.NewTool("update_postcard",
		append([]mcp.ToolOption{
			mcp.WithDescription("Replace every field of an existing postcard. " +
				"Omitted notes are cleared and omitted tags become an empty list."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Postcard id")),
		}, withPostcardFields()...)...,
	), s.updatePostcard)

	s.mcp.AddTool(mcp.NewTool("delete_postcard",
		mcp.WithDescription("Permanently delete a postcard."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Postcard id")),
	), s.deletePostcard)

	s.mcp.AddTool(mcp.NewTool("lookup_verse",
		mcp.WithDescription("Fetch the text of a Bible passage, e.g. \"John 3:16\" or \"Psalm 23:1-3\"."),
		mcp.WithString("reference", mcp.Required(), mcp.Description("Scripture reference")),
	), s.lookupVerse)

	s.mcp.AddTool(mcp.NewTool("get_postcard_format",
		mcp.WithDescription("Returns the postcard field contract. "+
			"Call this before creating or updating postcards."),
	), s.getPostcardFormat)

	s.mcp.AddResource(
		mcp.NewResource(FormatURI, "Postcard Format",
			mcp.WithResourceDescription("Fields of a postcard and how the tools treat them."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

func withPostcardFields() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("reference", mcp.Required(), mcp.Description("Scripture reference, e.g. John 3:16")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Verse text")),
		mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Free-form labels")),
		mcp.WithString("commentary", mcp.Description("Optional commentary")),
		mcp.WithString("personalThoughts", mcp.Description("Optional personal thoughts")),
		mcp.WithString("questions", mcp.Description("Optional questions")),
	}
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listPostcards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(items)
}

func (s *Server) getPostcard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.svc.Get(ctx, id)
	if err != nil {
		return toolError(id, err), nil
	}
	return jsonResult(p)
}

func (s *Server) createPostcard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := postcardInput(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.svc.Create(ctx, in)
	if err != nil {
		return toolError("", err), nil
	}
	return jsonResult(p)
}

func (s *Server) updatePostcard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in, err := postcardInput(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.svc.Update(ctx, id, in)
	if err != nil {
		return toolError(id, err), nil
	}
	return jsonResult(p)
}

func (s *Server) deletePostcard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Delete(ctx, id); err != nil {
		return toolError(id, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) lookupVerse(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("reference")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.verses.Lookup(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) getPostcardFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PostcardFormatContract), nil
}

func (s *Server) readFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FormatURI,
			MIMEType: "text/markdown",
			Text:     PostcardFormatContract,
		},
	}, nil
}

// postcardInput reads the shared create/update arguments. Validation of
// reference and text is left to the service so both transports agree.
func postcardInput(req mcp.CallToolRequest) (postcards.Input, error) {
	args := req.GetArguments()
	in := postcards.Input{
		Reference: req.GetString("reference", ""),
		Text:      req.GetString("text", ""),
		Tags:      req.GetStringSlice("tags", []string{}),
	}
	for key, dst := range map[string]**string{
		"commentary":       &in.Commentary,
		"personalThoughts": &in.PersonalThoughts,
		"questions":        &in.Questions,
	} {
		v, ok := args[key]
		if !ok || v == nil {
			continue
		}
		str, ok := v.(string)
		if !ok {
			return in, fmt.Errorf("%s must be a string", key)
		}
		*dst = &str
	}
	return in, nil
}

func toolError(id string, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("postcard not found: %s", id))
	}
	if errors.Is(err, apperr.ErrValidation) {
		return mcp.NewToolResultError("reference and text are required")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}
