package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/foldrank/internal/embed"
	folderrors "github.com/Aman-CERP/foldrank/internal/errors"
	"github.com/Aman-CERP/foldrank/internal/search"
	"github.com/Aman-CERP/foldrank/internal/suggest"
	"github.com/Aman-CERP/foldrank/pkg/version"
)

// ServerName is reported to MCP clients.
const ServerName = "foldrank"

// Ranker is the part of search.Ranker the server uses.
type Ranker interface {
	suggest.Ranker
	Settings() search.Settings
}

// ToolRecorder receives one call per tool invocation.
type ToolRecorder interface {
	RecordToolCall(tool string, elapsed time.Duration, err error)
}

// Server bridges MCP clients (note-taking plugins, agents) with the ranker.
type Server struct {
	mcp      *mcp.Server
	ranker   Ranker
	suggest  *suggest.Service
	embedder embed.Embedder
	recorder ToolRecorder
	logger   *slog.Logger

	folderCount int
	tagCount    int
	middleware  func(http.Handler) http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithDefaultCounts sets the suggestion counts used when a request omits one.
func WithDefaultCounts(folders, tags int) Option {
	return func(s *Server) {
		s.folderCount = folders
		s.tagCount = tags
	}
}

// WithToolRecorder reports every tool call to r.
func WithToolRecorder(r ToolRecorder) Option {
	return func(s *Server) { s.recorder = r }
}

// WithHTTPMiddleware wraps the http transport handler.
func WithHTTPMiddleware(mw func(http.Handler) http.Handler) Option {
	return func(s *Server) { s.middleware = mw }
}

// WithLogger sets the server logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new MCP server. embedder is only used for status
// reporting and may be nil.
func NewServer(ranker Ranker, embedder embed.Embedder, opts ...Option) (*Server, error) {
	if ranker == nil {
		return nil, errors.New("ranker is required")
	}

	s := &Server{
		ranker:      ranker,
		embedder:    embedder,
		logger:      slog.Default(),
		folderCount: suggest.DefaultFolderCount,
		tagCount:    suggest.DefaultTagCount,
	}
	for _, opt := range opts {
		opt(s)
	}

	svc, err := suggest.NewService(ranker, suggest.WithDefaultCounts(s.folderCount, s.tagCount))
	if err != nil {
		return nil, err
	}
	s.suggest = svc

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var toolInfos = []ToolInfo{
	{
		Name:        ToolSuggestFolders,
		Description: "Suggest the best existing folders for a note. Pass the note content, its file name and every candidate folder path. Returns folders ranked by a blend of keyword (BM25) and embedding similarity.",
	},
	{
		Name:        ToolSuggestTags,
		Description: "Suggest existing vault tags for a note. Tags already present in the note as #tag are skipped.",
	},
	{
		Name:        ToolRankCandidates,
		Description: "Rank arbitrary candidate names against free text using hybrid keyword and embedding scoring.",
	},
	{
		Name:        ToolRankerStatus,
		Description: "Report the active fusion mode, weights and embedding model.",
	},
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), toolInfos...)
}

// CallTool invokes a tool by name with JSON-style arguments. It serves the
// same logic as the MCP handlers and is used by tests and the CLI.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolSuggestFolders:
		var in SuggestFoldersInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.suggestFolders(ctx, in)
	case ToolSuggestTags:
		var in SuggestTagsInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.suggestTags(ctx, in)
	case ToolRankCandidates:
		var in RankCandidatesInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.rankCandidates(ctx, in)
	case ToolRankerStatus:
		return s.status(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, out any) error {
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(data, out); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

// observe logs and records a tool call, mapping its error.
func (s *Server) observe(tool string, fn func(logger *slog.Logger) error) error {
	start := time.Now()
	logger := s.logger.With(
		slog.String("tool", tool),
		slog.String("request_id", uuid.NewString()))
	logger.Debug("tool_started")

	err := fn(logger)
	elapsed := time.Since(start)
	if s.recorder != nil {
		s.recorder.RecordToolCall(tool, elapsed, err)
	}

	if err != nil {
		logger.Warn("tool_failed",
			slog.Duration("duration", elapsed),
			folderrors.LogAttr(err))
		return MapError(err)
	}
	logger.Info("tool_completed", slog.Duration("duration", elapsed))
	return nil
}

func (s *Server) suggestFolders(ctx context.Context, in SuggestFoldersInput) (*SuggestionsOutput, error) {
	var out *SuggestionsOutput
	err := s.observe(ToolSuggestFolders, func(logger *slog.Logger) error {
		logger.Debug("suggest_folders_request",
			slog.Int("folders", len(in.Folders)),
			slog.Int("count", in.Count))
		resp, err := s.suggest.SuggestFolders(ctx, suggest.FolderRequest{
			Content:  in.Content,
			FileName: in.FileName,
			Folders:  in.Folders,
			Count:    in.Count,
		})
		if err != nil {
			return err
		}
		out = toSuggestionsOutput(resp.Suggestions)
		return nil
	})
	return out, err
}

func (s *Server) suggestTags(ctx context.Context, in SuggestTagsInput) (*SuggestionsOutput, error) {
	var out *SuggestionsOutput
	err := s.observe(ToolSuggestTags, func(logger *slog.Logger) error {
		logger.Debug("suggest_tags_request",
			slog.Int("tags", len(in.Tags)),
			slog.Int("count", in.Count))
		resp, err := s.suggest.SuggestTags(ctx, suggest.TagRequest{
			Content:  in.Content,
			FileName: in.FileName,
			Tags:     in.Tags,
			Count:    in.Count,
		})
		if err != nil {
			return err
		}
		out = toSuggestionsOutput(resp.Suggestions)
		return nil
	})
	return out, err
}

func (s *Server) rankCandidates(ctx context.Context, in RankCandidatesInput) (*SuggestionsOutput, error) {
	var out *SuggestionsOutput
	err := s.observe(ToolRankCandidates, func(*slog.Logger) error {
		topK := in.TopK
		if topK == 0 {
			topK = s.folderCount
		}
		results, err := s.ranker.Rank(ctx, in.Query, in.Candidates, topK)
		if err != nil {
			return err
		}
		out = toSuggestionsOutput(results)
		return nil
	})
	return out, err
}

func (s *Server) status(ctx context.Context) (*RankerStatusOutput, error) {
	var out *RankerStatusOutput
	err := s.observe(ToolRankerStatus, func(*slog.Logger) error {
		settings := s.ranker.Settings()
		out = &RankerStatusOutput{
			Fusion:             string(settings.Fusion),
			KeywordWeight:      settings.Weights.Keyword,
			EmbeddingWeight:    settings.Weights.Embedding,
			RRFConstant:        settings.RRFConstant,
			NormalizationFloor: settings.NormalizationFloor,
		}
		if s.embedder != nil {
			out.EmbeddingModel = s.embedder.ModelName()
			out.Dimensions = s.embedder.Dimensions()
			out.EmbedderAvailable = s.embedder.Available(ctx)
		}
		return nil
	})
	return out, err
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolSuggestFolders, Description: toolInfos[0].Description}, s.mcpSuggestFoldersHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolSuggestTags, Description: toolInfos[1].Description}, s.mcpSuggestTagsHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolRankCandidates, Description: toolInfos[2].Description}, s.mcpRankCandidatesHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolRankerStatus, Description: toolInfos[3].Description}, s.mcpRankerStatusHandler)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(toolInfos)))
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func (s *Server) mcpSuggestFoldersHandler(ctx context.Context, _ *mcp.CallToolRequest, input SuggestFoldersInput) (
	*mcp.CallToolResult,
	*SuggestionsOutput,
	error,
) {
	out, err := s.suggestFolders(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return textResult(FormatSuggestions("Folder suggestions", out)), out, nil
}

func (s *Server) mcpSuggestTagsHandler(ctx context.Context, _ *mcp.CallToolRequest, input SuggestTagsInput) (
	*mcp.CallToolResult,
	*SuggestionsOutput,
	error,
) {
	out, err := s.suggestTags(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return textResult(FormatSuggestions("Tag suggestions", out)), out, nil
}

func (s *Server) mcpRankCandidatesHandler(ctx context.Context, _ *mcp.CallToolRequest, input RankCandidatesInput) (
	*mcp.CallToolResult,
	*SuggestionsOutput,
	error,
) {
	out, err := s.rankCandidates(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return textResult(FormatSuggestions("Ranked candidates", out)), out, nil
}

func (s *Server) mcpRankerStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ RankerStatusInput) (
	*mcp.CallToolResult,
	*RankerStatusOutput,
	error,
) {
	out, err := s.status(ctx)
	if err != nil {
		return nil, nil, err
	}
	return textResult(FormatStatus(out)), out, nil
}

// HTTPHandler returns the streamable HTTP handler, wrapped by the configured
// middleware.
func (s *Server) HTTPHandler() http.Handler {
	var h http.Handler = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
	if s.middleware != nil {
		h = s.middleware(h)
	}
	return h
}

// Serve runs the server on the given transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("mcp_server_starting",
		slog.String("transport", transport),
		slog.String("addr", addr))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil

	case "http":
		mux := http.NewServeMux()
		mux.Handle("/mcp", s.HTTPHandler())
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		select {
		case err := <-errCh:
			return fmt.Errorf("mcp http server: %w", err)
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("mcp http shutdown: %w", err)
			}
			s.logger.Info("mcp_server_stopped")
			return nil
		}

	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, http)", transport)
	}
}
