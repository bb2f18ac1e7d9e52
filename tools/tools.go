// Package tools provides an in-process tooling.ToolServer implementation
// for the research agent: web search against DuckDuckGo's Instant Answer
// API, memory search/store backed by a memory.Store, a sandboxed file
// reader, and a clock tool. Grounded on the search-backend structure of a
// dedicated web search tool package, but adapted to the single
// ToolServer.CallTool dispatch contract instead of a per-tool Execute
// method.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/strukalex/agentic-assistant-framework-sub000/memory"
	"github.com/strukalex/agentic-assistant-framework-sub000/tooling"
)

// Config configures a Server.
type Config struct {
	// FileRoot bounds read_file to paths under this directory. Empty
	// disables read_file entirely.
	FileRoot string
	// HTTPClient overrides the client used for web_search. Nil uses a
	// 10-second-timeout default.
	HTTPClient *http.Client
}

// Server implements tooling.ToolServer over a fixed built-in tool set.
type Server struct {
	memory   memory.Store
	fileRoot string
	client   *http.Client
}

// New constructs a Server. memoryStore may be nil, in which case
// search_memory/store_memory report an error result rather than panicking.
func New(memoryStore memory.Store, cfg Config) *Server {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Server{memory: memoryStore, fileRoot: cfg.FileRoot, client: client}
}

var descriptors = []tooling.ToolDescriptor{
	{
		Name:        "web_search",
		Description: "Search the public web for a query and return a short list of titled snippets with source URLs.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`),
	},
	{
		Name:        "search_memory",
		Description: "Search previously stored research documents for a query, ranked by relevance.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"},"top_k":{"type":"integer"}},"required":["query"]}`),
	},
	{
		Name:        "store_memory",
		Description: "Persist a final answer or research finding as a document for future recall.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"content":{"type":"string"},"metadata":{"type":"object"}},"required":["content"]}`),
	},
	{
		Name:        "read_file",
		Description: "Read a text file from the sandboxed working directory.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
	},
	{
		Name:        "get_current_time",
		Description: "Return the current UTC time in RFC3339 form.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
	},
}

// ListTools implements tooling.ToolServer.
func (s *Server) ListTools(context.Context) ([]tooling.ToolDescriptor, error) {
	return descriptors, nil
}

// CallTool implements tooling.ToolServer. Results are returned as each tool
// produced them: control characters are not stripped and long output is
// not truncated.
func (s *Server) CallTool(ctx context.Context, name string, arguments json.RawMessage) (tooling.ToolResult, error) {
	var params map[string]any
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, fmt.Errorf("tools: decode arguments for %q: %w", name, err)
		}
	}
	switch name {
	case "web_search":
		return s.webSearch(ctx, params)
	case "search_memory":
		return s.searchMemory(ctx, params)
	case "store_memory":
		return s.storeMemory(ctx, params)
	case "read_file":
		return s.readFile(params)
	case "get_current_time":
		return tooling.NewTextResult(time.Now().UTC().Format(time.RFC3339)), nil
	default:
		return nil, fmt.Errorf("tools: unknown tool %q", name)
	}
}

type webSearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// webSearch queries DuckDuckGo's Instant Answer API, the same
// no-API-key-required endpoint used for this lookup elsewhere in the
// example pack, trimmed down to the single web search type the agent needs.
func (s *Server) webSearch(ctx context.Context, params map[string]any) (tooling.ToolResult, error) {
	query, _ := params["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("tools: web_search requires a non-empty query")
	}

	instantURL := fmt.Sprintf("https://api.duckduckgo.com/?q=%s&format=json&no_html=1", url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, instantURL, nil)
	if err != nil {
		return nil, fmt.Errorf("tools: build web_search request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; research-agent/1.0)")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tools: web_search request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tools: web_search returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tools: read web_search response: %w", err)
	}

	var ddg struct {
		AbstractText   string `json:"AbstractText"`
		AbstractSource string `json:"AbstractSource"`
		AbstractURL    string `json:"AbstractURL"`
		Heading        string `json:"Heading"`
		RelatedTopics  []struct {
			FirstURL string `json:"FirstURL"`
			Text     string `json:"Text"`
		} `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(body, &ddg); err != nil {
		return nil, fmt.Errorf("tools: parse web_search response: %w", err)
	}

	var results []webSearchResult
	if ddg.AbstractText != "" && ddg.AbstractURL != "" {
		results = append(results, webSearchResult{Title: ddg.Heading, URL: ddg.AbstractURL, Snippet: ddg.AbstractText})
	}
	for _, topic := range ddg.RelatedTopics {
		if len(results) >= 5 {
			break
		}
		if topic.FirstURL == "" || topic.Text == "" {
			continue
		}
		results = append(results, webSearchResult{Title: truncate(topic.Text, 100), URL: topic.FirstURL, Snippet: topic.Text})
	}
	return tooling.NewJSONResult(map[string]any{"query": query, "results": results})
}

func (s *Server) searchMemory(ctx context.Context, params map[string]any) (tooling.ToolResult, error) {
	if s.memory == nil {
		return tooling.NewJSONResult(map[string]any{"content": "no results found: memory store not configured"})
	}
	query, _ := params["query"].(string)
	topK := 5
	if v, ok := params["top_k"].(float64); ok && v > 0 {
		topK = int(v)
	}
	docs, err := s.memory.SemanticSearch(ctx, query, topK, nil)
	if err != nil {
		return nil, fmt.Errorf("tools: search_memory: %w", err)
	}
	if len(docs) == 0 {
		return tooling.NewJSONResult(map[string]any{"content": "no results found for this query"})
	}
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, map[string]any{"id": d.ID, "content": memory.TruncateSnippet(d.Content), "metadata": d.Metadata})
	}
	return tooling.NewJSONResult(map[string]any{"content": "found results", "documents": out})
}

func (s *Server) storeMemory(ctx context.Context, params map[string]any) (tooling.ToolResult, error) {
	if s.memory == nil {
		return nil, fmt.Errorf("tools: store_memory: memory store not configured")
	}
	content, _ := params["content"].(string)
	if content == "" {
		return nil, fmt.Errorf("tools: store_memory requires non-empty content")
	}
	metadata, _ := params["metadata"].(map[string]any)
	id, err := s.memory.StoreDocument(ctx, content, metadata, nil)
	if err != nil {
		return nil, fmt.Errorf("tools: store_memory: %w", err)
	}
	return tooling.NewJSONResult(map[string]any{"id": id, "stored": true})
}

func (s *Server) readFile(params map[string]any) (tooling.ToolResult, error) {
	if s.fileRoot == "" {
		return nil, fmt.Errorf("tools: read_file is not enabled")
	}
	rel, _ := params["path"].(string)
	if rel == "" {
		return nil, fmt.Errorf("tools: read_file requires a path")
	}
	clean := filepath.Join(s.fileRoot, filepath.Clean("/"+rel))
	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("tools: read_file: %w", err)
	}
	return tooling.NewTextResult(string(data)), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
