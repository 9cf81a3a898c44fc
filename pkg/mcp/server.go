// Package mcp exposes the registry gateway as MCP tools over JSON-RPC 2.0,
// on a line-delimited stdio stream or a single HTTP endpoint.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/chmcp/companies-house-mcp/pkg/budget"
	"github.com/chmcp/companies-house-mcp/pkg/gateway"
	"github.com/chmcp/companies-house-mcp/pkg/metrics"
	"github.com/chmcp/companies-house-mcp/pkg/models"
)

const serverName = "companies-house"

// maxLineSize bounds one stdio message.
const maxLineSize = 4 << 20

// Registry is the gateway surface the tools call. *gateway.Client implements it.
type Registry interface {
	SearchCompanies(ctx context.Context, p gateway.SearchParams) (*models.CompanySearch, error)
	CompanyProfile(ctx context.Context, companyNumber string) (*models.CompanyProfile, error)
	Officers(ctx context.Context, p gateway.OfficersParams) (*models.OfficerList, error)
	FilingHistory(ctx context.Context, p gateway.FilingHistoryParams) (*models.FilingHistory, error)
	Charges(ctx context.Context, p gateway.PageParams) (*models.ChargeList, error)
	PersonsWithSignificantControl(ctx context.Context, p gateway.PageParams) (*models.PSCList, error)
	SearchOfficers(ctx context.Context, p gateway.SearchParams) (*models.OfficerSearch, error)
	CacheStats() models.CacheStats
	BudgetSnapshot() budget.Snapshot
}

// Summarizer provides per-operation call summaries from the call ledger.
type Summarizer interface {
	Summary(ctx context.Context, since time.Time) ([]models.OperationSummary, error)
}

// Server is an MCP server over a Registry.
type Server struct {
	registry Registry
	ledger   Summarizer
	metrics  *metrics.Collector
	log      zerolog.Logger
	version  string
	validate *validator.Validate
}

// Option configures a Server.
type Option func(*Server)

// WithLedger enables call summaries in the gateway_stats tool.
func WithLedger(l Summarizer) Option {
	return func(s *Server) { s.ledger = l }
}

// WithMetrics counts tool invocations.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the server logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New creates a Server.
func New(reg Registry, version string, opts ...Option) *Server {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Server{
		registry: reg,
		log:      zerolog.Nop(),
		version:  version,
		validate: v,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reads JSON-RPC requests from r line by line and writes responses to w.
// Each request is handled on its own goroutine; writes are serialised. Run
// returns when r is exhausted or ctx is cancelled, after in-flight requests
// have been answered.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	defer wg.Wait()

	write := func(resp *Response) {
		mu.Lock()
		defer mu.Unlock()
		s.writeResponse(w, resp)
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			write(errorResponse(nil, CodeParseError, "parse error"))
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if resp := s.Handle(ctx, &req); resp != nil {
				write(resp)
			}
		}()
	}
	return scanner.Err()
}

// Handle dispatches one request. It returns nil for notifications.
func (s *Server) Handle(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != "2.0" {
		if req.IsNotification() {
			return nil
		}
		return errorResponse(req.ID, CodeInvalidRequest, "invalid request: jsonrpc must be \"2.0\"")
	}

	var resp *Response
	switch req.Method {
	case "initialize":
		resp = s.handleInitialize(req)
	case "ping":
		resp = &Response{JSONRPC: "2.0", ID: req.ID, Result: struct{}{}}
	case "tools/list":
		resp = &Response{JSONRPC: "2.0", ID: req.ID, Result: ToolsListResult{Tools: Tools()}}
	case "tools/call":
		resp = s.handleToolsCall(ctx, req)
	default:
		if strings.HasPrefix(req.Method, "notifications/") {
			return nil
		}
		resp = errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}

	if req.IsNotification() {
		return nil
	}
	return resp
}

func (s *Server) handleInitialize(req *Request) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: serverName, Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
			Instructions:    "Look up UK companies, officers, filings, charges and beneficial owners on the Companies House register.",
		},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  errorResult(fmt.Sprintf("unknown tool: %s", params.Name)),
		}
	}

	start := time.Now()
	result := handler(ctx, s, params.Arguments)
	s.metrics.ObserveTool(params.Name, result.IsError)
	s.log.Debug().
		Str("tool", params.Name).
		Bool("is_error", result.IsError).
		Dur("duration", time.Since(start)).
		Msg("tool call")

	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) writeResponse(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal response")
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.log.Error().Err(err).Msg("write response")
	}
}
