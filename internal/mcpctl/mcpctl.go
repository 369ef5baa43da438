// Package mcpctl exposes a read-only Model Context Protocol server over
// internal/engine's pure-reader commands (status, why), so an agent
// client can inspect a project's consistency state without ever being
// able to mutate it (spec.md §6).
package mcpctl

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pxtool/px/internal/engine"
)

// Server wraps an engine.Deps for use as MCP tool handlers. Every
// handler here is read-only by construction: it calls only Deps.Status
// or Deps.Why, never a mutating command.
type Server struct {
	deps *engine.Deps
}

// New builds a Server over deps.
func New(deps *engine.Deps) *Server {
	return &Server{deps: deps}
}

// StatusInput takes no parameters; status is always evaluated against
// the project the server was started in.
type StatusInput struct{}

// StatusOutput mirrors engine.StatusReport in a JSON-friendly shape.
type StatusOutput struct {
	State          string   `json:"state"`
	DriftReasons   []string `json:"drift_reasons,omitempty"`
	ManifestExists bool     `json:"manifest_exists"`
	LockExists     bool     `json:"lock_exists"`
	EnvExists      bool     `json:"env_exists"`
	MFingerprint   string   `json:"mfingerprint,omitempty"`
}

func (s *Server) status(_ context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	report, err := s.deps.Status()
	if err != nil {
		return nil, StatusOutput{}, err
	}
	out := StatusOutput{
		State:          report.State.String(),
		ManifestExists: report.ManifestExists,
		LockExists:     report.LockExists,
		EnvExists:      report.EnvExists,
		MFingerprint:   report.MFingerprint,
	}
	for _, r := range report.DriftReasons {
		out.DriftReasons = append(out.DriftReasons, string(r))
	}
	return nil, out, nil
}

// WhyInput names the package to explain.
type WhyInput struct {
	Package string `json:"package"`
}

// WhyOutput mirrors engine.WhyReport in a JSON-friendly shape.
type WhyOutput struct {
	Name       string   `json:"name"`
	Direct     bool     `json:"direct"`
	InLock     bool     `json:"in_lock"`
	Version    string   `json:"version,omitempty"`
	RequiredBy []string `json:"required_by,omitempty"`
}

func (s *Server) why(_ context.Context, _ *mcp.CallToolRequest, in WhyInput) (*mcp.CallToolResult, WhyOutput, error) {
	if in.Package == "" {
		return nil, WhyOutput{}, fmt.Errorf("package is required")
	}
	report, err := s.deps.Why(in.Package)
	if err != nil {
		return nil, WhyOutput{}, err
	}
	return nil, WhyOutput{
		Name:       report.Name,
		Direct:     report.Direct,
		InLock:     report.InLock,
		Version:    report.LockedNode.Version,
		RequiredBy: report.RequiredBy,
	}, nil
}

// NewMCPServer builds the mcp.Server with px's read-only tools
// registered, grounded on the corpus's credentials-mcp tool wiring
// shape (mcp.NewServer + mcp.AddTool per handler).
func NewMCPServer(s *Server) *mcp.Server {
	impl := &mcp.Implementation{
		Name:    "px",
		Title:   "px dependency manager",
		Version: "0.1.0",
	}
	server := mcp.NewServer(impl, &mcp.ServerOptions{HasTools: true})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "px_status",
		Description: "Report the project's current consistency state (manifest/lock/env) without changing anything.",
	}, s.status)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "px_why",
		Description: "Explain whether a package is a direct dependency and/or present in the lock.",
	}, s.why)

	return server
}

// Serve runs the MCP server either over stdio (addr == "stdio") or as
// a streamable HTTP listener at addr.
func Serve(ctx context.Context, deps *engine.Deps, addr string) error {
	server := NewMCPServer(New(deps))

	if addr == "" || addr == "stdio" {
		return server.Run(ctx, &mcp.StdioTransport{})
	}

	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{JSONResponse: true})

	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return http.ListenAndServe(addr, mux)
}
