// Package gateway exposes the agent over HTTP and WebSocket.
//
//	POST /v1/agent   {"userRequest": "..."}  -> AgentResponse
//	POST /v1/refine  {"prompt": "...", "history": [...]} -> refinement (+ logId)
//	GET  /v1/tools                           -> tool catalogue
//	GET  /ws                                 -> {"type":"agent","content":"..."} messages
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"memoire/internal/agent"
	"memoire/internal/domain"
	"memoire/internal/refine"
)

// ErrInvalidPort is returned when gateway port is not in 0..65535.
var ErrInvalidPort = errors.New("gateway port must be 0-65535")

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Agent is the part of *agent.Agent the gateway serves.
type Agent interface {
	ProcessUserRequest(ctx context.Context, req domain.AgentRequest) domain.AgentResponse
	RefinePrompt(ctx context.Context, prompt string, history []string) (domain.Refinement, error)
	RefineFromLog(ctx context.Context, prompt string) (domain.Refinement, string, error)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a structured logger. If l is nil it is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server is an HTTP server that optionally enforces Bearer token auth.
type Server struct {
	cfg         *domain.GatewayConfig
	agent       Agent
	tools       []domain.ToolDefinition
	logger      *slog.Logger
	server      *http.Server
	addr        string
	addrMu      sync.RWMutex
	listenErr   error
	listenErrMu sync.Mutex
	listener    net.Listener
}

// NewServer builds a gateway server from config. Port 0 means pick a random port.
// tools is the catalogue served on /v1/tools. Panics if a is nil.
// Returns ErrInvalidPort if port is not in 0..65535.
func NewServer(cfg *domain.GatewayConfig, a Agent, tools []domain.ToolDefinition, opts ...Option) (*Server, error) {
	if a == nil {
		panic("gateway: agent must not be nil")
	}
	if cfg == nil {
		cfg = &domain.GatewayConfig{Port: 8080}
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, ErrInvalidPort
	}
	s := &Server{cfg: cfg, agent: a, tools: tools}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("POST /v1/agent", s.handleAgent)
	mux.HandleFunc("POST /v1/refine", s.handleRefine)
	mux.HandleFunc("GET /v1/tools", s.handleTools)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) { HandleWS(w, r, a, s.log()) })

	s.server = &http.Server{
		Handler:           RequestLogger(s.log())(BearerAuth(cfg.Auth.AuthToken)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// log returns the Server's logger, falling back to the default slog logger.
func (s *Server) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// errorBody is the JSON body of every non-2xx API response.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	var req domain.AgentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.agent.ProcessUserRequest(r.Context(), req))
}

// refineRequest is the body of POST /v1/refine. When History is present,
// even empty, the prompt is refined against it and nothing is logged;
// otherwise the recent prompt log is used and the result is logged.
type refineRequest struct {
	Prompt  string   `json:"prompt"`
	History []string `json:"history,omitempty"`
}

// refineResponse is the reply of POST /v1/refine.
type refineResponse struct {
	domain.Refinement
	LogID string `json:"logId,omitempty"`
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	var req refineRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: refine.ErrEmptyPrompt.Error()})
		return
	}
	if req.History != nil {
		ref, err := s.agent.RefinePrompt(r.Context(), req.Prompt, req.History)
		if err != nil {
			s.log().Warn("refinement failed", "error", err)
			writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, refineResponse{Refinement: ref})
		return
	}
	ref, id, err := s.agent.RefineFromLog(r.Context(), req.Prompt)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, refineResponse{Refinement: ref, LogID: id})
	case errors.Is(err, agent.ErrNoPromptLog):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
	case ref.RefinedPrompt != "":
		// refined but not logged
		s.log().Warn("refinement not logged", "error", err)
		writeJSON(w, http.StatusOK, refineResponse{Refinement: ref})
	default:
		s.log().Warn("refinement failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
	}
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	tools := s.tools
	if tools == nil {
		tools = []domain.ToolDefinition{}
	}
	writeJSON(w, http.StatusOK, tools)
}

// Addr returns the bound address (e.g. "127.0.0.1:8080") after Run has started. Empty before Run.
func (s *Server) Addr() string {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	return s.addr
}

// ListenErr returns the error from the initial Listen in Run(), if any. Used when Addr() is still empty after Run() has been started.
func (s *Server) ListenErr() error {
	s.listenErrMu.Lock()
	defer s.listenErrMu.Unlock()
	return s.listenErr
}

// Handler returns the HTTP handler used by the server. For testing without binding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// netListen is the function used to listen; tests may replace it to force Listen errors.
var netListen = func(network, address string) (net.Listener, error) {
	return net.Listen(network, address)
}

// Run listens on the configured port and serves until shutdown is closed. Returns nil when shutdown.
func (s *Server) Run(shutdown <-chan struct{}) error {
	addr := ":" + strconv.Itoa(s.cfg.Port)
	ln, err := netListen("tcp", addr)
	if err != nil {
		s.listenErrMu.Lock()
		s.listenErr = err
		s.listenErrMu.Unlock()
		return err
	}
	s.addrMu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.addrMu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.server.Serve(ln)
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = serverShutdown(s.server, ctx)
	if err != nil {
		return err
	}
	<-done
	return nil
}

// serverShutdown is the function used to shut down the server; tests may replace it.
var serverShutdown = func(srv *http.Server, ctx context.Context) error {
	return srv.Shutdown(ctx)
}
