package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/youssefsiam38/agentctx/hooks"
	"github.com/youssefsiam38/agentctx/report"
	"github.com/youssefsiam38/agentctx/storage"
	"github.com/youssefsiam38/agentctx/types"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve session reports, a compression endpoint and Prometheus metrics",
		Long: `serve exposes:
  GET  /sessions/{id}               HTML report (add ?original=1 for the original log)
  POST /sessions/{id}/compress      append the JSON messages in the body and compress
  GET  /sessions/{id}/tools         tool definitions (?format=anthropic|openai)
  POST /sessions/{id}/tools/{name}  run one tool with the JSON input in the body
  POST /sessions/{id}/tool_results  run the tool calls of a JSON assistant message
  GET  /metrics                     Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				srv := &http.Server{
					Addr:              addr,
					Handler:           newServer(a).routes(),
					ReadHeaderTimeout: 10 * time.Second,
				}

				errCh := make(chan error, 1)
				go func() {
					a.logger.Info("listening", "addr", addr, "storage", a.cfg.Storage.Backend)
					errCh <- srv.ListenAndServe()
				}()

				select {
				case err := <-errCh:
					if errors.Is(err, http.ErrServerClosed) {
						return nil
					}
					return err
				case <-ctx.Done():
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				a.logger.Info("shutting down")
				return srv.Shutdown(shutdownCtx)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

type server struct {
	app      *app
	registry *prometheus.Registry
	metrics  *hooks.MetricsHooks

	// Compressions are serialized so two requests never load and save the
	// same session concurrently.
	mu sync.Mutex
}

func newServer(a *app) *server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	return &server{
		app:      a,
		registry: reg,
		metrics:  hooks.NewMetricsHooks(reg),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /sessions/{id}", report.NewHandler(s.app.store, nil, s.app.logger))
	mux.HandleFunc("POST /sessions/{id}/compress", s.handleCompress)
	mux.HandleFunc("GET /sessions/{id}/tools", s.handleTools)
	mux.HandleFunc("POST /sessions/{id}/tools/{name}", s.handleToolCall)
	mux.HandleFunc("POST /sessions/{id}/tool_results", s.handleToolResults)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

type compressResponse struct {
	SessionID  string   `json:"session_id"`
	Triggered  bool     `json:"triggered"`
	Compressed bool     `json:"compressed"`
	Strategies []string `json:"strategies,omitempty"`
	Before     int      `json:"tokens_before,omitempty"`
	After      int      `json:"tokens_after,omitempty"`
	Events     int      `json:"events"`
	OverBudget bool     `json:"over_budget"`
}

func (s *server) handleCompress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var incoming []*types.Message
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
			http.Error(w, "invalid messages: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	h := hooks.NewRegistry()
	s.metrics.Register(h)

	s.mu.Lock()
	result, err := compressSession(r.Context(), s.app, id, incoming, h)
	s.mu.Unlock()

	if errors.Is(err, storage.ErrSnapshotNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.app.logger.Error("compress failed", "session_id", id, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	resp := compressResponse{SessionID: id}
	if result != nil {
		resp.Triggered = true
		resp.Compressed = result.Compressed
		resp.Strategies = result.StrategiesRun
		resp.Before = result.OriginalTokens
		resp.After = result.CompactedTokens
		resp.Events = len(result.Events)
		resp.OverBudget = result.OverBudget
	}

	writeJSON(w, http.StatusOK, resp)
}
