package report

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/youssefsiam38/agentctx/storage"
)

// Logger interface for structured logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type handler struct {
	store  storage.Store
	opts   *Options
	logger Logger
}

// NewHandler serves reports for the snapshots held by store at
// GET /sessions/{id}. The query parameter original=1 adds the original log.
func NewHandler(store storage.Store, opts *Options, logger Logger) http.Handler {
	if logger == nil {
		logger = noopLogger{}
	}
	if opts == nil {
		opts = &Options{}
	}
	h := &handler{store: store, opts: opts, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions/{id}", h.handleSession)
	return recoveryMiddleware(mux, logger)
}

func (h *handler) handleSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	snap, err := h.store.LoadSnapshot(r.Context(), id)
	if errors.Is(err, storage.ErrSnapshotNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load snapshot", "session_id", id, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	opts := *h.opts
	opts.IncludeOriginalLog = opts.IncludeOriginalLog || r.URL.Query().Get("original") == "1"

	// Render into a buffer so a template error still yields a clean 500.
	var buf bytes.Buffer
	if err := Render(&buf, snap, &opts); err != nil {
		h.logger.Error("failed to render report", "session_id", id, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func recoveryMiddleware(next http.Handler, logger Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
