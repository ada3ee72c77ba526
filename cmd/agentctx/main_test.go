package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/youssefsiam38/agentctx/config"
	"github.com/youssefsiam38/agentctx/internal/testutil"
	"github.com/youssefsiam38/agentctx/storage"
	"github.com/youssefsiam38/agentctx/types"
)

type cliEnv struct {
	dir        string
	configPath string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "AGENTCTX_STORAGE", "AGENTCTX_SUMMARIZER", "AGENTCTX_LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	configPath := filepath.Join(dir, "agentctx.yaml")
	body := `
engine:
  msg_threshold: 4
  last_keep: 2
  large_payload_chars: 1000
  offload_preview_chars: 100
storage:
  backend: file
  dir: ` + filepath.Join(dir, "snapshots") + `
log:
  level: error
`
	if err := os.WriteFile(configPath, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return &cliEnv{dir: dir, configPath: configPath}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *cliEnv) writeMessages(t *testing.T) string {
	t.Helper()
	msgs := testutil.Conversation(
		"user:text:read the log",
		"assistant:tool_use:server.log",
		"user:tool_result:"+strings.Repeat("x", 3000),
		"assistant:final:the log is clean",
		"user:text:thanks, next",
	)
	data, err := json.Marshal(msgs)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	path := filepath.Join(e.dir, "turn.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func (e *cliEnv) snapshot(t *testing.T, sessionID string) *storage.Snapshot {
	t.Helper()
	store, err := storage.NewFileStore(filepath.Join(e.dir, "snapshots"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	snap, err := store.LoadSnapshot(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	return snap
}

func TestCLI_Workflow(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "compress", "sess-1", "--messages", env.writeMessages(t))
	if err != nil {
		t.Fatalf("compress error = %v", err)
	}
	if !strings.Contains(out, "compressed 5 -> 5 messages") || !strings.Contains(out, "offload_protected") {
		t.Errorf("compress output = %q", out)
	}

	snap := env.snapshot(t, "sess-1")
	if len(snap.Offload) != 1 || len(snap.Events) != 1 {
		t.Fatalf("snapshot offload/events = %d/%d, want 1/1", len(snap.Offload), len(snap.Events))
	}
	offloadID := snap.Events[0].OffloadID

	out, err = env.run(t, "inspect", "sess-1")
	if err != nil {
		t.Fatalf("inspect error = %v", err)
	}
	for _, want := range []string{"session:        sess-1", "offload:        1 entries", "events:         1", "offload_protected"} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect output missing %q:\n%s", want, out)
		}
	}

	out, err = env.run(t, "reload", "sess-1", offloadID)
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if !strings.Contains(out, "Reloaded 1 message(s)") || !strings.Contains(out, strings.Repeat("x", 3000)) {
		t.Errorf("reload output does not hold the original payload")
	}

	reportPath := filepath.Join(env.dir, "report.html")
	if _, err := env.run(t, "report", "sess-1", "-o", reportPath, "--original"); err != nil {
		t.Fatalf("report error = %v", err)
	}
	html, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("ReadFile(report) error = %v", err)
	}
	if !strings.Contains(string(html), "<h2>Original log</h2>") {
		t.Error("report is missing the original log")
	}

	out, err = env.run(t, "clear", "sess-1", offloadID)
	if err != nil {
		t.Fatalf("clear error = %v", err)
	}
	if !strings.Contains(out, "cleared 1 offload entries, 0 remain") {
		t.Errorf("clear output = %q", out)
	}
	if _, err := env.run(t, "reload", "sess-1", offloadID); err == nil {
		t.Error("reload after clear error = nil, want error")
	}
}

func TestCLI_Errors(t *testing.T) {
	env := newCLIEnv(t)

	if _, err := env.run(t, "compress", "missing"); !errors.Is(err, storage.ErrSnapshotNotFound) {
		t.Errorf("compress(missing) error = %v, want ErrSnapshotNotFound", err)
	}
	if _, err := env.run(t, "inspect"); err == nil {
		t.Error("inspect without session error = nil, want error")
	}
	if _, err := env.run(t, "--storage", "postgres", "inspect", "x"); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("postgres without url error = %v, want ErrInvalidConfig", err)
	}

	out, err := env.run(t, "migrate")
	if err != nil {
		t.Fatalf("migrate error = %v", err)
	}
	if !strings.Contains(out, "file backend has no schema to migrate") {
		t.Errorf("migrate output = %q", out)
	}
}

func TestServer(t *testing.T) {
	env := newCLIEnv(t)
	if _, err := env.run(t, "compress", "sess-1", "--messages", env.writeMessages(t)); err != nil {
		t.Fatalf("compress error = %v", err)
	}

	cfg, err := config.Load(env.configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	store, closeFn, err := cfg.OpenStore(context.Background())
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer closeFn()

	a := &app{cfg: cfg, logger: cfg.NewLogger(os.Stderr), store: store}
	srv := httptest.NewServer(newServer(a).routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/sessions/sess-1")
	if err != nil {
		t.Fatalf("GET report error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET report status = %d, want 200", resp.StatusCode)
	}

	body := `[{"role":"user","content":[{"type":"text","text":"one more"}]}]`
	resp, err = http.Post(srv.URL+"/sessions/sess-1/compress", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST compress error = %v", err)
	}
	var got compressResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode compress response error = %v", err)
	}
	resp.Body.Close()
	if !got.Triggered || got.SessionID != "sess-1" {
		t.Errorf("compress response = %+v, want a triggered pass", got)
	}

	resp, err = http.Post(srv.URL+"/sessions/nope/compress", "application/json", nil)
	if err != nil {
		t.Fatalf("POST compress error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("POST compress(missing) status = %d, want 404", resp.StatusCode)
	}

	snap := env.snapshot(t, "sess-1")
	offloadID := snap.Events[0].OffloadID

	resp, err = http.Get(srv.URL + "/sessions/sess-1/tools?format=anthropic")
	if err != nil {
		t.Fatalf("GET tools error = %v", err)
	}
	var defs []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&defs); err != nil {
		t.Fatalf("decode tools error = %v", err)
	}
	resp.Body.Close()
	if len(defs) != 1 {
		t.Errorf("GET tools = %d definitions, want 1", len(defs))
	}

	toolTests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"reload", "/sessions/sess-1/tools/context_reload", `{"working_context_offload_uuid":"` + offloadID + `"}`, http.StatusOK},
		{"unknown offload", "/sessions/sess-1/tools/context_reload", `{"working_context_offload_uuid":"nope"}`, http.StatusNotFound},
		{"schema violation", "/sessions/sess-1/tools/context_reload", `{}`, http.StatusBadRequest},
		{"unknown tool", "/sessions/sess-1/tools/shell", `{}`, http.StatusNotFound},
		{"unknown session", "/sessions/nope/tools/context_reload", `{}`, http.StatusNotFound},
	}
	for _, tt := range toolTests {
		resp, err := http.Post(srv.URL+tt.path, "application/json", strings.NewReader(tt.body))
		if err != nil {
			t.Fatalf("%s: POST error = %v", tt.name, err)
		}
		var tr toolCallResponse
		if tt.path != "/sessions/nope/tools/context_reload" {
			if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
				t.Errorf("%s: decode error = %v", tt.name, err)
			}
		}
		resp.Body.Close()
		if resp.StatusCode != tt.wantStatus {
			t.Errorf("%s: status = %d, want %d (%s)", tt.name, resp.StatusCode, tt.wantStatus, tr.Error)
		}
		if tt.wantStatus == http.StatusOK && !strings.Contains(tr.Output, strings.Repeat("x", 3000)) {
			t.Errorf("%s: output does not hold the original payload", tt.name)
		}
	}

	call := `{"role":"assistant","content":[` +
		`{"type":"tool_use","id":"toolu_a","name":"context_reload","input":{"working_context_offload_uuid":"` + offloadID + `"}},` +
		`{"type":"tool_use","id":"toolu_b","name":"context_reload","input":{"working_context_offload_uuid":"nope"}}]}`
	resp, err = http.Post(srv.URL+"/sessions/sess-1/tool_results", "application/json", strings.NewReader(call))
	if err != nil {
		t.Fatalf("POST tool_results error = %v", err)
	}
	var reply types.Message
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("decode tool_results error = %v", err)
	}
	resp.Body.Close()
	if reply.Role != types.RoleUser || len(reply.Content) != 2 {
		t.Fatalf("tool_results reply = %+v, want a user message with 2 results", reply)
	}
	if b := reply.Content[0]; b.ToolResultID != "toolu_a" || b.IsError {
		t.Errorf("result[0] = %+v, want a successful result for toolu_a", b)
	}
	if b := reply.Content[1]; b.ToolResultID != "toolu_b" || !b.IsError {
		t.Errorf("result[1] = %+v, want an error result for toolu_b", b)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics error = %v", err)
	}
	var metrics bytes.Buffer
	_, _ = metrics.ReadFrom(resp.Body)
	resp.Body.Close()
	for _, want := range []string{"agentctx_compaction_passes_total", `agentctx_tool_calls_total{outcome="ok",tool="context_reload"}`} {
		if !strings.Contains(metrics.String(), want) {
			t.Errorf("metrics output is missing %s", want)
		}
	}
}
