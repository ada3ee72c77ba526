// Package report renders an HTML audit of a persisted conversation: what the
// model currently sees, every compression event, and what sits in the
// offload archive.
package report

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"sort"

	"github.com/youssefsiam38/agentctx/compaction"
	"github.com/youssefsiam38/agentctx/storage"
	"github.com/youssefsiam38/agentctx/types"
)

//go:embed templates/*.html
var templatesFS embed.FS

var reportTemplate = template.Must(template.New("").
	Funcs(templateFuncs()).
	ParseFS(templatesFS, "templates/report.html"))

// DefaultPreviewChars is the length of message text shown for non-summary messages.
const DefaultPreviewChars = 2000

// Options tune the rendered report.
type Options struct {
	// Title overrides the page title. Defaults to the session id.
	Title string

	// PreviewChars caps the text shown for each non-summary message.
	PreviewChars int

	// IncludeOriginalLog adds the full original log below the working set.
	IncludeOriginalLog bool
}

// Report is the view model the template renders.
type Report struct {
	Title       string
	SessionID   string
	Snapshot    *storage.Snapshot
	Working     []MessageView
	Original    []MessageView
	Events      []EventView
	Offload     []OffloadView
	Tokens      int
	Compacted   int
	SavedTokens int
}

// MessageView is one row of a message table.
type MessageView struct {
	Index     int
	ID        string
	Role      types.Role
	Kind      string
	Summary   bool
	OffloadID string
	Tools     []string
	Chars     int
	Tokens    int
	Text      string
}

// EventView is one compression event with the message it produced resolved.
type EventView struct {
	*types.CompressionEvent
	Produced *MessageView
}

// OffloadView summarizes one offload entry.
type OffloadView struct {
	ID       string
	Messages int
	Chars    int
	Tokens   int
}

// Build assembles the view model of snap.
func Build(snap *storage.Snapshot, opts *Options) *Report {
	if opts == nil {
		opts = &Options{}
	}
	preview := opts.PreviewChars
	if preview <= 0 {
		preview = DefaultPreviewChars
	}

	r := &Report{
		Title:     opts.Title,
		SessionID: snap.SessionID,
		Snapshot:  snap,
	}
	if r.Title == "" {
		r.Title = "Session " + snap.SessionID
	}

	byID := make(map[string]*MessageView, len(snap.WorkingSet))
	r.Working = make([]MessageView, len(snap.WorkingSet))
	for i, msg := range snap.WorkingSet {
		r.Working[i] = messageView(i, msg, preview)
		byID[msg.ID] = &r.Working[i]
		r.Tokens += r.Working[i].Tokens
		if msg.IsCompacted() {
			r.Compacted++
		}
	}

	if opts.IncludeOriginalLog {
		r.Original = make([]MessageView, len(snap.OriginalLog))
		for i, msg := range snap.OriginalLog {
			r.Original[i] = messageView(i, msg, preview)
		}
	}

	for _, ev := range snap.Events {
		r.Events = append(r.Events, EventView{CompressionEvent: ev, Produced: byID[ev.ProducedMessageID]})
		r.SavedTokens += ev.Metadata.TokensBefore - ev.Metadata.TokensAfter
	}

	ids := make([]string, 0, len(snap.Offload))
	for id := range snap.Offload {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		msgs := snap.Offload[id]
		view := OffloadView{ID: id, Messages: len(msgs)}
		for _, msg := range msgs {
			view.Chars += msg.PayloadChars()
			view.Tokens += compaction.EstimateMessageTokens(msg)
		}
		r.Offload = append(r.Offload, view)
	}

	return r
}

func messageView(i int, msg *types.Message, preview int) MessageView {
	v := MessageView{
		Index:     i,
		ID:        msg.ID,
		Role:      msg.Role,
		Summary:   msg.IsSummary,
		OffloadID: msg.OffloadID(),
		Tools:     msg.ToolNames(),
		Chars:     msg.PayloadChars(),
		Tokens:    compaction.EstimateMessageTokens(msg),
		Text:      msg.Text(),
	}
	if kind, ok := msg.Metadata[types.MetaCompactionKind].(string); ok {
		v.Kind = kind
	}
	if !v.Summary {
		v.Text = truncate(preview, v.Text)
	}
	return v
}

// Render writes the HTML report of snap to w.
func Render(w io.Writer, snap *storage.Snapshot, opts *Options) error {
	if snap == nil {
		return fmt.Errorf("render report: nil snapshot")
	}
	if err := reportTemplate.ExecuteTemplate(w, "report", Build(snap, opts)); err != nil {
		return fmt.Errorf("render report %s: %w", snap.SessionID, err)
	}
	return nil
}
