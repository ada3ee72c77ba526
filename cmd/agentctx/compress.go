package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/youssefsiam38/agentctx/compaction"
	"github.com/youssefsiam38/agentctx/hooks"
	"github.com/youssefsiam38/agentctx/storage"
	"github.com/youssefsiam38/agentctx/types"
)

func newCompressCmd(flags *globalFlags) *cobra.Command {
	var messagesFile string

	cmd := &cobra.Command{
		Use:   "compress <session-id>",
		Short: "Append messages to a session and compress it if a threshold is reached",
		Long: `compress restores a session, optionally appends the messages of a JSON
file to it, runs one compaction pass and saves the result. A session that
does not exist yet is created when --messages is given.`,
		Example: `  agentctx compress sess-42
  agentctx compress sess-42 --messages turn.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				var incoming []*types.Message
				if messagesFile != "" {
					var err error
					if incoming, err = readMessages(messagesFile); err != nil {
						return err
					}
				}

				result, err := compressSession(ctx, a, args[0], incoming, hooks.NewRegistry())
				if err != nil {
					return err
				}
				printResult(cmd, result)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&messagesFile, "messages", "", "JSON file holding an array of messages to append first")
	return cmd
}

// compressSession runs one compaction pass over a stored session and saves
// it. h receives the engine hooks; the returned result is nil when no pass ran.
func compressSession(ctx context.Context, a *app, sessionID string, incoming []*types.Message, h *hooks.Registry) (*types.CompactionResult, error) {
	var result *types.CompactionResult
	h.OnAfterCompaction(func(ctx context.Context, r *types.CompactionResult) error {
		result = r
		return nil
	})
	a.registerLogging(ctx, h)

	engine, err := a.engine(ctx, sessionID, compaction.WithHooks(h))
	if errors.Is(err, storage.ErrSnapshotNotFound) && len(incoming) > 0 {
		engineCfg := a.cfg.Engine
		opts := append(a.cfg.EngineOptions(a.logger), compaction.WithHooks(h), compaction.WithSessionID(sessionID))
		engine, err = compaction.New(&engineCfg, opts...)
	}
	if err != nil {
		return nil, err
	}

	for _, msg := range incoming {
		engine.AddMessage(msg)
	}
	engine.CompressIfNeeded(ctx)

	if err := a.store.SaveSnapshot(ctx, engine.Snapshot()); err != nil {
		return nil, fmt.Errorf("save session %s: %w", sessionID, err)
	}
	return result, nil
}

func readMessages(path string) ([]*types.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var msgs []*types.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("parse messages in %s: %w", path, err)
	}
	return msgs, nil
}

func printResult(cmd *cobra.Command, r *types.CompactionResult) {
	out := cmd.OutOrStdout()
	if r == nil {
		fmt.Fprintln(out, "below thresholds, nothing to compress")
		return
	}
	if !r.Compressed {
		fmt.Fprintf(out, "no strategy could reduce the working set (%d messages, ~%d tokens)\n", r.MessagesAfter, r.CompactedTokens)
		return
	}
	fmt.Fprintf(out, "compressed %d -> %d messages, ~%d -> ~%d tokens in %s\n",
		r.MessagesBefore, r.MessagesAfter, r.OriginalTokens, r.CompactedTokens, r.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "strategies: %v, events: %d\n", r.StrategiesRun, len(r.Events))
	if r.OverBudget {
		fmt.Fprintln(out, "warning: working set is still over budget")
	}
}
