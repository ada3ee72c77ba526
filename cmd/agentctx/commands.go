package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/youssefsiam38/agentctx/config"
	"github.com/youssefsiam38/agentctx/hooks"
	"github.com/youssefsiam38/agentctx/report"
	"github.com/youssefsiam38/agentctx/tool"
	"github.com/youssefsiam38/agentctx/tool/builtin"
)

func newInspectCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <session-id>",
		Short: "Show the state and compression history of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				engine, err := a.engine(ctx, args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				st := engine.Stats(ctx)
				fmt.Fprintf(out, "session:        %s\n", st.SessionID)
				fmt.Fprintf(out, "working set:    %d messages, ~%d tokens (%.1f%% of %d)\n",
					st.Messages, st.Tokens, st.UsagePercent*100, st.MaxTokens)
				fmt.Fprintf(out, "original log:   %d messages\n", st.OriginalMessages)
				fmt.Fprintf(out, "offload:        %d entries\n", st.OffloadEntries)
				fmt.Fprintf(out, "events:         %d\n", st.Events)
				fmt.Fprintf(out, "needs compress: %v\n", st.NeedsCompaction)

				events := engine.Events()
				if len(events) == 0 {
					return nil
				}
				fmt.Fprintln(out)
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tKIND\tMESSAGES\tTOKENS\tOFFLOAD")
				for _, ev := range events {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d -> %d\t%s\n",
						ev.Timestamp.UTC().Format("2006-01-02 15:04:05"), ev.Kind, ev.CompressedCount,
						ev.Metadata.TokensBefore, ev.Metadata.TokensAfter, ev.OffloadID)
				}
				return tw.Flush()
			})
		},
	}
}

func newReloadCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "reload <session-id> <offload-id>",
		Short: "Print the original messages behind an offload entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				engine, err := a.engine(ctx, args[0])
				if err != nil {
					return err
				}

				if asJSON {
					msgs, err := engine.Reload(args[1])
					if err != nil {
						return err
					}
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(msgs)
				}

				// Run through the agent toolset so the input is checked against its schema.
				h := hooks.NewRegistry()
				a.registerLogging(ctx, h)
				executor, _, err := a.cfg.NewToolExecutor(engine, h)
				if err != nil {
					return err
				}
				input, err := json.Marshal(map[string]string{builtin.OffloadIDField: args[1]})
				if err != nil {
					return err
				}
				res := executor.Execute(ctx, tool.Call{Name: a.cfg.Engine.ReloadToolName, Input: input})
				if res.Err != nil {
					return res.Err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), res.Output)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the messages as JSON")
	return cmd
}

func newClearCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <session-id> <offload-id>...",
		Short: "Drop offload entries from a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				engine, err := a.engine(ctx, args[0])
				if err != nil {
					return err
				}
				for _, id := range args[1:] {
					engine.ClearOffload(id)
				}
				if err := a.store.SaveSnapshot(ctx, engine.Snapshot()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %d offload entries, %d remain\n", len(args)-1, len(engine.OffloadIDs()))
				return nil
			})
		},
	}
}

func newReportCmd(flags *globalFlags) *cobra.Command {
	var (
		output   string
		original bool
		title    string
	)

	cmd := &cobra.Command{
		Use:   "report <session-id>",
		Short: "Render an HTML audit report of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				snap, err := a.store.LoadSnapshot(ctx, args[0])
				if err != nil {
					return fmt.Errorf("load session %s: %w", args[0], err)
				}

				opts := &report.Options{Title: title, IncludeOriginalLog: original}
				if output == "" || output == "-" {
					return report.Render(cmd.OutOrStdout(), snap, opts)
				}

				f, err := os.Create(output)
				if err != nil {
					return err
				}
				if err := report.Render(f, snap, opts); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				a.logger.Info("report written", "session_id", args[0], "path", output)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&original, "original", false, "include the original log")
	cmd.Flags().StringVar(&title, "title", "", "report title")
	return cmd
}

func newMigrateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the storage schema for database backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				m, ok := a.store.(config.Migrator)
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s backend has no schema to migrate\n", a.cfg.Storage.Backend)
					return nil
				}
				if err := m.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", a.cfg.Storage.Backend)
				return nil
			})
		},
	}
}
