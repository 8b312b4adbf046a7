package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dreschagin/session-telemetry/internal/domain/entity"
	"github.com/dreschagin/session-telemetry/internal/infrastructure/persistence/filesystem"
	"github.com/dreschagin/session-telemetry/pkg/telemetry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsInspectCmd, sessionsDrainCmd)
	sessionsInspectCmd.Flags().Bool("entries", false, "print entries of every sealed file")
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage saved sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions in the data directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository()
		if err != nil {
			return err
		}
		return listSessions(cmd.Context(), repo, cmd.OutOrStdout())
	},
}

var sessionsInspectCmd = &cobra.Command{
	Use:   "inspect <id>",
	Short: "Show metadata and sealed files of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", args[0], err)
		}
		withEntries, _ := cmd.Flags().GetBool("entries")

		repo, err := openRepository()
		if err != nil {
			return err
		}
		return inspectSession(cmd.Context(), repo, id, withEntries, cmd.OutOrStdout())
	},
}

var sessionsDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Upload every saved session and remove the drained ones",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		result, err := telemetry.DrainSaved(cmd.Context(), cfg, newLogger(cfg))
		if err != nil {
			return fmt.Errorf("drain sessions: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Discovered %d, drained %d, failed %d, skipped %d.\n",
			result.Discovered, result.Drained, result.Failed, result.Skipped)
		if result.Failed > 0 {
			return fmt.Errorf("%d sessions were not drained", result.Failed)
		}
		return nil
	},
}

func openRepository() (*filesystem.Repository, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	repo, err := filesystem.NewRepository(cfg.Storage.DataDir, filesystem.Options{}, newLogger(cfg))
	if err != nil {
		return nil, fmt.Errorf("open data directory: %w", err)
	}
	return repo, nil
}

func listSessions(ctx context.Context, repo *filesystem.Repository, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ids, err := repo.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREMOTE\tOUTFILES\tPENDING BYTES\tSTARTED")
	for _, id := range ids {
		store := repo.Store(id)
		stats, err := store.Stats(ctx)
		if err != nil {
			return fmt.Errorf("stat session %s: %w", id, err)
		}

		remote, started := "-", "-"
		if metadata, err := store.LoadMetadata(ctx); err == nil && metadata != nil {
			if metadata.HasRemoteIdentifier() {
				remote = metadata.RemoteIdentifier
			}
			started = metadata.StartedAt.Time().Format("2006-01-02 15:04:05")
		} else if !stats.HasMetadata {
			remote = "(no metadata)"
		}

		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			id,
			remote,
			stats.Outfiles,
			stats.LiveBytes+stats.OutBytes,
			started,
		)
	}
	return w.Flush()
}

type inspectOutput struct {
	ID       string                  `json:"id"`
	Metadata *entity.SessionMetadata `json:"metadata"`
	Stats    filesystem.Stats        `json:"stats"`
	Outfiles []inspectOutfile        `json:"outfiles"`
}

type inspectOutfile struct {
	Name    string            `json:"name"`
	Entries int               `json:"entries"`
	Content []json.RawMessage `json:"content,omitempty"`
}

func inspectSession(ctx context.Context, repo *filesystem.Repository, id uuid.UUID, withEntries bool, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	store := repo.Store(id)
	if _, err := os.Stat(store.Dir()); err != nil {
		return fmt.Errorf("session not found: %s", id)
	}

	metadata, err := store.LoadMetadata(ctx)
	if err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stat session: %w", err)
	}
	outfiles, err := store.ListOutfiles(ctx)
	if err != nil {
		return fmt.Errorf("list outfiles: %w", err)
	}

	output := inspectOutput{
		ID:       id.String(),
		Metadata: metadata,
		Stats:    stats,
		Outfiles: make([]inspectOutfile, 0, len(outfiles)),
	}
	for _, name := range outfiles {
		entries, err := store.LoadEntries(ctx, name)
		if err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}

		item := inspectOutfile{Name: name, Entries: len(entries)}
		if withEntries {
			for _, entry := range entries {
				raw, err := entity.MarshalEntry(entry)
				if err != nil {
					continue
				}
				item.Content = append(item.Content, raw)
			}
		}
		output.Outfiles = append(output.Outfiles, item)
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
