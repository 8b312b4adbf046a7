package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dreschagin/session-telemetry/internal/application/dto"
	"github.com/dreschagin/session-telemetry/internal/domain/entity"
	"github.com/dreschagin/session-telemetry/internal/domain/valueobject"
	"github.com/spf13/cobra"
)

var (
	agentAddr  string
	agentToken string
)

func init() {
	rootCmd.AddCommand(emitCmd)
	emitCmd.AddCommand(emitLogCmd, emitEventCmd)

	emitCmd.PersistentFlags().StringVar(&agentAddr, "addr", "http://localhost:8090", "telemetry agent address")
	emitCmd.PersistentFlags().StringVar(&agentToken, "token", os.Getenv("AUTH_BEARER_TOKEN"), "agent bearer token")

	emitLogCmd.Flags().String("level", "info", "log level: trace, debug, info, warning, error, fatal")
	emitEventCmd.Flags().StringToString("attr", nil, "event attributes (key=value)")
	emitEventCmd.Flags().StringToString("metric", nil, "event metrics (key=number)")
	emitEventCmd.Flags().Duration("duration", 0, "event duration")
}

var emitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Submit an entry to a running agent",
}

var emitLogCmd = &cobra.Command{
	Use:   "log <message>",
	Short: "Submit a log entry",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawLevel, _ := cmd.Flags().GetString("level")
		level, err := valueobject.ParseLogLevel(rawLevel)
		if err != nil {
			return err
		}

		entry, err := entity.NewLog(level, strings.Join(args, " "), entity.SourceLocation{File: "telemetryctl"})
		if err != nil {
			return err
		}
		return submit(cmd.Context(), cmd.OutOrStdout(), entry)
	},
}

var emitEventCmd = &cobra.Command{
	Use:   "event <name>",
	Short: "Submit an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		event, err := entity.NewEvent(args[0])
		if err != nil {
			return err
		}

		attrs, _ := cmd.Flags().GetStringToString("attr")
		for k, v := range attrs {
			event = event.WithAttribute(k, v)
		}

		metrics, _ := cmd.Flags().GetStringToString("metric")
		for k, v := range metrics {
			value, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("metric %s: %w", k, err)
			}
			event = event.WithMetric(k, value)
		}

		if duration, _ := cmd.Flags().GetDuration("duration"); duration > 0 {
			event = event.WithDuration(duration)
		}
		return submit(cmd.Context(), cmd.OutOrStdout(), event)
	},
}

func submit(ctx context.Context, out io.Writer, entry entity.Entry) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	body, err := entity.MarshalEntry(entry)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(agentAddr, "/")+"/api/v1/entries", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if agentToken != "" {
		req.Header.Set("Authorization", "Bearer "+agentToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit entry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("agent returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result dto.SubmitResponseDTO
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if result.Accepted != 1 {
		return fmt.Errorf("entry rejected by agent")
	}

	fmt.Fprintf(out, "Submitted %s %s\n", entry.Type(), entry.EntryID())
	return nil
}
