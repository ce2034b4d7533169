package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nixlim/genwatch/internal/projection"
	"github.com/nixlim/genwatch/internal/session"
	"github.com/nixlim/genwatch/internal/state"
	"github.com/nixlim/genwatch/internal/stats"
)

var historyOutput string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent sessions",
	Long: `List recent sessions, newest first, merging what the server reports
with the snapshots kept locally. When the server cannot be reached the local
sessions are listed alone.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "table", "Output format: table, json or yaml")
}

// historyItem is the machine-readable form of one history row.
type historyItem struct {
	ID        string    `json:"id" yaml:"id"`
	Status    string    `json:"status" yaml:"status"`
	Prompt    string    `json:"prompt" yaml:"prompt"`
	Files     string    `json:"files" yaml:"files"`
	Tokens    int       `json:"tokens" yaml:"tokens"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Preview   string    `json:"preview_url,omitempty" yaml:"preview_url,omitempty"`
	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(historyOutput)
	switch format {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", historyOutput)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, "")
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.API.RequestTimeout())
	defer cancel()

	entries, err := a.registry.History(ctx)
	if err != nil {
		if len(entries) == 0 {
			return err
		}
		fmt.Fprintf(os.Stderr, "genwatch: server unavailable, showing local sessions only: %v\n", err)
	}
	return writeHistory(cmd.OutOrStdout(), format, entries, time.Now())
}

func writeHistory(w io.Writer, format string, entries []state.Entry, now time.Time) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(historyItems(entries, now))
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(historyItems(entries, now)); err != nil {
			return err
		}
		return enc.Close()
	}
	return writeHistoryTable(w, entries, now)
}

func historyItems(entries []state.Entry, now time.Time) []historyItem {
	rows := projection.HistoryRows(entries, now)
	items := make([]historyItem, len(rows))
	for i, r := range rows {
		items[i] = historyItem{
			ID:        r.ID,
			Status:    string(entries[i].Session.Status),
			Prompt:    r.Prompt,
			Files:     r.Files,
			Tokens:    r.Tokens,
			CreatedAt: r.CreatedAt,
			Preview:   entries[i].PreviewURL,
			Error:     entries[i].Error,
		}
	}
	return items
}

func writeHistoryTable(w io.Writer, entries []state.Entry, now time.Time) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No sessions yet")
		return err
	}

	if _, err := fmt.Fprintf(w, "%-36s  %-14s  %7s  %8s  %6s  %s\n", "SESSION", "STATUS", "FILES", "TOKENS", "AGE", "PROMPT"); err != nil {
		return err
	}
	for i, r := range projection.HistoryRows(entries, now) {
		status := statusColor(entries[i].Session.Status).Sprintf("%-14s", r.Status.Text)
		if _, err := fmt.Fprintf(w, "%-36s  %s  %7s  %8d  %6s  %s\n",
			r.ID, status, r.Files, r.Tokens, shortAge(r.Age), truncatePrompt(r.Prompt, 60)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "\n%s\n", stats.Compute(entries).Summary())
	return err
}

func statusColor(st session.Status) *color.Color {
	switch st {
	case session.StatusCompleted, session.StatusPreviewReady:
		return color.New(color.FgGreen)
	case session.StatusError:
		return color.New(color.FgRed)
	case session.StatusCancelled:
		return color.New(color.FgYellow)
	case session.StatusStreaming, session.StatusBuilding:
		return color.New(color.FgCyan)
	}
	return color.New(color.Reset)
}

func shortAge(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

func truncatePrompt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
