package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// wantsJSON reports whether --json was passed
func wantsJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

// printJSON writes v as indented JSON to the command's stdout
func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// renderTable prints a header row plus rows with pterm
func renderTable(header []string, rows [][]string) error {
	data := pterm.TableData{header}
	data = append(data, rows...)
	return pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Render()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return pterm.Gray("-")
	}
	return t.Local().Format("2006-01-02 15:04")
}

// formatUntil renders how far in the future t is, relative to now
func formatUntil(t *time.Time, now time.Time) string {
	if t == nil {
		return pterm.Gray("paused")
	}
	d := t.Sub(now)
	if d <= 0 {
		return pterm.Yellow("due")
	}
	return "in " + d.Round(time.Minute).String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
