package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/pulse/async"
	"github.com/teranos/cadence/sym"
)

// JobsCmd inspects the generation queue
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: sym.Gen + " Inspect and purge generation jobs",
	Long: sym.Gen + ` Jobs - the generation queue.

Examples:
  cadence jobs ls                         # Newest 50 jobs with queue stats
  cadence jobs ls --status failed --owner u1
  cadence jobs show <id>
  cadence jobs purge --older-than 720h    # Drop finished jobs older than 30 days`,
}

var jobsListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List jobs newest first",
	RunE:    runJobsList,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

var jobsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete completed and failed jobs older than --older-than",
	RunE:  runJobsPurge,
}

func init() {
	jobsListCmd.Flags().String("status", "", "pending, generating, completed or failed")
	jobsListCmd.Flags().String("owner", "", "Only this owner's jobs")
	jobsListCmd.Flags().String("schedule", "", "Only jobs queued by this schedule")
	jobsListCmd.Flags().Int("limit", 50, "Maximum jobs to list")
	jobsPurgeCmd.Flags().Duration("older-than", 30*24*time.Hour, "Age of the oldest finished job to keep")

	JobsCmd.AddCommand(jobsListCmd)
	JobsCmd.AddCommand(jobsShowCmd)
	JobsCmd.AddCommand(jobsPurgeCmd)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	status, _ := f.GetString("status")
	if status != "" && !async.IsValidStatus(status) {
		return errors.NewInvalidRequestError("unknown job status %q", status)
	}
	filter := async.ListFilter{Status: async.JobStatus(status)}
	filter.OwnerID, _ = f.GetString("owner")
	filter.ScheduleID, _ = f.GetString("schedule")
	filter.Limit, _ = f.GetInt("limit")

	a, err := newStoreApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	jobs, err := a.queue.ListJobs(ctx, filter)
	if err != nil {
		return err
	}
	stats, err := a.queue.GetStats(ctx)
	if err != nil {
		return err
	}
	if wantsJSON(cmd) {
		return printJSON(cmd, map[string]any{"jobs": jobs, "stats": stats})
	}

	pterm.Info.Printf("%s Queue: %d pending, %d generating, %d completed, %d failed\n",
		sym.Gen, stats.Pending, stats.Generating, stats.Completed, stats.Failed)
	if len(jobs) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{
			j.ShortID(),
			statusColor(j.Status),
			j.HandlerName,
			j.OwnerID,
			shortID(j.ScheduleID),
			fmt.Sprintf("%d/%d", j.Progress.Current, j.Progress.Total),
			j.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return renderTable([]string{"ID", "STATUS", "HANDLER", "OWNER", "SCHEDULE", "PROGRESS", "CREATED"}, rows)
}

func statusColor(s async.JobStatus) string {
	switch s {
	case async.JobStatusCompleted:
		return pterm.Green(string(s))
	case async.JobStatusFailed:
		return pterm.Red(string(s))
	case async.JobStatusGenerating:
		return pterm.Cyan(string(s))
	}
	return string(s)
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	a, err := newStoreApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := a.queue.GetJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if wantsJSON(cmd) {
		return printJSON(cmd, job)
	}

	pterm.DefaultSection.Printf("%s Job %s", sym.Gen, job.ID)
	info := [][]string{
		{"Status", statusColor(job.Status)},
		{"Handler", job.HandlerName},
		{"Owner", job.OwnerID},
		{"Schedule", orDash(job.ScheduleID)},
		{"Progress", fmt.Sprintf("%d/%d (%.0f%%)", job.Progress.Current, job.Progress.Total, job.Progress.Percentage())},
		{"Created", formatTime(&job.CreatedAt)},
		{"Started", formatTime(job.StartedAt)},
		{"Completed", formatTime(job.CompletedAt)},
		{"Result", orDash(job.ResultRef)},
	}
	if job.Error != "" {
		info = append(info, []string{"Error", pterm.Red(job.Error)})
	}
	if len(job.Warnings) > 0 {
		info = append(info, []string{"Warnings", strings.Join(job.Warnings, "\n")})
	}
	return pterm.DefaultTable.WithData(info).Render()
}

func runJobsPurge(cmd *cobra.Command, args []string) error {
	age, _ := cmd.Flags().GetDuration("older-than")
	if age <= 0 {
		return errors.NewInvalidRequestError("--older-than must be positive")
	}

	a, err := newStoreApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	cutoff := time.Now().UTC().Add(-age)
	purged, err := a.queue.PurgeTerminal(cmd.Context(), cutoff)
	if err != nil {
		return err
	}
	cleaned, err := a.executions.Cleanup(cmd.Context(), cutoff)
	if err != nil {
		return err
	}
	if wantsJSON(cmd) {
		return printJSON(cmd, map[string]int64{"jobs": purged, "executions": cleaned})
	}
	pterm.Success.Printf("Purged %d job(s) and %d execution record(s) older than %s\n", purged, cleaned, age)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
