package commands

import (
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/pulse/schedule"
	"github.com/teranos/cadence/sym"
)

// ScheduleCmd manages recurring generation schedules
var ScheduleCmd = &cobra.Command{
	Use:     "schedule",
	Aliases: []string{"sch"},
	Short:   sym.Sch + " Create, list, pause and import schedules",
	Long: sym.Sch + ` Schedules - recurring generation for one owner.

A content schedule generates posts for an existing character (--target).
A character_autogen schedule creates new characters.

Examples:
  cadence schedule create --owner u1 --target c1 --every daily --value 2
  cadence schedule create --owner u1 --kind character_autogen --every weekly
  cadence schedule create --owner u1 --target c1 --every time_slots \
      --slots 09:00,18:00 --tz Europe/Amsterdam --themes beach,city
  cadence schedule ls --owner u1
  cadence schedule show <id>
  cadence schedule pause <id>
  cadence schedule import schedules.yaml`,
}

var scheduleCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a schedule",
	RunE:  runScheduleCreate,
}

var scheduleListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List schedules",
	RunE:    runScheduleList,
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a schedule and its recent executions",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleShow,
}

var schedulePauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Stop a schedule from running",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setScheduleActive(cmd, args[0], false)
	},
}

var scheduleResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Resume a paused schedule from now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setScheduleActive(cmd, args[0], true)
	},
}

var scheduleRemoveCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a schedule and its execution history",
	Args:    cobra.ExactArgs(1),
	RunE:    runScheduleRemove,
}

var scheduleImportCmd = &cobra.Command{
	Use:   "import <manifest.yaml>",
	Short: "Create schedules from a YAML manifest",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleImport,
}

func init() {
	f := scheduleCreateCmd.Flags()
	f.String("owner", "", "Owner id (required)")
	f.String("kind", string(schedule.KindContent), "content or character_autogen")
	f.String("target", "", "Character id for content schedules")
	f.String("every", string(schedule.FrequencyDaily), "hourly, daily, weekly or time_slots")
	f.Int("value", 1, "Interval multiplier, and jobs per run when --items is unset")
	f.StringSlice("slots", nil, "HH:MM slots for time_slots schedules")
	f.String("tz", "", "IANA timezone for time slots (default UTC)")
	f.Int("items", 0, "Jobs queued per run")
	f.Int("images", 0, "Images per content job")
	f.String("content-type", "", "Content type hint for prompts")
	f.StringSlice("themes", nil, "Themes to pick from")
	f.StringSlice("styles", nil, "Style preferences")
	f.StringSlice("profile-types", nil, "Profile types for character_autogen")
	f.StringSlice("genders", nil, "Genders for character_autogen")
	f.StringSlice("post-to", nil, "Publish finished content to these platforms")
	f.Bool("paused", false, "Create the schedule paused")
	_ = scheduleCreateCmd.MarkFlagRequired("owner")

	scheduleListCmd.Flags().String("owner", "", "Only this owner's schedules")
	scheduleShowCmd.Flags().Int("limit", 10, "Executions to show")

	ScheduleCmd.AddCommand(scheduleCreateCmd)
	ScheduleCmd.AddCommand(scheduleListCmd)
	ScheduleCmd.AddCommand(scheduleShowCmd)
	ScheduleCmd.AddCommand(schedulePauseCmd)
	ScheduleCmd.AddCommand(scheduleResumeCmd)
	ScheduleCmd.AddCommand(scheduleRemoveCmd)
	ScheduleCmd.AddCommand(scheduleImportCmd)
}

// scheduleFromFlags builds an unsaved schedule from the create flags
func scheduleFromFlags(cmd *cobra.Command) *schedule.Schedule {
	f := cmd.Flags()
	str := func(name string) string { v, _ := f.GetString(name); return v }
	num := func(name string) int { v, _ := f.GetInt(name); return v }
	list := func(name string) []string { v, _ := f.GetStringSlice(name); return v }
	paused, _ := f.GetBool("paused")

	platforms := list("post-to")
	return &schedule.Schedule{
		OwnerID:  str("owner"),
		Kind:     schedule.Kind(str("kind")),
		TargetID: str("target"),
		IsActive: !paused,
		Frequency: schedule.Frequency{
			Type:      schedule.FrequencyType(str("every")),
			Value:     num("value"),
			TimeSlots: list("slots"),
			Timezone:  str("tz"),
		},
		Params: schedule.GenerationParams{
			ContentType:      str("content-type"),
			Themes:           list("themes"),
			StylePreferences: list("styles"),
			ItemsPerRun:      num("items"),
			ImageCount:       num("images"),
			ProfileTypes:     list("profile-types"),
			Genders:          list("genders"),
			AutoPost:         len(platforms) > 0,
			Platforms:        platforms,
		},
	}
}

func runScheduleCreate(cmd *cobra.Command, args []string) error {
	a, err := newStoreApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sched := scheduleFromFlags(cmd)
	if err := a.schedules.Create(cmd.Context(), sched, time.Now().UTC()); err != nil {
		return err
	}
	if wantsJSON(cmd) {
		return printJSON(cmd, sched)
	}
	pterm.Success.Printf("%s Created %s schedule %s (%s), next run %s\n",
		sym.Sch, sched.Kind, sched.ID, sched.Frequency, formatTime(sched.NextScheduledAt))
	return nil
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	a, err := newStoreApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	owner, _ := cmd.Flags().GetString("owner")
	schedules, err := a.schedules.List(cmd.Context(), owner)
	if err != nil {
		return err
	}
	if wantsJSON(cmd) {
		return printJSON(cmd, schedules)
	}
	if len(schedules) == 0 {
		pterm.Info.Println("No schedules")
		return nil
	}

	now := time.Now()
	rows := make([][]string, 0, len(schedules))
	for _, s := range schedules {
		rows = append(rows, []string{
			shortID(s.ID),
			s.OwnerID,
			string(s.Kind),
			s.Frequency.String(),
			formatUntil(s.NextScheduledAt, now),
			strconv.Itoa(s.TotalRunsCompleted),
			strconv.Itoa(s.TotalJobsFailed),
		})
	}
	return renderTable([]string{"ID", "OWNER", "KIND", "FREQUENCY", "NEXT", "DONE", "FAILED"}, rows)
}

func runScheduleShow(cmd *cobra.Command, args []string) error {
	a, err := newStoreApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	sched, err := a.schedules.Get(ctx, args[0])
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	execs, err := a.executions.List(ctx, sched.ID, limit)
	if err != nil {
		return err
	}

	if wantsJSON(cmd) {
		return printJSON(cmd, map[string]any{"schedule": sched, "executions": execs})
	}

	pterm.DefaultSection.Printf("%s Schedule %s", sym.Sch, sched.ID)
	target := sched.TargetID
	if target == "" {
		target = "-"
	}
	info := [][]string{
		{"Owner", sched.OwnerID},
		{"Kind", string(sched.Kind)},
		{"Target", target},
		{"Active", strconv.FormatBool(sched.IsActive)},
		{"Frequency", sched.Frequency.String()},
		{"Jobs per run", strconv.Itoa(sched.JobsPerRun())},
		{"Last run", formatTime(sched.LastExecutedAt)},
		{"Next run", formatTime(sched.NextScheduledAt)},
		{"Completed jobs", strconv.Itoa(sched.TotalRunsCompleted)},
		{"Failed jobs", strconv.Itoa(sched.TotalJobsFailed)},
	}
	if len(sched.Params.Themes) > 0 {
		info = append(info, []string{"Themes", strings.Join(sched.Params.Themes, ", ")})
	}
	if sched.Params.AutoPost {
		info = append(info, []string{"Posts to", strings.Join(sched.Params.Platforms, ", ")})
	}
	if err := pterm.DefaultTable.WithData(info).Render(); err != nil {
		return err
	}

	if len(execs) == 0 {
		pterm.Info.Println("No executions yet")
		return nil
	}
	rows := make([][]string, 0, len(execs))
	for _, e := range execs {
		rows = append(rows, []string{
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.Status,
			strconv.Itoa(e.JobsQueued),
			e.ErrorMessage,
		})
	}
	return renderTable([]string{"STARTED", "STATUS", "JOBS", "ERROR"}, rows)
}

func setScheduleActive(cmd *cobra.Command, id string, active bool) error {
	a, err := newStoreApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.schedules.SetActive(cmd.Context(), id, active, time.Now().UTC())
	if err != nil {
		return err
	}
	if wantsJSON(cmd) {
		return printJSON(cmd, sched)
	}
	if active {
		pterm.Success.Printf("Resumed %s, next run %s\n", sched.ID, formatTime(sched.NextScheduledAt))
	} else {
		pterm.Success.Printf("Paused %s\n", sched.ID)
	}
	return nil
}

func runScheduleRemove(cmd *cobra.Command, args []string) error {
	a, err := newStoreApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.schedules.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	pterm.Success.Printf("Deleted %s\n", args[0])
	return nil
}

func runScheduleImport(cmd *cobra.Command, args []string) error {
	m, err := schedule.LoadManifest(args[0])
	if err != nil {
		return err
	}
	if len(m.Schedules) == 0 {
		return errors.NewInvalidRequestError("manifest %s has no schedules", args[0])
	}

	a, err := newStoreApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	imported, err := a.schedules.Import(cmd.Context(), m, time.Now().UTC())
	if err != nil {
		return err
	}
	if wantsJSON(cmd) {
		return printJSON(cmd, imported)
	}
	pterm.Success.Printf("%s Imported %d schedule(s) from %s\n", sym.Sch, len(imported), args[0])
	return nil
}
