package commands

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/cadence/db"
	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the cadence database",
	Long: sym.DB + ` db - Manage the cadence database

Every command migrates the database on open. These commands report on it.

Examples:
  cadence db status               # Path, pending migrations and row counts
  cadence db migrate              # Apply pending migrations`,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database path, pending migrations and row counts",
	RunE:  runDbStatus,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE:  runDbMigrate,
}

func init() {
	DbCmd.AddCommand(dbStatusCmd)
	DbCmd.AddCommand(dbMigrateCmd)
}

var statusTables = []string{"schedules", "schedule_executions", "generation_jobs", "characters", "content_items", "entity_images"}

func runDbStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path := cfg.GetDatabasePath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		pterm.Info.Printf("%s No database at %s yet\n", sym.DB, path)
		return nil
	}

	conn, err := db.Open(path, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer conn.Close()

	pending, err := db.Pending(conn)
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	if len(pending) == 0 {
		for _, table := range statusTables {
			var n int
			if err := conn.QueryRowContext(cmd.Context(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
				return errors.Wrapf(err, "failed to count %s", table)
			}
			counts[table] = n
		}
	}

	if wantsJSON(cmd) {
		return printJSON(cmd, map[string]any{"path": path, "pending": pending, "rows": counts})
	}

	pterm.DefaultSection.Printf("%s Database %s", sym.DB, path)
	if len(pending) > 0 {
		pterm.Warning.Printf("%d pending migration(s): %v\n", len(pending), pending)
		return nil
	}
	pterm.Success.Println("Schema up to date")
	rows := make([][]string, 0, len(counts))
	for _, table := range statusTables {
		rows = append(rows, []string{table, fmt.Sprint(counts[table])})
	}
	return renderTable([]string{"TABLE", "ROWS"}, rows)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	pterm.Success.Printf("%s Database %s is up to date\n", sym.DB, cfg.GetDatabasePath())
	return nil
}
