package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/cadence/am"
	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.AM + " Manage cadence configuration",
	Long: sym.AM + ` am - Manage cadence configuration ("I am")

Configuration sources (later overrides earlier):
1. Built-in defaults
2. /etc/cadence/am.toml
3. ~/.cadence/am.toml
4. ./am.toml (searches up directories)
5. CADENCE_* environment variables
6. --config replaces 2-5 with one file

Examples:
  cadence am show                 # Show current configuration, secrets masked
  cadence am show --format json
  cadence am init                 # Write ~/.cadence/am.toml with defaults
  cadence am validate`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	RunE:  runAmInit,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "List config files in precedence order",
	RunE:  runAmWhere,
}

func init() {
	amShowCmd.Flags().String("format", "toml", "Output format: toml, json, yaml")
	amInitCmd.Flags().Bool("force", false, "Overwrite an existing file (the old one is kept as .back1)")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amInitCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

// renderConfig marshals cfg with its credentials masked
func renderConfig(cfg *am.Config, format string) ([]byte, error) {
	shown := cfg.Redacted()
	switch format {
	case "json":
		return json.MarshalIndent(shown, "", "  ")
	case "yaml":
		return yaml.Marshal(shown)
	case "toml":
		return toml.Marshal(shown)
	}
	return nil, errors.NewInvalidRequestError("unsupported format: %s (supported: toml, json, yaml)", format)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if wantsJSON(cmd) {
		format = "json"
	}

	data, err := renderConfig(cfg, format)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal config to %s", format)
	}
	out := cmd.OutOrStdout()
	if format != "json" {
		fmt.Fprintln(out, "# cadence configuration")
	}
	fmt.Fprintln(out, string(data))
	return nil
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = am.UserConfigPath()
	}
	path = am.ExpandPath(path)

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return errors.Newf("%s already exists (use --force to overwrite)", path)
	}
	if _, err := am.WriteDefault(path); err != nil {
		return err
	}
	pterm.Success.Printf("%s Wrote %s\n", sym.AM, path)
	pterm.Println(pterm.Gray("API keys stay out of the file; set CADENCE_OPENROUTER_API_KEY and friends in the environment"))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	pterm.Success.Println("Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "--config %s (other files ignored)\n", am.ExpandPath(path))
		return nil
	}
	rows := [][]string{}
	for i, path := range am.ConfigSearchPaths() {
		state := pterm.Gray("missing")
		if _, err := os.Stat(path); err == nil {
			state = pterm.Green("loaded")
		}
		rows = append(rows, []string{fmt.Sprint(i + 1), path, state})
	}
	return renderTable([]string{"#", "PATH", "STATE"}, rows)
}
