// Package sym defines the glyphs cadence attaches to log lines and CLI output
// so a reader can tell which subsystem spoke without parsing the component name.
package sym

// Subsystem glyphs.
const (
	AM  = "≡" // am: configuration and system settings
	Gen = "✦" // generation pipeline: profiles, images, posts
	Sch = "⟶" // schedules: due discovery and next-run math
)

// System infrastructure symbols.
const (
	Pulse      = "꩜" // ticks, queue drains, workers
	PulseOpen  = "✿" // worker start-up and lease recovery
	PulseClose = "❀" // graceful shutdown
	DB         = "⊔" // database/storage layer
)

// entry binds a glyph to a CLI command and description.
type entry struct {
	glyph       string
	command     string
	description string
}

var registry = []entry{
	{AM, "am", "Configuration and system settings"},
	{Pulse, "pulse", "Scheduler ticks, queue drains and workers"},
	{Sch, "schedule", "Recurring content schedules"},
	{Gen, "jobs", "Generation jobs and their pipeline steps"},
	{DB, "db", "Database and blob storage"},
}

// SymbolToCommand maps glyph strings to their CLI command equivalents.
var SymbolToCommand = map[string]string{}

// CommandToSymbol maps CLI commands to their glyph strings.
var CommandToSymbol = map[string]string{}

// CommandDescriptions provides one-line help for each command group.
var CommandDescriptions = map[string]string{}

func init() {
	for _, e := range registry {
		SymbolToCommand[e.glyph] = e.command
		CommandToSymbol[e.command] = e.glyph
		CommandDescriptions[e.command] = e.description
	}
}

// ForCommand returns the glyph for a command group, or "" when unknown.
func ForCommand(cmd string) string {
	return CommandToSymbol[cmd]
}
