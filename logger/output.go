package logger

// OutputCategory controls what kinds of CLI output are shown at each verbosity.
//
// Unlike log levels, categories filter by kind rather than severity:
//
//	if logger.ShouldOutput(verbosity, logger.OutputTiming) {
//	    fmt.Printf("tick took %s\n", elapsed)
//	}
type OutputCategory int

const (
	// Level 0 - always shown
	OutputResults OutputCategory = iota // tick/drain reports, command output
	OutputErrors                        // errors with hints

	// Level 1 (-v)
	OutputProgress // per-schedule and per-job progress lines
	OutputStartup  // daemon banner, config summary

	// Level 2 (-vv)
	OutputTiming    // durations
	OutputConfig    // config values loaded
	OutputHTTPCalls // collaborator requests

	// Level 3 (-vvv)
	OutputSQLQueries   // individual statements
	OutputPromptBodies // full prompts sent to generators
)

var categoryLevels = map[OutputCategory]int{
	OutputResults:      VerbosityUser,
	OutputErrors:       VerbosityUser,
	OutputProgress:     VerbosityInfo,
	OutputStartup:      VerbosityInfo,
	OutputTiming:       VerbosityDebug,
	OutputConfig:       VerbosityDebug,
	OutputHTTPCalls:    VerbosityDebug,
	OutputSQLQueries:   VerbosityTrace,
	OutputPromptBodies: VerbosityTrace,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		return verbosity >= VerbosityTrace
	}
	return verbosity >= minLevel
}
