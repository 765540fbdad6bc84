package logger

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
)

// palette holds the ANSI colors for one theme.
type palette struct {
	fg      string
	time    string
	id      string
	number  string
	symbol  string
	warn    string
	warnBg  string
	err     string
	errBg   string
	accents []string
}

var themes = map[string]palette{
	"everforest": {
		fg:      "\x1b[38;5;223m",
		time:    "\x1b[38;5;107m",
		id:      "\x1b[38;5;109m",
		number:  "\x1b[38;5;108m",
		symbol:  "\x1b[38;5;108m",
		warn:    "\x1b[38;5;179m",
		warnBg:  "\x1b[48;5;58m",
		err:     "\x1b[38;5;167m",
		errBg:   "\x1b[48;5;52m",
		accents: []string{"\x1b[38;5;108m", "\x1b[38;5;65m", "\x1b[38;5;208m"},
	},
	"gruvbox": {
		fg:      "\x1b[38;5;223m",
		time:    "\x1b[38;5;108m",
		id:      "\x1b[38;5;109m",
		number:  "\x1b[38;5;175m",
		symbol:  "\x1b[38;5;142m",
		warn:    "\x1b[38;5;214m",
		warnBg:  "\x1b[48;5;58m",
		err:     "\x1b[38;5;167m",
		errBg:   "\x1b[48;5;88m",
		accents: []string{"\x1b[38;5;208m", "\x1b[38;5;214m"},
	},
}

// Current active theme
var currentTheme = "everforest"

// SetTheme configures the color scheme for console output
func SetTheme(theme string) {
	if _, ok := themes[theme]; ok {
		currentTheme = theme
	}
}

func colors() palette {
	return themes[currentTheme]
}

// idFields are rendered bare and colored as identifiers.
var idFields = map[string]bool{
	FieldJobID:      true,
	FieldScheduleID: true,
	FieldEntityID:   true,
	FieldRequestID:  true,
}

// minimalEncoder is a compact console encoder.
// Format: "13:04:35  p.worker  Job completed  3f2a... step=image_generation duration_ms=812"
type minimalEncoder struct {
	zapcore.Encoder
	pool buffer.Pool
}

func newMinimalEncoder() *minimalEncoder {
	return &minimalEncoder{
		Encoder: zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		pool:    buffer.NewPool(),
	}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	return &minimalEncoder{
		Encoder: enc.Encoder.Clone(),
		pool:    enc.pool,
	}
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	c := colors()
	final := enc.pool.Get()

	final.AppendString(c.time)
	final.AppendString(ent.Time.Format("15:04:05"))
	final.AppendString(colorReset)

	if lvl := levelString(ent.Level, c); lvl != "" {
		final.AppendString("  ")
		final.AppendString(lvl)
	}

	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(componentColor(ent.LoggerName, c))
		final.AppendString(abbreviateName(ent.LoggerName))
		final.AppendString(colorReset)
	}

	final.AppendString("  ")
	final.AppendString(c.fg)
	final.AppendString(ent.Message)
	final.AppendString(colorReset)

	if rendered := renderFields(fields, c); rendered != "" {
		final.AppendString("  ")
		final.AppendString(rendered)
	}

	final.AppendString("\n")
	return final, nil
}

func levelString(level zapcore.Level, c palette) string {
	switch level {
	case zapcore.InfoLevel:
		return ""
	case zapcore.DebugLevel:
		return "DEBUG"
	case zapcore.WarnLevel:
		return colorBold + c.warnBg + c.warn + "WARN" + colorReset
	default:
		return colorBold + c.errBg + c.err + level.CapitalString() + colorReset
	}
}

func componentColor(name string, c palette) string {
	hash := 0
	for _, r := range name {
		hash += int(r)
	}
	return c.accents[hash%len(c.accents)]
}

// abbreviateName shortens component names: pulse.worker -> p.worker
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 && parts[0] != "" {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}

// renderFields writes every field. Identifiers and the symbol come first and
// bare, everything else as key=value in a stable order.
func renderFields(fields []zapcore.Field, c palette) string {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	if len(enc.Fields) == 0 {
		return ""
	}

	var head, tail []string
	if s, ok := enc.Fields[FieldSymbol]; ok {
		head = append(head, c.symbol+fmt.Sprint(s)+colorReset)
	}

	keys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
		if k != FieldSymbol {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := enc.Fields[k]
		switch {
		case idFields[k]:
			head = append(head, c.id+fmt.Sprint(v)+colorReset)
		case isNumber(v):
			tail = append(tail, k+"="+c.number+fmt.Sprint(v)+colorReset)
		default:
			tail = append(tail, k+"="+fmt.Sprint(v))
		}
	}

	return strings.Join(append(head, tail...), " ")
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}
