package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// ColoredFormatter prints one line per entry: time, level, message, then key=value fields.
type ColoredFormatter struct {
	TimestampFormat string
	// SortingFunc orders field keys; nil sorts alphabetically.
	SortingFunc func([]string) []string
	// DisableColors prints plain text, e.g. when stdout is not a terminal.
	DisableColors bool
}

func NewColoredFormatter() *ColoredFormatter {
	return &ColoredFormatter{
		TimestampFormat: time.RFC3339,
		SortingFunc:     defaultFieldSorting,
		DisableColors:   color.NoColor,
	}
}

func (f *ColoredFormatter) paint(c *color.Color, format string, a ...interface{}) string {
	if f.DisableColors {
		return fmt.Sprintf(format, a...)
	}
	c.EnableColor()
	return c.Sprintf(format, a...)
}

func (f *ColoredFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	if f.SortingFunc != nil {
		keys = f.SortingFunc(keys)
	} else {
		sort.Strings(keys)
	}

	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	levelColor := getLevelColor(entry.Level)
	ts := f.TimestampFormat
	if ts == "" {
		ts = time.RFC3339
	}
	b.WriteString(f.paint(color.New(color.FgYellow), "%s", entry.Time.Format(ts)))
	b.WriteByte(' ')
	b.WriteString(f.paint(levelColor, "%-7s", strings.ToUpper(entry.Level.String())))
	b.WriteByte(' ')
	b.WriteString(f.paint(levelColor, "%s", entry.Message))

	for _, k := range keys {
		var val string
		switch v := entry.Data[k].(type) {
		case string:
			val = fmt.Sprintf("%q", v)
		case error:
			val = fmt.Sprintf("%q", v.Error())
		case fmt.Stringer:
			val = v.String()
		default:
			if raw, err := json.Marshal(v); err == nil {
				val = string(raw)
			} else {
				val = fmt.Sprintf("%v", v)
			}
		}
		keyColor := color.New(color.FgCyan)
		if isImportantField(k) {
			keyColor = color.New(color.FgGreen)
		}
		b.WriteByte(' ')
		b.WriteString(f.paint(keyColor, "%s=", k))
		b.WriteString(f.paint(color.New(color.FgWhite), "%s", val))
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func getLevelColor(level logrus.Level) *color.Color {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return color.New(color.FgBlue)
	case logrus.InfoLevel:
		return color.New(color.FgGreen)
	case logrus.WarnLevel:
		return color.New(color.FgYellow)
	case logrus.ErrorLevel:
		return color.New(color.FgRed)
	case logrus.FatalLevel, logrus.PanicLevel:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgWhite)
	}
}

var priorityFields = map[string]int{
	"run_id":       1,
	"attempt":      2,
	"target_block": 3,
	"error":        4,
}

func isImportantField(field string) bool {
	_, ok := priorityFields[field]
	return ok
}

func defaultFieldSorting(keys []string) []string {
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := priorityFields[keys[i]], priorityFields[keys[j]]
		switch {
		case pi != 0 && pj != 0:
			return pi < pj
		case pi != 0:
			return true
		case pj != 0:
			return false
		}
		return keys[i] < keys[j]
	})
	return keys
}
