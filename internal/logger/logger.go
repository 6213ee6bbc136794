package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[37m"
)

// PrettyFormatter renders entries as a single colorized line:
// time, level, message and the sorted fields.
type PrettyFormatter struct {
	// DisableColors drops the ANSI escapes, used for file output.
	DisableColors bool
}

func (f *PrettyFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	b.WriteString(entry.Time.Format(time.TimeOnly))
	b.WriteByte(' ')
	b.WriteString(f.colorizeLevel(entry.Level))
	b.WriteByte(' ')
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if f.DisableColors {
			fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
			continue
		}
		fmt.Fprintf(&b, " %s%s%s=%v", colorGray, k, colorReset, entry.Data[k])
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *PrettyFormatter) colorizeLevel(level logrus.Level) string {
	var color string
	var name string

	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		color = colorBlue
		name = "DEBUG"
	case logrus.InfoLevel:
		color = colorGreen
		name = "INFO"
	case logrus.WarnLevel:
		color = colorYellow
		name = "WARN"
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		color = colorRed
		name = "ERROR"
	default:
		color = colorGray
		name = strings.ToUpper(level.String())
	}

	if f.DisableColors {
		return fmt.Sprintf("%-5s", name)
	}
	return fmt.Sprintf("%s%-5s%s", color, name, colorReset)
}

// Options controls where and how verbosely a logger writes.
type Options struct {
	// Level is a logrus level name. Empty falls back to LOG_LEVEL, then info.
	Level string
	// File, when set, receives the log through a rotating writer instead of Out.
	File string
	// Out defaults to stderr.
	Out io.Writer
}

func New(opts Options) *logrus.Logger {
	log := logrus.New()

	level := opts.Level
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	log.SetLevel(ParseLevel(level))

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	if opts.File != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		})
		log.SetFormatter(&PrettyFormatter{DisableColors: true})
		return log
	}

	log.SetOutput(out)
	log.SetFormatter(&PrettyFormatter{})
	return log
}

func NewLogger() *logrus.Logger {
	return New(Options{})
}

// NewDiscard returns a logger that drops everything. Handy in tests.
func NewDiscard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// ParseLevel maps a level name to a logrus level, defaulting to info.
func ParseLevel(name string) logrus.Level {
	level, err := logrus.ParseLevel(strings.TrimSpace(name))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
