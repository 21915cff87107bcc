package log

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"

	"firestige.xyz/framestream/internal/config"
)

type logrusAdapter struct {
	entry *logrus.Entry
}

// Init builds the process logger from cfg and replaces the current one.
func Init(cfg config.LogConfig) error {
	l, w, err := build(cfg)
	if err != nil {
		return err
	}
	setLogger(&logrusAdapter{entry: logrus.NewEntry(l)}, w)
	return nil
}

func build(cfg config.LogConfig) (*logrus.Logger, *MultiWriter, error) {
	l := logrus.New()

	pattern := cfg.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	timeLayout := cfg.Time
	if timeLayout == "" {
		timeLayout = DefaultTime
	}
	l.SetFormatter(&formatter{pattern: pattern, time: timeLayout})
	if strings.Contains(pattern, "%caller") || strings.Contains(pattern, "%func") {
		l.SetReportCaller(true)
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	l.SetLevel(level)

	w := NewMultiWriter()
	appenders := cfg.Appenders
	if len(appenders) == 0 {
		appenders = []config.AppenderConfig{{Type: "console"}}
	}
	for _, a := range appenders {
		switch strings.ToLower(a.Type) {
		case "console", "stdout":
			w.Add(os.Stdout)
		case "file":
			var opt FileAppenderOpt
			if err := mapstructure.Decode(a.Options, &opt); err != nil {
				return nil, nil, fmt.Errorf("invalid file appender options: %w", err)
			}
			if opt.Filename == "" {
				return nil, nil, fmt.Errorf("file appender requires 'filename' option")
			}
			w.AddFileAppender(opt)
		default:
			return nil, nil, fmt.Errorf("unsupported appender type: %s (must be console or file)", a.Type)
		}
	}
	l.SetOutput(w)
	return l, w, nil
}

func (l *logrusAdapter) Print(args ...interface{})                 { l.entry.Print(args...) }
func (l *logrusAdapter) Printf(format string, args ...interface{}) { l.entry.Printf(format, args...) }

func (l *logrusAdapter) Trace(args ...interface{})                 { l.entry.Trace(args...) }
func (l *logrusAdapter) Tracef(format string, args ...interface{}) { l.entry.Tracef(format, args...) }

func (l *logrusAdapter) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logrusAdapter) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *logrusAdapter) Info(args ...interface{})                 { l.entry.Info(args...) }
func (l *logrusAdapter) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

func (l *logrusAdapter) Warn(args ...interface{})                 { l.entry.Warn(args...) }
func (l *logrusAdapter) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

func (l *logrusAdapter) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *logrusAdapter) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusAdapter) Fatal(args ...interface{})                 { l.entry.Fatal(args...) }
func (l *logrusAdapter) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

func (l *logrusAdapter) Panic(args ...interface{})                 { l.entry.Panic(args...) }
func (l *logrusAdapter) Panicf(format string, args ...interface{}) { l.entry.Panicf(format, args...) }

func (l *logrusAdapter) WithField(field string, value interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithField(field, value)}
}
func (l *logrusAdapter) WithFields(fields map[string]interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithFields(fields)}
}
func (l *logrusAdapter) WithError(err error) Logger {
	return &logrusAdapter{entry: l.entry.WithError(err)}
}

func (l *logrusAdapter) IsTraceEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.TraceLevel)
}
func (l *logrusAdapter) IsDebugEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}
func (l *logrusAdapter) IsInfoEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.InfoLevel)
}
