package log

import (
	"os"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var Root = &logrus.Logger{
	Out:   os.Stderr,
	Level: logrus.TraceLevel,
	Formatter: &prefixed.TextFormatter{
		DisableColors: func() bool {
			term, ok := os.LookupEnv("TERM")
			return term == "" || !ok
		}(),
		ForceFormatting: true,
		TimestampFormat: "2006-01-02 15:04:05",
	},
}

// ChildLogger tags every entry with a subsystem prefix and carries its
// own level, so one subsystem can be put in debug mode without drowning
// out the others.
type ChildLogger struct {
	parent *logrus.Logger
	prefix string
	level  logrus.Level
}

func NewChildLogger(parent *logrus.Logger, prefix string, debug bool) *ChildLogger {
	lc := &ChildLogger{
		parent: parent,
		prefix: prefix,
	}
	lc.SetDebug(debug)
	return lc
}

func (l *ChildLogger) SetDebug(debug bool) {
	if debug {
		l.level = logrus.DebugLevel
	} else {
		l.level = logrus.InfoLevel
	}
}

func (l *ChildLogger) IsDebug() bool {
	return l.level >= logrus.DebugLevel
}

func (l *ChildLogger) shouldOutput(level logrus.Level) bool {
	return l.level >= level
}

func (l *ChildLogger) entry() *logrus.Entry {
	return l.parent.WithField("prefix", l.prefix)
}

func (l *ChildLogger) Debug(args ...interface{}) {
	if l.shouldOutput(logrus.DebugLevel) {
		l.entry().Debug(args...)
	}
}

func (l *ChildLogger) Info(args ...interface{}) {
	if l.shouldOutput(logrus.InfoLevel) {
		l.entry().Info(args...)
	}
}

func (l *ChildLogger) Warning(args ...interface{}) {
	if l.shouldOutput(logrus.WarnLevel) {
		l.entry().Warning(args...)
	}
}

func (l *ChildLogger) Error(args ...interface{}) {
	if l.shouldOutput(logrus.ErrorLevel) {
		l.entry().Error(args...)
	}
}

func (l *ChildLogger) Debugf(format string, args ...interface{}) {
	if l.shouldOutput(logrus.DebugLevel) {
		l.entry().Debugf(format, args...)
	}
}

func (l *ChildLogger) Infof(format string, args ...interface{}) {
	if l.shouldOutput(logrus.InfoLevel) {
		l.entry().Infof(format, args...)
	}
}

func (l *ChildLogger) Warningf(format string, args ...interface{}) {
	if l.shouldOutput(logrus.WarnLevel) {
		l.entry().Warningf(format, args...)
	}
}

func (l *ChildLogger) Errorf(format string, args ...interface{}) {
	if l.shouldOutput(logrus.ErrorLevel) {
		l.entry().Errorf(format, args...)
	}
}

// Printf logs at info level, so a ChildLogger can stand in where code
// expects a stdlib-style logger.
func (l *ChildLogger) Printf(format string, args ...interface{}) {
	l.Infof(format, args...)
}

// Children groups the per-subsystem loggers handed out to the stack.
type Children struct {
	USB   *ChildLogger
	MTP   *ChildLogger
	Data  *ChildLogger
	Event *ChildLogger
}

func PrepareChildren(parent *logrus.Logger, usb, mtp, data, event bool) *Children {
	return &Children{
		USB:   NewChildLogger(parent, "usb", usb),
		MTP:   NewChildLogger(parent, "mtp", mtp),
		Data:  NewChildLogger(parent, "data", data),
		Event: NewChildLogger(parent, "event", event),
	}
}
