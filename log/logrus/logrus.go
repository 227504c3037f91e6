package logrus

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/tresor"
)

var _ tresor.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New returns a logger writing to stderr. format is "json" or "text".
func New(level, format string) (LogrusLogger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return LogrusLogger{}, err
	}
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(lvl)
	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return LogrusLogger{E: logrus.NewEntry(l)}, nil
}

func (l LogrusLogger) Debug(msg string, f tresor.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f tresor.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f tresor.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f tresor.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
