package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var base = newLogger(os.Stdout)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(logrus.InfoLevel)
	l.SetOutput(out)
	return l
}

// Logger returns the process-wide logger
func Logger() *logrus.Logger {
	return base
}

// Configure sets the level by name. Unknown names leave the level unchanged
// and are reported back as an error.
func Configure(level string) error {
	if strings.TrimSpace(level) == "" {
		return nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	base.SetLevel(lvl)
	return nil
}

// SetOutput redirects all log output, mostly for tests
func SetOutput(out io.Writer) {
	base.SetOutput(out)
}

// Component returns an entry tagged with the emitting component
func Component(name string) *logrus.Entry {
	return base.WithField("component", name)
}
