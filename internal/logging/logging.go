package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// ComponentField is the extra field added for component sub-loggers.
const ComponentField = "comp"

var root = logrus.New()

func init() {
	root.SetOutput(os.Stderr)
	root.SetLevel(logrus.InfoLevel)
	root.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
}

// SetLevel changes the level of the root logger; sub-loggers inherit it.
func SetLevel(level string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	root.SetLevel(parsed)
	return nil
}

// SetJSONFormat switches the root logger to JSON output.
func SetJSONFormat() {
	root.SetFormatter(&logrus.JSONFormatter{})
}

// NewComponentLogger returns a sub-logger tagged with the component name.
func NewComponentLogger(component string) *logrus.Entry {
	return root.WithField(ComponentField, component)
}
