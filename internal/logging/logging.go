// Package logging provides the structured logger used throughout the
// service, grounded on the teacher's per-component log.New(...,
// "[name] ", ...) convention but backed by logrus so fields (mint,
// job_id, component) are queryable rather than string-formatted.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logrus.Entry scoped to component, the structured
// equivalent of the teacher's log.New(os.Stdout, "[component] ", ...).
func New(component string) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(level)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger.WithField("component", component)
}
