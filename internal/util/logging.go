package util

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the structured logger every driver-level package logs
// through (spec.md's ambient-stack expansion: logrus replaces the teacher's
// bare fmt.Println calls at diagnostic sites). Verbose mode drops the level
// to Debug so the IR-dump entry surfaces.
func NewLogger(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.Out = os.Stderr
	log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}
