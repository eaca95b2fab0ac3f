package persistence

import (
	"fmt"
	"strings"

	"github.com/marmos91/dittofs-embedded/internal/logger"
)

// badgerLogger routes BadgerDB's printf-style logging through the module logger.
// Badger's info output is verbose, so it is logged at debug level.
type badgerLogger struct{}

func format(f string, args ...interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(f, args...))
}

func (badgerLogger) Errorf(f string, args ...interface{}) {
	logger.Error(format(f, args...), logger.KeyComponent, "badger")
}

func (badgerLogger) Warningf(f string, args ...interface{}) {
	logger.Warn(format(f, args...), logger.KeyComponent, "badger")
}

func (badgerLogger) Infof(f string, args ...interface{}) {
	logger.Debug(format(f, args...), logger.KeyComponent, "badger")
}

func (badgerLogger) Debugf(f string, args ...interface{}) {
	logger.Debug(format(f, args...), logger.KeyComponent, "badger")
}
