package core

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var once sync.Once

type logger struct {
	*log.Logger
}

var singleton *logger

func getLogger() *logger {
	if singleton == nil {
		once.Do(
			func() {
				l := log.NewWithOptions(os.Stderr, log.Options{
					ReportCaller:    true,
					ReportTimestamp: true,
					TimeFormat:      time.RFC3339,
					Prefix:          "Kiln 🔥 ",
				})
				l.SetLevel(log.InfoLevel)
				singleton = &logger{l}
			})
	}
	return singleton
}

// SetLogLevel applies the configured level name. Unknown names keep the
// current level.
func SetLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		getLogger().SetLevel(log.DebugLevel)
	case "info":
		getLogger().SetLevel(log.InfoLevel)
	case "warn":
		getLogger().SetLevel(log.WarnLevel)
	case "error":
		getLogger().SetLevel(log.ErrorLevel)
	default:
		LogWarn("unknown log level '%s', keeping current", level)
	}
}

func LogDebug(msg string, args ...interface{}) {
	getLogger().Debugf(msg, args...)
}

func LogInfo(msg string, args ...interface{}) {
	getLogger().Infof(msg, args...)
}

func LogWarn(msg string, args ...interface{}) {
	getLogger().Warnf(msg, args...)
}

func LogError(msg string, args ...interface{}) {
	getLogger().Errorf(msg, args...)
}

func LogFatal(msg string, args ...interface{}) {
	getLogger().Fatalf(msg, args...)
}
