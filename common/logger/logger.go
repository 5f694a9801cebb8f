// Package logger holds the process-wide structured logger.
package logger

import (
	"fmt"
	"os"

	glog "github.com/Laisky/go-utils/v6/log"
)

// Logger is the shared logger. Request-scoped code should prefer the
// request logger from the gin middleware; this one is for everything else.
var Logger glog.Logger

func init() {
	var err error
	Logger, err = glog.NewConsoleWithName("codegate", glog.LevelInfo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %+v\n", err)
		os.Exit(1)
	}
}

// SetDebug raises verbosity to debug level.
func SetDebug() {
	if err := Logger.ChangeLevel(glog.LevelDebug); err != nil {
		Logger.Error("change log level")
	}
}
