// Package logging configures the process-wide logger: stdout for
// interactive use plus a rotating file under the data directory, so an
// unattended service keeps a bounded on-disk trail.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup routes the stdlib logger to the rotating file, and to stdout too
// unless the process runs as a service.
func Setup(dataDir string, isService bool) error {
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("ensure log directory: %w", err)
	}

	rotating := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "autoportal.log"),
		MaxSize:    5, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
	}

	var out io.Writer = rotating
	if !isService {
		out = io.MultiWriter(os.Stdout, rotating)
	}

	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.LUTC)
	return nil
}
