package cmd

import (
	"go.uber.org/zap"

	"github.com/darkhz/btspp/config"
)

// newLogger builds the logger described by the configuration. Logs go to
// the log file if one is set, or to stderr otherwise. The console owns
// the terminal, so it only logs to a file.
func newLogger(v config.Values) (*zap.Logger, error) {
	output := "stderr"
	switch {
	case v.LogFile != "":
		output = v.LogFile

	case v.Console:
		return zap.NewNop(), nil
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(v.Level)
	cfg.OutputPaths = []string{output}
	cfg.ErrorOutputPaths = []string{output}
	cfg.DisableStacktrace = true

	return cfg.Build()
}
