// Package jvivo stores Go values as JSON files, one file per value.
package jvivo

import (
	"os"

	"github.com/nasdf/jvivo/session"
)

// Open loads the config file at path and returns a session that logs to stderr.
//
// Options are applied after the configured defaults.
func Open(path string, opts ...session.Option) (*session.Session, error) {
	cfg, err := session.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return OpenConfig(cfg, opts...)
}

// OpenConfig returns a session for cfg that logs to stderr.
func OpenConfig(cfg session.Config, opts ...session.Option) (*session.Session, error) {
	logger, err := session.NewLogger(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return session.New(cfg, append([]session.Option{session.WithLogger(logger)}, opts...)...)
}
