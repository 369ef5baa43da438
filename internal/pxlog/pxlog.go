// Package pxlog provides structured diagnostic logging to
// .px/logs/px.log. It is never read by px itself — only by humans
// debugging a failed run.
package pxlog

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// DirName is the project-relative logs directory.
const DirName = ".px/logs"

// FileName is the log file within DirName.
const FileName = "px.log"

// Logger wraps a logrus.Logger scoped to one project root.
type Logger struct {
	*logrus.Logger
	path string
}

// Open creates (or appends to) .px/logs/px.log under root, writing
// JSON lines. Console output stays on the CLI's own stderr writer;
// this logger is purely the on-disk diagnostic trail.
func Open(root string) (*Logger, error) {
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	p := filepath.Join(dir, FileName)
	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetOutput(f)
	l.SetLevel(logrus.InfoLevel)
	return &Logger{Logger: l, path: p}, nil
}

// Discard returns a Logger that writes nowhere, for pure-reader
// commands invoked without a writable project root (e.g. `px status`
// on a directory px has never touched).
func Discard() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{Logger: l}
}

// Path returns the log file path, or "" for a Discard logger.
func (l *Logger) Path() string {
	return l.path
}

// Command returns a child entry scoped to one invoked command, so every
// line in px.log can be correlated back to the command that wrote it.
func (l *Logger) Command(name string) *logrus.Entry {
	return l.WithField("command", name)
}
