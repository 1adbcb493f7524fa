// Package logging provides the engine's diagnostic log sink: a
// level-filtered, structured logger with console, file, and syslog
// destinations, matching the VMREST_LOG_TYPE choice in the original
// engine's configuration. Grounded on nabbar-golib's convention of
// wrapping a *logrus.Logger behind a narrow interface rather than
// passing the concrete type around.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Sink selects where log output goes, mirroring VMREST_LOG_TYPE.
type Sink int

const (
	SinkConsole Sink = iota
	SinkFile
	SinkSyslog
)

// Options configures New. FilePath is required for SinkFile;
// SyslogNetwork/SyslogAddr/SyslogTag are required for SinkSyslog (see
// DialSyslog for the accepted network values).
type Options struct {
	Sink          Sink
	Level         string // logrus level name: "debug", "info", "warn", "error"
	FilePath      string
	SyslogNetwork string
	SyslogAddr    string
	SyslogTag     string
}

// Logger wraps a *logrus.Logger behind the narrow Printf surface the
// engine's resthttpd.Logger interface expects, so callers that want
// structured fields can still reach the underlying *logrus.Logger via
// Raw, while the engine only ever sees Printf.
type Logger struct {
	Raw *logrus.Logger

	closer io.Closer
}

// New builds a Logger from opts. The returned Logger owns whatever
// file or network connection it opens; call Close when the engine
// shuts down.
func New(opts Options) (*Logger, error) {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	log := &Logger{Raw: l}

	switch opts.Sink {
	case SinkFile:
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("logging: open %s: %w", opts.FilePath, err)
		}
		l.SetOutput(f)
		log.closer = f
	case SinkSyslog:
		w, err := DialSyslog(opts.SyslogNetwork, opts.SyslogAddr, opts.SyslogTag)
		if err != nil {
			return nil, err
		}
		l.SetOutput(w)
		log.closer = w
	default:
		l.SetOutput(os.Stderr)
	}

	return log, nil
}

// Printf satisfies the engine's Logger interface.
func (l *Logger) Printf(format string, args ...interface{}) {
	l.Raw.Printf(format, args...)
}

// Close releases the file or network resource backing the sink, if
// any. Safe to call on a console logger (no-op).
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
