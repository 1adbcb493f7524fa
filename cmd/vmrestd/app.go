// Command vmrestd is the interactive test client for the resthttpd
// engine, a direct descendant of the original C demo's getopt-driven
// sub-commands (config/restengine/endpoint/server/help/exit), rebuilt
// as a cobra.Command tree with an added go-prompt shell so the same
// verbs work one-shot from a real shell or interactively from the
// REPL. It serves a single demo resource, backed by filetransport, at
// whatever URI `endpoint --registerURI` names.
package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/restcore/resthttpd"
	"github.com/restcore/resthttpd/filetransport"
	"github.com/restcore/resthttpd/logging"
	"github.com/restcore/resthttpd/metrics"
)

// app holds the process-wide state the sub-commands mutate: the
// engine handle, its configuration (built up by `config` before
// `restengine --init`), and the logger/metrics wired into it at Init
// time. One app is shared by every command in a process, so in shell
// mode state built by one line is visible to the next, matching the
// original CLI's single persistent gVMRESTHandle.
type app struct {
	eng    *resthttpd.Engine
	cfg    resthttpd.Config
	store  filetransport.Store
	logger *logging.Logger
}

func newApp() *app {
	return &app{
		eng: resthttpd.NewEngine(),
		cfg: resthttpd.DefaultConfig(),
		store: filetransport.Store{
			Root: os.TempDir(),
			Name: "vmrestd-pkg",
		},
	}
}

// exitCode maps an engine error onto a process exit code via its
// Kind, falling back to 1 for errors the engine didn't classify.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if kind, ok := resthttpd.KindOf(err); ok {
		return kind.ExitCode()
	}
	return 1
}

func (a *app) initEngine() error {
	logOpts := logging.Options{Level: a.cfg.DebugLogLevel}
	switch a.cfg.LogType {
	case resthttpd.LogTypeFile:
		logOpts.Sink = logging.SinkFile
		logOpts.FilePath = a.cfg.DebugLogFile
	case resthttpd.LogTypeSyslog:
		logOpts.Sink = logging.SinkSyslog
		logOpts.SyslogNetwork = "udp"
		logOpts.SyslogAddr = "127.0.0.1:514"
		logOpts.SyslogTag = a.cfg.DaemonName
	default:
		logOpts.Sink = logging.SinkConsole
	}

	logger, err := logging.New(logOpts)
	if err != nil {
		return fmt.Errorf("vmrestd: building logger: %w", err)
	}
	a.logger = logger
	a.eng.SetLogger(logger)
	a.eng.SetMetrics(metrics.NewCollector(prometheus.DefaultRegisterer, a.cfg.DaemonName))

	return a.eng.Init(a.cfg)
}

func (a *app) registerPackageEndpoint(uri string) error {
	var table resthttpd.MethodTable
	table[resthttpd.MethodIndex(resthttpd.GET)] = filetransport.GetHandler(a.store)
	table[resthttpd.MethodIndex(resthttpd.PUT)] = filetransport.PutHandler(a.store)
	table[resthttpd.MethodIndex(resthttpd.POST)] = filetransport.PutHandler(a.store)
	return a.eng.Register(uri, table, nil)
}
