package resthttpd

import (
	"sync"
	"time"

	"github.com/restcore/resthttpd/registry"
)

// Handler is the callback signature a URI registers per method, §3's
// Endpoint. userData is the opaque pointer passed at Register time,
// handed back unchanged on every invocation.
type Handler func(req *Request, resp *Response, userData interface{}) error

// MethodTable is the six-slot {GET, PUT, POST, DELETE, PATCH, HEAD}
// callback table of an Endpoint. A nil slot means that method is not
// allowed on the URI.
type MethodTable [registry.NumMethods]Handler

// Logger is the narrow logging surface the engine needs; the logging
// subpackage's *logging.Logger (a logrus.FieldLogger wrapper) satisfies
// it, and so does logrus itself.
type Logger interface {
	Printf(format string, args ...interface{})
}

// Engine is the process-wide handle of §3/§4.I: it owns configuration,
// the registry, the socket set, the worker pool, and the lifecycle
// state machine UNINITIALIZED -> INITIALIZED -> STARTED -> STOPPING ->
// STOPPED. The zero value is UNINITIALIZED and ready for Init.
type Engine struct {
	mu    sync.Mutex
	state State

	cfg      Config
	registry *registry.Registry
	queue    *eventQueue
	conns    *connTable
	sockets  []*socket
	pool     *workerPool

	workersWG sync.WaitGroup
	acceptWG  sync.WaitGroup

	logger      Logger
	metricsSink MetricsSink

	shuttingDown bool
}

// NewEngine returns an UNINITIALIZED Engine with the no-op metrics
// sink installed. A zero Engine value works the same way: Init
// installs the no-op sink if none was set.
func NewEngine() *Engine {
	return &Engine{metricsSink: noopMetrics{}}
}

// SetLogger installs a logger used for the engine's own diagnostic
// output (handler panics, accept errors, TLS failures). It must be
// called before Init; the default is a discarding logger.
func (e *Engine) SetLogger(l Logger) { e.logger = l }

// SetMetrics installs a MetricsSink; the default is a no-op sink. It
// must be called before Start.
func (e *Engine) SetMetrics(m MetricsSink) {
	if m == nil {
		m = noopMetrics{}
	}
	e.metricsSink = m
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// Init is VmRESTInitProtocolServer: validates cfg and moves the engine
// from UNINITIALIZED to INITIALIZED. Calling Init twice without an
// intervening Shutdown fails with INVALID_STATE.
func (e *Engine) Init(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateUninitialized {
		return newError("Engine.Init", KindInvalidState, nil)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg
	e.registry = registry.New()
	e.queue = newEventQueue()
	e.conns = newConnTable(cfg.MaxClients)
	if e.metricsSink == nil {
		e.metricsSink = noopMetrics{}
	}
	e.state = StateInitialized
	return nil
}

// Start is VmRESTStartProtocolServer: opens the listening socket(s),
// spawns the worker pool and accept loop(s), and moves the engine to
// STARTED. Must be called exactly once after Init.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateInitialized {
		return newError("Engine.Start", KindInvalidState, nil)
	}

	sock, err := newSocket(e)
	if err != nil {
		return err
	}
	e.sockets = append(e.sockets, sock)

	e.pool = newWorkerPool(e, e.cfg.WorkerThreadCount)
	e.pool.start()

	e.acceptWG.Add(1)
	go sock.acceptLoop(&e.acceptWG)

	e.state = StateStarted
	return nil
}

// Stop is VmRESTStopProtocolServer: flips the shutdown flag, closes
// listeners (unblocking any pending Accept), enqueues one SHUTDOWN
// sentinel per worker, force-closes connections parked between
// requests (a worker blocked reading an idle keep-alive peer's next
// request would otherwise hold the join hostage for the full read
// timeout), and waits up to waitSeconds for the workers to drain.
// Workers still running past the deadline are abandoned and every
// remaining connection is force-closed. The engine moves
// STARTED -> STOPPING -> STOPPED.
func (e *Engine) Stop(waitSeconds int) error {
	e.mu.Lock()
	if e.state != StateStarted {
		e.mu.Unlock()
		return newError("Engine.Stop", KindInvalidState, nil)
	}
	e.state = StateStopping
	e.shuttingDown = true
	sockets := e.sockets
	n := e.cfg.WorkerThreadCount
	e.mu.Unlock()

	for _, s := range sockets {
		s.close()
	}

	for i := 0; i < n; i++ {
		e.queue.enqueue(event{kind: EventShutdown})
	}
	e.queue.close()
	e.conns.closeIdle()

	done := make(chan struct{})
	go func() {
		e.workersWG.Wait()
		e.acceptWG.Wait()
		close(done)
	}()

	if waitSeconds <= 0 {
		<-done
	} else {
		select {
		case <-done:
		case <-time.After(time.Duration(waitSeconds) * time.Second):
			// abandon the stragglers, but take their sockets away
			e.conns.closeAll()
		}
	}

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()
	return nil
}

// Shutdown is VmRESTShutdownProtocolServer: releases the remaining
// resources (registry, event queue) and resets the engine to
// UNINITIALIZED. Legal from INITIALIZED (never started) or STOPPED;
// STARTED/STOPPING must go through Stop first.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateStopped && e.state != StateInitialized {
		return newError("Engine.Shutdown", KindInvalidState, nil)
	}
	e.registry = nil
	e.queue = nil
	e.conns = nil
	e.sockets = nil
	e.pool = nil
	e.shuttingDown = false
	e.state = StateUninitialized
	return nil
}

func (e *Engine) isShuttingDown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shuttingDown
}

// State reports the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}
