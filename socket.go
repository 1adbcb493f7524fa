package resthttpd

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// connState is a connection exclusively owned by one worker goroutine
// at a time, per §3's data model. It never outlives the worker that
// is currently serving it; ownership transfers only by being pulled
// off the eventQueue. phase is atomic because Stop's closeIdle sweep
// reads it from outside the owning worker.
type connState struct {
	netConn net.Conn
	br      *bufio.Reader
	bw      *bufio.Writer

	tlsState *tls.ConnectionState
	peerAddr string

	correlationID string
	clientIndex   int
	phase         atomic.Int32

	cfg Config
	eng *Engine
}

func (c *connState) setPhase(p ConnPhase) { c.phase.Store(int32(p)) }
func (c *connState) getPhase() ConnPhase  { return ConnPhase(c.phase.Load()) }

// socket owns one listening address, accepting connections and
// enqueuing a NEW_CONNECTION event for each. Grounded on the
// teacher's tcpKeepAliveListener (keep-alive on the accepted TCP
// conn) generalized with optional TLS wrapping per §4.C. Request
// traffic is TCP only; the UDP pair exists for control-plane parity
// with the original four-listener set — its shutdown wake-up role is
// covered in Go by Listener.Close unblocking Accept, so no datagram is
// ever sent or read. Binding the UDP ports can fail (v6-less hosts,
// port reuse policy) without affecting service, so failures there are
// logged and ignored.
type socket struct {
	ln  net.Listener
	udp []net.PacketConn
	eng *Engine
}

func newSocket(eng *Engine) (*socket, error) {
	addr := ":" + strconv.Itoa(eng.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, newError("newSocket", KindInternal, err)
	}
	if tl, ok := ln.(*net.TCPListener); ok {
		ln = tcpKeepAliveListener{tl}
	}
	if eng.cfg.IsSecure {
		tlsCfg, err := buildTLSConfig(eng.cfg)
		if err != nil {
			ln.Close()
			return nil, err
		}
		ln = tls.NewListener(ln, tlsCfg)
	}

	s := &socket{ln: ln, eng: eng}
	for _, network := range []string{"udp4", "udp6"} {
		pc, err := net.ListenPacket(network, addr)
		if err != nil {
			eng.logf("control socket %s %s unavailable: %v", network, addr, err)
			continue
		}
		s.udp = append(s.udp, pc)
	}
	return s, nil
}

// tcpKeepAliveListener mirrors the teacher's tcp_keep_alive_listener.go:
// every accepted connection gets TCP keepalive turned on so idle
// peers behind NATs/firewalls don't silently vanish.
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (l tcpKeepAliveListener) Accept() (net.Conn, error) {
	conn, err := l.AcceptTCP()
	if err != nil {
		return nil, err
	}
	conn.SetKeepAlive(true)
	conn.SetKeepAlivePeriod(3 * time.Minute)
	return conn, nil
}

// buildTLSConfig realizes Config's SSL fields as a crypto/tls.Config,
// per §4.C's secure-mode description: certificate/key load failure is
// fatal (returned here, surfaced by Engine.Start).
func buildTLSConfig(cfg Config) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.SSLCertPath, cfg.SSLKeyPath)
	if err != nil {
		return nil, newError("buildTLSConfig", KindTLSError, err)
	}
	minVersion := uint16(tls.VersionTLS10)
	if cfg.SSLMinTLS12 {
		minVersion = tls.VersionTLS12
	}
	suites, err := parseCipherList(cfg.SSLCipherList)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion,
		CipherSuites: suites,
	}, nil
}

// parseCipherList resolves a colon- or comma-separated list of cipher
// suite names (IANA names, as crypto/tls spells them) to suite IDs.
// An empty list means crypto/tls picks its own defaults. A name that
// matches no supported suite is an error rather than silently ignored:
// a typo in a cipher list must not widen what the operator intended to
// pin.
func parseCipherList(list string) ([]uint16, error) {
	if list == "" {
		return nil, nil
	}
	byName := make(map[string]uint16)
	for _, cs := range tls.CipherSuites() {
		byName[cs.Name] = cs.ID
	}
	var ids []uint16
	for _, name := range strings.FieldsFunc(list, func(r rune) bool { return r == ':' || r == ',' }) {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, ok := byName[name]
		if !ok {
			return nil, newError("parseCipherList", KindInvalidParams, fmt.Errorf("unsupported cipher suite %q", name))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// acceptLoop runs as its own goroutine per listener (§4.D): accept,
// wrap the connection in a connState, enqueue NEW_CONNECTION. It
// returns once Accept fails, which happens once the listener is
// closed during shutdown.
func (s *socket) acceptLoop(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			s.eng.metricsSink.AcceptError()
			return
		}
		s.eng.metricsSink.AcceptOK()

		cs := &connState{
			netConn:       nc,
			br:            newBufReader(nc, s.eng.cfg.MaxDataBufferLen),
			bw:            newBufWriter(nc),
			peerAddr:      nc.RemoteAddr().String(),
			correlationID: uuid.New().String(),
			cfg:           s.eng.cfg,
			eng:           s.eng,
		}
		cs.setPhase(PhaseReadingHead)
		if tlsConn, ok := nc.(*tls.Conn); ok {
			cs.tlsState = new(tls.ConnectionState)
			_ = tlsConn // handshake deferred to the worker, inline at serve entry
		}

		idx, ok := s.eng.conns.add(cs)
		if !ok {
			s.eng.metricsSink.ConnectionRejected()
			s.eng.logf("refusing connection from %s: %d clients already connected", cs.peerAddr, s.eng.cfg.MaxClients)
			nc.Close()
			continue
		}
		cs.clientIndex = idx

		s.eng.queue.enqueue(event{conn: cs, kind: EventNewConnection})
	}
}

func (s *socket) close() error {
	for _, pc := range s.udp {
		pc.Close()
	}
	return s.ln.Close()
}
