package resthttpd_test

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/restcore/resthttpd"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func echoHandler(body string) resthttpd.Handler {
	return func(req *resthttpd.Request, resp *resthttpd.Response, userData interface{}) error {
		resp.SetHeader("Content-Length", fmt.Sprintf("%d", len(body)))
		return resp.SetPayload([]byte(body), len(body), true)
	}
}

// Invariant #7: the lifecycle state machine only accepts the
// documented transitions.
func TestEngineLifecycleStateMachine(t *testing.T) {
	eng := resthttpd.NewEngine()
	cfg := resthttpd.DefaultConfig()
	cfg.Port = freePort(t)

	if err := eng.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := eng.Init(cfg); err == nil {
		t.Fatal("expected a second Init to fail with INVALID_STATE")
	}
	if err := eng.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := eng.Start(); err == nil {
		t.Fatal("expected a second Start to fail with INVALID_STATE")
	}
	if got := eng.State(); got != resthttpd.StateStarted {
		t.Fatalf("State() = %v, want STARTED", got)
	}
	if err := eng.Stop(5); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := eng.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := eng.State(); got != resthttpd.StateUninitialized {
		t.Fatalf("State() after Shutdown = %v, want UNINITIALIZED", got)
	}
}

// Invariant #7 scenario: init; shutdown succeeds even though Start/Stop
// were never called.
func TestEngineShutdownWithoutStartSucceeds(t *testing.T) {
	eng := resthttpd.NewEngine()
	cfg := resthttpd.DefaultConfig()
	cfg.Port = freePort(t)
	if err := eng.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := eng.Shutdown(); err != nil {
		t.Fatalf("Shutdown after Init without Start/Stop: %v", err)
	}
	if got := eng.State(); got != resthttpd.StateUninitialized {
		t.Fatalf("State() after Shutdown = %v, want UNINITIALIZED", got)
	}
}

// A Shutdown from STARTED (skipping Stop) is still rejected.
func TestEngineShutdownWhileStartedFails(t *testing.T) {
	eng := resthttpd.NewEngine()
	cfg := resthttpd.DefaultConfig()
	cfg.Port = freePort(t)
	if err := eng.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := eng.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop(5)
	if err := eng.Shutdown(); err == nil {
		t.Fatal("expected Shutdown while STARTED to fail with INVALID_STATE")
	}
}

func TestEngineRegisterRoundTrip(t *testing.T) {
	eng := resthttpd.NewEngine()
	cfg := resthttpd.DefaultConfig()
	cfg.Port = freePort(t)
	if err := eng.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var table resthttpd.MethodTable
	table[resthttpd.MethodIndex(resthttpd.GET)] = echoHandler("ok")

	if err := eng.Register("/v1/thing", table, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := eng.Register("/v1/thing", table, nil); err == nil {
		t.Fatal("expected a duplicate Register to fail")
	}
	if err := eng.Unregister("/v1/thing"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if err := eng.Unregister("/v1/thing"); err != nil {
		t.Fatalf("Unregister on an absent uri must be idempotent, got %v", err)
	}
}

// startEngine brings up an Engine listening on a free port with the
// given registrations, and returns its base URL plus a cleanup func.
func startEngine(t *testing.T, register func(*resthttpd.Engine)) (string, func()) {
	t.Helper()
	eng := resthttpd.NewEngine()
	cfg := resthttpd.DefaultConfig()
	cfg.Port = freePort(t)
	cfg.WorkerThreadCount = 2
	cfg.MaxClients = 32
	if err := eng.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	register(eng)
	if err := eng.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	base := fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
	// give acceptLoop a moment to be listening-ready; dial retries cover
	// the remaining race.
	for i := 0; i < 50; i++ {
		if c, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Port)); err == nil {
			c.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return base, func() {
		eng.Stop(5)
		eng.Shutdown()
	}
}

// S1/S6 — a registered URI answers 200, an unknown one answers 404.
func TestIntegrationGetAndUnknownURI(t *testing.T) {
	base, cleanup := startEngine(t, func(eng *resthttpd.Engine) {
		var table resthttpd.MethodTable
		table[resthttpd.MethodIndex(resthttpd.GET)] = echoHandler("hello")
		if err := eng.Register("/v1/pkg", table, nil); err != nil {
			t.Fatalf("Register: %v", err)
		}
	})
	defer cleanup()

	resp, err := http.Get(base + "/v1/pkg")
	if err != nil {
		t.Fatalf("GET /v1/pkg: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 || string(body) != "hello" {
		t.Fatalf("got status=%d body=%q", resp.StatusCode, body)
	}

	resp2, err := http.Get(base + "/v1/missing")
	if err != nil {
		t.Fatalf("GET /v1/missing: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != 404 {
		t.Fatalf("got status=%d, want 404", resp2.StatusCode)
	}
}

// S6 — a 404 response does not force the connection closed; a
// spec-compliant HTTP/1.1 client must be able to issue a second
// request on the same keep-alive connection right after it.
func TestIntegrationConnectionSurvives404(t *testing.T) {
	base, cleanup := startEngine(t, func(eng *resthttpd.Engine) {
		var table resthttpd.MethodTable
		table[resthttpd.MethodIndex(resthttpd.GET)] = echoHandler("hello")
		if err := eng.Register("/v1/pkg", table, nil); err != nil {
			t.Fatalf("Register: %v", err)
		}
	})
	defer cleanup()

	conn, err := net.Dial("tcp", strings.TrimPrefix(base, "http://"))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := conn.Write([]byte("GET /v1/missing HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("write 404 request: %v", err)
	}
	br := bufio.NewReader(conn)
	statusLine, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read 404 status line: %v", err)
	}
	if !strings.Contains(statusLine, "404") {
		t.Fatalf("got status line %q, want 404", statusLine)
	}
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("read 404 headers: %v", err)
		}
		if strings.ToLower(strings.TrimSpace(line)) == "connection: close" {
			t.Fatalf("404 response must not claim Connection: close on a keep-alive request")
		}
		if strings.TrimSpace(line) == "" {
			break
		}
	}

	if _, err := conn.Write([]byte("GET /v1/pkg HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("write second request on reused connection: %v", err)
	}
	statusLine2, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read second status line on reused connection: %v", err)
	}
	if !strings.Contains(statusLine2, "200") {
		t.Fatalf("got status line %q on reused connection, want 200", statusLine2)
	}
}

// S4 — a keep-alive client reuses the same TCP connection (and thus
// the same connState/peer port) across two sequential requests.
func TestIntegrationKeepAliveReusesConnection(t *testing.T) {
	var mu sync.Mutex
	var peers []string

	base, cleanup := startEngine(t, func(eng *resthttpd.Engine) {
		var table resthttpd.MethodTable
		table[resthttpd.MethodIndex(resthttpd.GET)] = func(req *resthttpd.Request, resp *resthttpd.Response, ud interface{}) error {
			ip, port, err := req.GetPeerInfo()
			if err != nil {
				return err
			}
			mu.Lock()
			peers = append(peers, fmt.Sprintf("%s:%d", ip, port))
			mu.Unlock()
			resp.SetHeader("Content-Length", "2")
			return resp.SetPayload([]byte("ok"), 2, true)
		}
		if err := eng.Register("/v1/pkg", table, nil); err != nil {
			t.Fatalf("Register: %v", err)
		}
	})
	defer cleanup()

	client := &http.Client{}
	for i := 0; i < 2; i++ {
		resp, err := client.Get(base + "/v1/pkg")
		if err != nil {
			t.Fatalf("GET #%d: %v", i, err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	mu.Lock()
	defer mu.Unlock()
	if len(peers) != 2 {
		t.Fatalf("expected 2 recorded requests, got %d", len(peers))
	}
	if peers[0] != peers[1] {
		t.Fatalf("expected both requests on the same keep-alive connection, got peers %v", peers)
	}
}

// Property #5: N simultaneous clients against K workers all get the
// response addressed to their own request.
func TestIntegrationConcurrentClientsAllRouteCorrectly(t *testing.T) {
	const n = 20
	base, cleanup := startEngine(t, func(eng *resthttpd.Engine) {
		var table resthttpd.MethodTable
		table[resthttpd.MethodIndex(resthttpd.GET)] = func(req *resthttpd.Request, resp *resthttpd.Response, ud interface{}) error {
			id := req.Header.Get("X-Req-Id")
			resp.SetHeader("Content-Length", fmt.Sprintf("%d", len(id)))
			return resp.SetPayload([]byte(id), len(id), true)
		}
		if err := eng.Register("/v1/echo", table, nil); err != nil {
			t.Fatalf("Register: %v", err)
		}
	})
	defer cleanup()

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := fmt.Sprintf("req-%d", i)
			req, _ := http.NewRequest("GET", base+"/v1/echo", nil)
			req.Header.Set("X-Req-Id", want)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				errs <- err
				return
			}
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if string(body) != want {
				errs <- fmt.Errorf("request %d got response %q", i, body)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

// S5 — a client holding an idle keep-alive connection cannot delay
// Stop: the engine closes the connection and returns within the wait
// deadline, and a subsequent Start fails until Shutdown resets the
// engine.
func TestIntegrationStopClosesIdleKeepAliveConnection(t *testing.T) {
	eng := resthttpd.NewEngine()
	cfg := resthttpd.DefaultConfig()
	cfg.Port = freePort(t)
	if err := eng.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var table resthttpd.MethodTable
	table[resthttpd.MethodIndex(resthttpd.GET)] = echoHandler("ok")
	if err := eng.Register("/v1/pkg", table, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := eng.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Port))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))
	if _, err := conn.Write([]byte("GET /v1/pkg HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	br := bufio.NewReader(conn)
	if line, err := br.ReadString('\n'); err != nil || !strings.Contains(line, "200") {
		t.Fatalf("first response: line=%q err=%v", line, err)
	}
	for { // drain headers + empty body so the connection is idle
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("drain headers: %v", err)
		}
		if strings.TrimSpace(line) == "" {
			break
		}
	}
	io.CopyN(io.Discard, br, 2) // "ok"

	start := time.Now()
	if err := eng.Stop(1); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Stop took %v with an idle keep-alive client, want under the wait deadline", elapsed)
	}
	if _, err := br.ReadByte(); err == nil {
		t.Fatal("expected the idle connection to be closed by Stop")
	}
	if err := eng.Start(); err == nil {
		t.Fatal("expected Start after Stop to fail with INVALID_STATE until Shutdown")
	}
	if err := eng.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

// Connections beyond Config.MaxClients are refused at accept: the
// excess peer sees its connection closed without a response.
func TestIntegrationMaxClientsRejectsExcess(t *testing.T) {
	eng := resthttpd.NewEngine()
	cfg := resthttpd.DefaultConfig()
	cfg.Port = freePort(t)
	cfg.MaxClients = 1
	if err := eng.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var table resthttpd.MethodTable
	table[resthttpd.MethodIndex(resthttpd.GET)] = echoHandler("ok")
	if err := eng.Register("/v1/pkg", table, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := eng.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		eng.Stop(1)
		eng.Shutdown()
	}()

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	conn1, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial #1: %v", err)
	}
	defer conn1.Close()
	time.Sleep(100 * time.Millisecond) // let the accept loop claim the only slot

	conn2, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial #2: %v", err)
	}
	defer conn2.Close()
	conn2.SetDeadline(time.Now().Add(5 * time.Second))
	conn2.Write([]byte("GET /v1/pkg HTTP/1.1\r\nHost: x\r\n\r\n"))
	if _, err := conn2.Read(make([]byte, 1)); err == nil {
		t.Fatal("expected the over-limit connection to be closed without a response")
	}
}

// S5 — Stop during idle (no in-flight connections) returns well
// within its wait deadline instead of blocking for the full timeout.
func TestIntegrationStopWhileIdleIsPrompt(t *testing.T) {
	eng := resthttpd.NewEngine()
	cfg := resthttpd.DefaultConfig()
	cfg.Port = freePort(t)
	if err := eng.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := eng.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	start := time.Now()
	if err := eng.Stop(5); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Stop took %v while idle, expected it to return promptly", elapsed)
	}
	if err := eng.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
