// Package portmanager implements PortManager: a
// bind-and-release availability probe, auto-switch strategies, best-effort
// force-close, and port redirection with per-instance stats.
package portmanager

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nehonix/xypriss/internal/model"
)

// Strategy selects an auto-switch algorithm.
type Strategy string

const (
	StrategyIncrement  Strategy = "increment"
	StrategyRandom     Strategy = "random"
	StrategyPredefined Strategy = "predefined"
)

// PortExhaustionError is raised when every candidate port was
// unavailable.
type PortExhaustionError struct {
	Host      string
	Attempted []int
}

func (e *PortExhaustionError) Error() string {
	return fmt.Sprintf("portmanager: exhausted %d candidate ports on %s", len(e.Attempted), e.Host)
}

// OnPortSwitch is invoked after a successful auto-switch.
type OnPortSwitch func(original, new int)

// Manager owns port probing, auto-switch, and redirect-instance lifecycle.
type Manager struct {
	mu        sync.Mutex
	redirects map[int]*model.RedirectInstance

	OnSwitch OnPortSwitch
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{redirects: map[int]*model.RedirectInstance{}}
}

// IsAvailable attempts a bind-and-release on (host, port). An
// address-in-use error is treated as unavailable (ok=false, err=nil); any
// other error propagates.
func IsAvailable(host string, port int) (bool, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if isAddrInUse(err) {
			return false, nil
		}
		return false, err
	}
	_ = ln.Close()
	return true, nil
}

func isAddrInUse(err error) bool {
	var opErr *net.OpError
	if !errors.As(err, &opErr) || opErr.Op != "listen" {
		return false
	}
	return errors.Is(opErr.Err, syscall.EADDRINUSE)
}

// AcquirePort applies the configured auto-switch strategy to find a bindable
// port, starting from desired, and returns the chosen port. The original
// port is reported to OnSwitch only when the chosen port differs from
// desired.
func (m *Manager) AcquirePort(host string, desired int, strategy Strategy, maxAttempts int, portRange [2]int, predefined []int) (int, error) {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	var attempted []int
	tryPort := func(p int) (bool, error) {
		attempted = append(attempted, p)
		ok, err := IsAvailable(host, p)
		if err != nil {
			return false, err
		}
		return ok, nil
	}

	switch strategy {
	case StrategyPredefined:
		for _, p := range predefined {
			ok, err := tryPort(p)
			if err != nil {
				return 0, err
			}
			if ok {
				m.fireSwitch(desired, p)
				return p, nil
			}
		}
	case StrategyRandom:
		lo, hi := portRange[0], portRange[1]
		if lo <= 0 || hi <= lo {
			lo, hi = desired, desired+1000
		}
		for i := 0; i < maxAttempts; i++ {
			p := lo + rand.Intn(hi-lo+1)
			ok, err := tryPort(p)
			if err != nil {
				return 0, err
			}
			if ok {
				m.fireSwitch(desired, p)
				return p, nil
			}
		}
	default: // increment
		hi := portRange[1]
		for i := 0; i < maxAttempts; i++ {
			p := desired + i
			if hi > 0 && p > hi {
				break
			}
			ok, err := tryPort(p)
			if err != nil {
				return 0, err
			}
			if ok {
				m.fireSwitch(desired, p)
				return p, nil
			}
		}
	}

	return 0, &PortExhaustionError{Host: host, Attempted: attempted}
}

func (m *Manager) fireSwitch(original, chosen int) {
	if chosen != original && m.OnSwitch != nil {
		m.OnSwitch(original, chosen)
	}
}

// ForceClose is a platform-dependent best-effort attempt to free a port by
// locating and signaling the holding process, then re-probing. The caller
// supplies the process-table lookup (findPID) and the signal (killPID);
// this function only performs the probe-kill-reprobe sequence once a pid
// is known.
func ForceClose(host string, port int, killPID func(pid int) error, findPID func(port int) (int, error)) bool {
	pid, err := findPID(port)
	if err != nil || pid <= 0 {
		return false
	}
	if err := killPID(pid); err != nil {
		return false
	}
	time.Sleep(200 * time.Millisecond)
	ok, _ := IsAvailable(host, port)
	return ok
}

// RedirectOptions configures one StartRedirect call.
type RedirectOptions struct {
	Mode                        model.RedirectMode
	IdleTimeout                 time.Duration
	PreserveForwardedHeaders    bool
	RedirectStatus              int // 301 or 302, for Mode == redirect
	MessageBody                 string
	AutoDisconnectAfter         time.Duration
	AutoDisconnectAfterRequests int64
	MaxRequests                 int
	WindowMS                    time.Duration
}

// StartRedirect starts a minimal listener on fromPort that handles each
// accepted connection per opts.Mode.
func (m *Manager) StartRedirect(fromPort, toPort int, opts RedirectOptions) (*model.RedirectInstance, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", fromPort))
	if err != nil {
		return nil, err
	}

	inst := &model.RedirectInstance{
		FromPort:  fromPort,
		ToPort:    toPort,
		Mode:      opts.Mode,
		Options:   map[string]interface{}{},
		StartedAt: time.Now(),
	}
	stop := inst.StopChannel()

	m.mu.Lock()
	m.redirects[fromPort] = inst
	m.mu.Unlock()

	var requestCount int64
	var limiter *rateWindow
	if opts.MaxRequests > 0 && opts.WindowMS > 0 {
		limiter = newRateWindow(opts.MaxRequests, opts.WindowMS)
	}

	go func() {
		<-stop
		_ = ln.Close()
	}()

	go func() {
		defer ln.Close()
		for {
			select {
			case <-stop:
				return
			default:
			}
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-stop:
					return
				default:
					continue
				}
			}

			count := atomic.AddInt64(&requestCount, 1)
			if limiter != nil && !limiter.allow() {
				atomic.AddInt64(&inst.Stats.FailureCount, 1)
				_ = conn.Close()
				continue
			}

			go m.handleRedirectConn(conn, inst, toPort, opts)

			if opts.AutoDisconnectAfterRequests > 0 && count >= opts.AutoDisconnectAfterRequests {
				inst.Stop()
			}
		}
	}()

	if opts.AutoDisconnectAfter > 0 {
		go func() {
			select {
			case <-time.After(opts.AutoDisconnectAfter):
				inst.Stop()
			case <-stop:
			}
		}()
	}

	return inst, nil
}

func (m *Manager) handleRedirectConn(conn net.Conn, inst *model.RedirectInstance, toPort int, opts RedirectOptions) {
	defer conn.Close()
	start := time.Now()
	atomic.AddInt64(&inst.Stats.TotalRequests, 1)

	var err error
	switch opts.Mode {
	case model.RedirectTransparent:
		err = m.proxyTransparent(conn, toPort, opts)
	case model.RedirectRedirect:
		req, _ := http.ReadRequest(bufio.NewReader(conn))
		err = writeHTTPRedirect(conn, toPort, opts, req)
	case model.RedirectMessage:
		err = writeHTTPMessage(conn, opts)
	default:
		err = writeHTTPMessage(conn, opts)
	}

	elapsed := time.Since(start).Nanoseconds()
	if err != nil {
		atomic.AddInt64(&inst.Stats.FailureCount, 1)
	} else {
		atomic.AddInt64(&inst.Stats.SuccessCount, 1)
	}
	prevAvg := atomic.LoadInt64(&inst.Stats.RollingAvgNS)
	atomic.StoreInt64(&inst.Stats.RollingAvgNS, (prevAvg+elapsed)/2)
}

func (m *Manager) proxyTransparent(conn net.Conn, toPort int, opts RedirectOptions) error {
	upstream, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", toPort), 5*time.Second)
	if err != nil {
		return err
	}
	defer upstream.Close()

	if opts.IdleTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(opts.IdleTimeout))
		_ = upstream.SetDeadline(time.Now().Add(opts.IdleTimeout))
	}

	done := make(chan struct{}, 2)
	go func() { _, _ = io.Copy(upstream, conn); done <- struct{}{} }()
	go func() { _, _ = io.Copy(conn, upstream); done <- struct{}{} }()
	<-done
	return nil
}

func writeHTTPRedirect(conn net.Conn, toPort int, opts RedirectOptions, req *http.Request) error {
	status := opts.RedirectStatus
	if status != http.StatusMovedPermanently && status != http.StatusFound {
		status = http.StatusFound
	}
	location := redirectLocation(req, toPort)
	resp := fmt.Sprintf("HTTP/1.1 %d %s\r\nLocation: %s\r\nContent-Length: 0\r\nConnection: close\r\n\r\n",
		status, http.StatusText(status), location)
	_, err := conn.Write([]byte(resp))
	return err
}

// redirectLocation rewrites the port in the original request's URL while
// preserving its host and path. A nil or unparsable req falls back to a
// bare root redirect on localhost.
func redirectLocation(req *http.Request, toPort int) string {
	if req == nil {
		return fmt.Sprintf("http://localhost:%d/", toPort)
	}
	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	if hostname == "" {
		hostname = "localhost"
	}
	path := req.URL.RequestURI()
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("http://%s:%d%s", hostname, toPort, path)
}

func writeHTTPMessage(conn net.Conn, opts RedirectOptions) error {
	body := opts.MessageBody
	if body == "" {
		body = "this port has moved"
	}
	resp := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		len(body), body)
	_, err := conn.Write([]byte(resp))
	return err
}

// StopRedirect stops and removes a redirect instance.
func (m *Manager) StopRedirect(fromPort int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst, ok := m.redirects[fromPort]; ok {
		inst.Stop()
		delete(m.redirects, fromPort)
	}
}

// rateWindow is a fixed-window request counter for the optional
// maxRequests/windowMs redirect rate limit.
type rateWindow struct {
	mu        sync.Mutex
	max       int
	window    time.Duration
	count     int
	windowEnd time.Time
}

func newRateWindow(max int, window time.Duration) *rateWindow {
	return &rateWindow{max: max, window: window, windowEnd: time.Now().Add(window)}
}

func (w *rateWindow) allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	if now.After(w.windowEnd) {
		w.count = 0
		w.windowEnd = now.Add(w.window)
	}
	if w.count >= w.max {
		return false
	}
	w.count++
	return true
}
