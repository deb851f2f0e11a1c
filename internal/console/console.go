// Package console implements ConsoleInterceptor: capture
// of writes to the host's stdout/stderr streams, rate limiting, filters, a
// recursion guard, preserve modes, optional AEAD encryption of captured
// records, and a bounded trace ring buffer. The interception point is the
// process's stdout/stderr file descriptors themselves.
package console

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/nehonix/xypriss/internal/config"
	"github.com/nehonix/xypriss/internal/crypto"
	"github.com/nehonix/xypriss/internal/util/log"
)

// PreserveMode controls which stream(s) a capture is forwarded to. It is
// configured only by its string value; no boolean form is accepted.
type PreserveMode string

const (
	PreserveOriginal    PreserveMode = "original"
	PreserveIntercepted PreserveMode = "intercepted"
	PreserveBoth        PreserveMode = "both"
	PreserveNone        PreserveMode = "none"
)

// DisplayMode controls how an encrypted capture is rendered for reading.
type DisplayMode string

const (
	DisplayReadable DisplayMode = "readable"
	DisplayHashOnly DisplayMode = "encrypted-hash-only"
	DisplayBoth     DisplayMode = "both"
)

// Level mirrors util/log's leveled severities for capture filtering.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var levelRank = map[Level]int{LevelDebug: 0, LevelInfo: 1, LevelWarn: 2, LevelError: 3}

// Capture is one intercepted write, handed to trace hooks and, when
// allowedHooks permits, the PluginEngine's onConsoleLog hook.
type Capture struct {
	Stream    string // "stdout" | "stderr"
	Level     Level
	Message   string
	Timestamp time.Time
	Encrypted bool
	CipherHex string // set when Encrypted, the hex-encoded AEAD envelope
}

// TraceHook receives every capture once tracing is enabled. A hook's
// panic/error is swallowed.
type TraceHook func(Capture)

// Interceptor wraps the process's stdout/stderr file descriptors via
// os.Pipe, forwarding every write through a filter stage before handing it
// to the original stream, a registered logging route, or both per
// PreserveMode.
type Interceptor struct {
	mu sync.Mutex

	preserveMode PreserveMode
	displayMode  DisplayMode
	minLevel     Level
	maxLength    int
	include      []*regexp.Regexp
	includeLit   []string
	exclude      []*regexp.Regexp
	excludeLit   []string

	maxPerSecond int
	windowStart  time.Time
	windowCount  int

	recursionDepth int32

	encrypt   bool
	provider  crypto.Provider
	masterKey []byte

	tracingEnabled bool
	traceHooks     []TraceHook
	ring           []Capture
	ringSize       int
	ringPos        int

	origStdout *os.File
	origStderr *os.File
	stdoutW    *os.File
	stderrW    *os.File
	stopCh     chan struct{}
	wg         sync.WaitGroup

	colorOut *color.Color
}

// New builds an Interceptor from the logging.consoleInterception
// configuration group. It does not start capturing until Start is called.
func New(cfg config.ConsoleInterceptCfg, provider crypto.Provider, masterKey []byte) *Interceptor {
	ic := &Interceptor{
		preserveMode:   PreserveMode(orDefault(cfg.PreserveMode, string(PreserveBoth))),
		displayMode:    DisplayMode(orDefault(cfg.DisplayMode, string(DisplayReadable))),
		minLevel:       Level(orDefault(cfg.MinLevel, string(LevelDebug))),
		maxLength:      cfg.MaxLength,
		maxPerSecond:   cfg.MaxInterceptionsPerSecond,
		encrypt:        cfg.EncryptCaptures,
		provider:       provider,
		masterKey:      masterKey,
		tracingEnabled: cfg.TracingEnabled,
		ringSize:       cfg.TraceBufferSize,
		colorOut:       color.New(),
	}
	if ic.ringSize <= 0 {
		ic.ringSize = 1000
	}
	ic.ring = make([]Capture, 0, ic.ringSize)
	for _, pat := range cfg.IncludePatterns {
		if re, lit, ok := compilePattern(pat); ok {
			ic.include = append(ic.include, re)
		} else {
			ic.includeLit = append(ic.includeLit, lit)
		}
	}
	for _, pat := range cfg.ExcludePatterns {
		if re, lit, ok := compilePattern(pat); ok {
			ic.exclude = append(ic.exclude, re)
		} else {
			ic.excludeLit = append(ic.excludeLit, lit)
		}
	}
	return ic
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// compilePattern parses a filter pattern: /.../ delimited strings compile
// as regex, everything else is a literal substring match.
func compilePattern(pat string) (re *regexp.Regexp, lit string, isRegex bool) {
	if len(pat) >= 2 && pat[0] == '/' && pat[len(pat)-1] == '/' {
		compiled, err := regexp.Compile(pat[1 : len(pat)-1])
		if err == nil {
			return compiled, "", true
		}
	}
	return nil, pat, false
}

// RegisterTraceHook adds a hook invoked on every future capture. Tracing
// must be explicitly enabled in configuration: when it is off the hook is
// rejected with a warning and false is returned.
func (ic *Interceptor) RegisterTraceHook(h TraceHook) bool {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if !ic.tracingEnabled {
		log.Warn("console trace hook rejected: tracing is not enabled", log.Pairs{})
		return false
	}
	ic.traceHooks = append(ic.traceHooks, h)
	return true
}

// TraceBuffer returns a snapshot of the bounded capture ring.
func (ic *Interceptor) TraceBuffer() []Capture {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	out := make([]Capture, len(ic.ring))
	copy(out, ic.ring)
	return out
}

// Start installs os.Pipe-backed writers in place of os.Stdout/os.Stderr
// and begins forwarding lines through the filter stage. Returns a Stop
// function that restores the original streams.
func (ic *Interceptor) Start() (stop func(), err error) {
	ic.mu.Lock()
	ic.origStdout = os.Stdout
	ic.origStderr = os.Stderr
	ic.stopCh = make(chan struct{})
	ic.mu.Unlock()

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("console: stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("console: stderr pipe: %w", err)
	}

	ic.mu.Lock()
	ic.stdoutW, ic.stderrW = outW, errW
	os.Stdout, os.Stderr = outW, errW
	ic.mu.Unlock()

	ic.pump(outR, "stdout", ic.origStdout)
	ic.pump(errR, "stderr", ic.origStderr)

	return ic.Stop, nil
}

func (ic *Interceptor) pump(r *os.File, stream string, original *os.File) {
	ic.wg.Add(1)
	go func() {
		defer ic.wg.Done()
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				ic.handle(stream, string(buf[:n]), original)
			}
			if err != nil {
				if err != io.EOF {
					return
				}
				return
			}
		}
	}()
}

// Stop restores the original stdout/stderr and waits for in-flight pumps
// to drain. Idempotent.
func (ic *Interceptor) Stop() {
	ic.mu.Lock()
	if ic.origStdout != nil {
		os.Stdout = ic.origStdout
	}
	if ic.origStderr != nil {
		os.Stderr = ic.origStderr
	}
	stdoutW, stderrW := ic.stdoutW, ic.stderrW
	ic.stdoutW, ic.stderrW = nil, nil
	ic.mu.Unlock()

	if stdoutW != nil {
		_ = stdoutW.Close()
	}
	if stderrW != nil {
		_ = stderrW.Close()
	}
	ic.wg.Wait()
}

// handle runs one raw write through the rate limiter, recursion guard, and
// filters, then forwards it per PreserveMode.
func (ic *Interceptor) handle(stream, text string, original *os.File) {
	if atomic.AddInt32(&ic.recursionDepth, 1) > 3 {
		atomic.AddInt32(&ic.recursionDepth, -1)
		_, _ = original.WriteString(text)
		return
	}
	defer atomic.AddInt32(&ic.recursionDepth, -1)

	if !ic.allowRate() {
		_, _ = original.WriteString(text)
		return
	}

	message := strings.TrimRight(text, "\n")
	if ic.maxLength > 0 && len(message) > ic.maxLength {
		message = message[:ic.maxLength]
	}
	if !ic.passesFilters(message) {
		return
	}

	entry := Capture{Stream: stream, Level: inferLevel(message), Message: message, Timestamp: time.Now()}
	if levelRank[entry.Level] < levelRank[ic.minLevel] {
		return
	}

	if ic.encrypt && ic.provider != nil {
		ic.encryptCapture(&entry)
	}

	switch ic.preserveMode {
	case PreserveOriginal:
		_, _ = original.WriteString(text)
	case PreserveIntercepted:
		ic.route(entry, original)
	case PreserveNone:
		// dropped entirely
	default: // both
		_, _ = original.WriteString(text)
		ic.route(entry, original)
	}

	ic.record(entry)
}

func (ic *Interceptor) allowRate() bool {
	if ic.maxPerSecond <= 0 {
		return true
	}
	ic.mu.Lock()
	defer ic.mu.Unlock()
	now := time.Now()
	if now.Sub(ic.windowStart) >= time.Second {
		ic.windowStart = now
		ic.windowCount = 0
	}
	ic.windowCount++
	return ic.windowCount <= ic.maxPerSecond
}

func (ic *Interceptor) passesFilters(message string) bool {
	for _, lit := range ic.excludeLit {
		if strings.Contains(message, lit) {
			return false
		}
	}
	for _, re := range ic.exclude {
		if re.MatchString(message) {
			return false
		}
	}
	if len(ic.includeLit) == 0 && len(ic.include) == 0 {
		return true
	}
	for _, lit := range ic.includeLit {
		if strings.Contains(message, lit) {
			return true
		}
	}
	for _, re := range ic.include {
		if re.MatchString(message) {
			return true
		}
	}
	return false
}

func inferLevel(message string) Level {
	upper := strings.ToUpper(message)
	switch {
	case strings.Contains(upper, "ERROR"):
		return LevelError
	case strings.Contains(upper, "WARN"):
		return LevelWarn
	case strings.Contains(upper, "DEBUG"):
		return LevelDebug
	default:
		return LevelInfo
	}
}

// route writes a capture to the logging route: colorized when the
// original stream is a terminal and DisplayMode includes "readable",
// otherwise the hex-encoded hash/ciphertext.
func (ic *Interceptor) route(entry Capture, original *os.File) {
	isTerm := isatty.IsTerminal(original.Fd())
	switch ic.displayMode {
	case DisplayHashOnly:
		_, _ = fmt.Fprintln(original, hashOnlyLine(entry))
	case DisplayBoth:
		_, _ = fmt.Fprintln(original, readableLine(entry, ic.colorOut, isTerm))
		_, _ = fmt.Fprintln(original, hashOnlyLine(entry))
	default:
		_, _ = fmt.Fprintln(original, readableLine(entry, ic.colorOut, isTerm))
	}
}

func readableLine(entry Capture, c *color.Color, colorize bool) string {
	line := fmt.Sprintf("[%s] %s: %s", entry.Timestamp.Format(time.RFC3339), entry.Level, entry.Message)
	if entry.Encrypted {
		line = fmt.Sprintf("[%s] %s: <encrypted>", entry.Timestamp.Format(time.RFC3339), entry.Level)
	}
	if !colorize {
		return line
	}
	switch entry.Level {
	case LevelError:
		return color.RedString(line)
	case LevelWarn:
		return color.YellowString(line)
	default:
		return c.Sprint(line)
	}
}

func hashOnlyLine(entry Capture) string {
	if entry.CipherHex != "" {
		return fmt.Sprintf("[%s] %s: %s", entry.Timestamp.Format(time.RFC3339), entry.Level, entry.CipherHex)
	}
	return fmt.Sprintf("[%s] %s: <no-capture>", entry.Timestamp.Format(time.RFC3339), entry.Level)
}

func (ic *Interceptor) record(entry Capture) {
	ic.mu.Lock()
	if len(ic.ring) < ic.ringSize {
		ic.ring = append(ic.ring, entry)
	} else {
		ic.ring[ic.ringPos] = entry
		ic.ringPos = (ic.ringPos + 1) % ic.ringSize
	}
	hooks := make([]TraceHook, len(ic.traceHooks))
	copy(hooks, ic.traceHooks)
	ic.mu.Unlock()

	for _, h := range hooks {
		safeInvokeHook(h, entry)
	}
}

func safeInvokeHook(h TraceHook, entry Capture) {
	defer func() { _ = recover() }()
	h(entry)
}
