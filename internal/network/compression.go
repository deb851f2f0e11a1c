package network

import (
	"bytes"
	"compress/flate"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"

	"github.com/nehonix/xypriss/internal/config"
	"github.com/nehonix/xypriss/internal/model"
)

// Algorithm names a response compression codec.
type Algorithm string

const (
	AlgorithmGzip    Algorithm = "gzip"
	AlgorithmDeflate Algorithm = "deflate"
	AlgorithmBrotli  Algorithm = "brotli"
)

// Compression applies response-body compression when the response's
// Content-Type is eligible, the body meets the size threshold, and the
// client's Accept-Encoding includes a configured algorithm.
type Compression struct {
	Enabled      bool
	Algorithms   []Algorithm
	ContentTypes []string
	Threshold    int
	Level        int
}

// NewCompression builds a Compression sub-plugin from its configuration
// group, using klauspost/compress (faster than stdlib compress/gzip) for
// gzip, the standard library's compress/flate for deflate, and
// andybalholm/brotli for brotli.
func NewCompression(cfg config.CompressionConfig) *Compression {
	algs := make([]Algorithm, 0, len(cfg.Algorithms))
	for _, a := range cfg.Algorithms {
		algs = append(algs, Algorithm(a))
	}
	level := cfg.Level
	if level < 1 || level > 9 {
		level = 6
	}
	return &Compression{
		Enabled:      cfg.Enabled,
		Algorithms:   algs,
		ContentTypes: cfg.ContentTypes,
		Threshold:    cfg.ThresholdBytes,
		Level:        level,
	}
}

// Apply compresses res.Body in place if eligible, setting Content-Encoding,
// setting Content-Length to the compressed size, and adding
// Vary: Accept-Encoding. It is a no-op
// (returns false) when disabled, the body is under threshold, the
// Content-Type doesn't match, the client doesn't accept a configured
// algorithm, or the response is already encoded.
func (c *Compression) Apply(res *model.Response, acceptEncoding string) bool {
	if !c.Enabled || len(res.Body) < c.Threshold {
		return false
	}
	if res.Header.Get("Content-Encoding") != "" {
		return false
	}
	if !c.contentTypeEligible(res.Header.Get("Content-Type")) {
		return false
	}
	alg, ok := c.negotiate(acceptEncoding)
	if !ok {
		return false
	}

	compressed, err := c.compress(alg, res.Body)
	if err != nil {
		return false
	}
	res.Body = compressed
	res.Header.Set("Content-Encoding", string(alg))
	res.Header.Set("Content-Length", strconv.Itoa(len(compressed)))
	res.Header.Add("Vary", "Accept-Encoding")
	return true
}

func (c *Compression) contentTypeEligible(contentType string) bool {
	if len(c.ContentTypes) == 0 {
		return true
	}
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	for _, want := range c.ContentTypes {
		if strings.ToLower(want) == ct {
			return true
		}
	}
	return false
}

// negotiate returns the first configured algorithm the client's
// Accept-Encoding header includes, preserving the server's configured
// preference order over the client's.
func (c *Compression) negotiate(acceptEncoding string) (Algorithm, bool) {
	lower := strings.ToLower(acceptEncoding)
	for _, alg := range c.Algorithms {
		if strings.Contains(lower, string(alg)) {
			return alg, true
		}
	}
	return "", false
}

func (c *Compression) compress(alg Algorithm, body []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch alg {
	case AlgorithmGzip:
		w, err := gzip.NewWriterLevel(&buf, c.Level)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case AlgorithmDeflate:
		w, err := flate.NewWriter(&buf, c.Level)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case AlgorithmBrotli:
		w := brotli.NewWriterLevel(&buf, c.Level)
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return body, nil
	}
	return buf.Bytes(), nil
}
