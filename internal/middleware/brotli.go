package middleware

import (
	"mime"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// BrotliConfig tunes response compression.
type BrotliConfig struct {
	Quality int
	// MinLength is the smallest body worth compressing.
	MinLength int
	Skipper   func(c *gin.Context) bool
}

var DefaultBrotliConfig = BrotliConfig{
	Quality:   brotli.DefaultCompression,
	MinLength: 1024,
}

// compressible lists the media types the API emits that benefit from brotli.
var compressible = map[string]bool{
	"application/json": true,
	"text/plain":       true,
	"text/csv":         true,
}

// brotliWriter buffers the body until MinLength is reached, then commits to
// compression. Bodies that end below the threshold go out unchanged.
type brotliWriter struct {
	gin.ResponseWriter
	quality   int
	minLength int
	buf       []byte
	bw        *brotli.Writer
	decided   bool
}

func (w *brotliWriter) Write(data []byte) (int, error) {
	if w.decided {
		if w.bw != nil {
			return w.bw.Write(data)
		}
		return w.ResponseWriter.Write(data)
	}

	w.buf = append(w.buf, data...)
	if len(w.buf) < w.minLength {
		return len(data), nil
	}
	if err := w.commit(true); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (w *brotliWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// Flush commits to whatever was decided so far and pushes bytes out.
func (w *brotliWriter) Flush() {
	if !w.decided {
		_ = w.commit(false)
	}
	if w.bw != nil {
		_ = w.bw.Flush()
	}
	w.ResponseWriter.Flush()
}

// commit fixes the encoding and drains the buffer.
func (w *brotliWriter) commit(compress bool) error {
	w.decided = true
	if compress && isCompressible(w.Header().Get("Content-Type")) && w.Header().Get("Content-Encoding") == "" {
		w.Header().Set("Content-Encoding", "br")
		w.Header().Del("Content-Length")
		w.bw = brotli.NewWriterLevel(w.ResponseWriter, w.quality)
	}

	pending := w.buf
	w.buf = nil
	if len(pending) == 0 {
		return nil
	}
	if w.bw != nil {
		_, err := w.bw.Write(pending)
		return err
	}
	_, err := w.ResponseWriter.Write(pending)
	return err
}

func (w *brotliWriter) close() error {
	if !w.decided {
		if err := w.commit(false); err != nil {
			return err
		}
	}
	if w.bw != nil {
		return w.bw.Close()
	}
	return nil
}

// Brotli compresses JSON responses for clients that accept br.
func Brotli() gin.HandlerFunc {
	return BrotliWithConfig(DefaultBrotliConfig)
}

func BrotliWithConfig(cfg BrotliConfig) gin.HandlerFunc {
	if cfg.Quality < brotli.BestSpeed || cfg.Quality > brotli.BestCompression {
		cfg.Quality = brotli.DefaultCompression
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultBrotliConfig.MinLength
	}

	return func(c *gin.Context) {
		if isUpgrade(c) || (cfg.Skipper != nil && cfg.Skipper(c)) || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")
		w := &brotliWriter{
			ResponseWriter: c.Writer,
			quality:        cfg.Quality,
			minLength:      cfg.MinLength,
		}
		c.Writer = w

		defer func() {
			if err := w.close(); err != nil {
				_ = c.Error(err)
			}
		}()
		c.Next()
	}
}

// isUpgrade reports WebSocket handshakes, which must reach the handler with
// the original writer so it can be hijacked.
func isUpgrade(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

func isCompressible(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && compressible[mt]
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(name, "br") {
			return true
		}
	}
	return false
}
