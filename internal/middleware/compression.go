package middleware

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // Minimum response size to compress (bytes)
	CompressionLevel int      // Gzip compression level (1-9, 9 is best compression)
	ContentTypes     []string // Content types to compress
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024, // Compress responses >= 1KB
		CompressionLevel: gzip.DefaultCompression,
		ContentTypes: []string{
			"application/json",
			"text/plain",
			"text/html",
			"text/css",
			"application/javascript",
		},
	}
}

// CompressionMiddleware provides gzip compression for HTTP responses
type CompressionMiddleware struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	cm := &CompressionMiddleware{
		config: config,
		stats:  NewCompressionStats(),
	}
	cm.pool.New = func() interface{} {
		gz, err := gzip.NewWriterLevel(nil, config.CompressionLevel)
		if err != nil {
			gz = gzip.NewWriter(nil)
		}
		return gz
	}
	return cm
}

// Handler returns the gin middleware. Responses are buffered until MinSize
// bytes are written; smaller ones go out uncompressed.
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !clientAcceptsGzip(c.Request) || c.Request.Method == http.MethodHead || c.GetHeader("Upgrade") != "" {
			c.Next()
			return
		}

		gw := &gzipResponseWriter{ResponseWriter: c.Writer, cm: cm}
		c.Writer = gw
		defer func() {
			gw.finish()
			c.Writer = gw.ResponseWriter
		}()

		c.Next()
	}
}

// clientAcceptsGzip checks if the client accepts gzip compression
func clientAcceptsGzip(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(strings.TrimSpace(name), "gzip") && strings.ReplaceAll(params, " ", "") != "q=0" {
			return true
		}
	}
	return false
}

// shouldCompress checks if the content type should be compressed
func (cm *CompressionMiddleware) shouldCompress(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.Contains(contentType, ct) {
			return true
		}
	}
	return false
}

// gzipResponseWriter defers the compression decision until enough of the
// body is known.
type gzipResponseWriter struct {
	gin.ResponseWriter
	cm *CompressionMiddleware

	buf        bytes.Buffer
	gz         *gzip.Writer
	status     int
	raw        int64
	decided    bool
	headerSent bool
}

func (w *gzipResponseWriter) WriteHeader(statusCode int) {
	if !w.decided {
		w.status = statusCode
		w.headerSent = true
	}
}

// WriteHeaderNow is deferred like WriteHeader; finish sends it.
func (w *gzipResponseWriter) WriteHeaderNow() {
	w.headerSent = true
}

func (w *gzipResponseWriter) Status() int {
	if !w.decided && w.status != 0 {
		return w.status
	}
	return w.ResponseWriter.Status()
}

func (w *gzipResponseWriter) Written() bool {
	return w.headerSent || w.ResponseWriter.Written()
}

func (w *gzipResponseWriter) Write(data []byte) (int, error) {
	w.headerSent = true
	w.raw += int64(len(data))
	if w.decided {
		if w.gz != nil {
			return w.gz.Write(data)
		}
		return w.ResponseWriter.Write(data)
	}

	w.buf.Write(data)
	if w.buf.Len() >= w.cm.config.MinSize {
		if err := w.decide(true); err != nil {
			return 0, err
		}
	}
	return len(data), nil
}

func (w *gzipResponseWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *gzipResponseWriter) decide(large bool) error {
	w.decided = true
	header := w.ResponseWriter.Header()
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}

	compress := large &&
		status != http.StatusNoContent && status != http.StatusNotModified &&
		header.Get("Content-Encoding") == "" &&
		w.cm.shouldCompress(header.Get("Content-Type"))

	if compress {
		header.Set("Content-Encoding", "gzip")
		header.Add("Vary", "Accept-Encoding")
		header.Del("Content-Length")
	}
	w.ResponseWriter.WriteHeader(status)

	if !compress {
		if w.buf.Len() == 0 {
			w.ResponseWriter.WriteHeaderNow()
			return nil
		}
		_, err := w.ResponseWriter.Write(w.buf.Bytes())
		w.buf.Reset()
		return err
	}

	w.gz = w.cm.pool.Get().(*gzip.Writer)
	w.gz.Reset(w.ResponseWriter)
	_, err := w.gz.Write(w.buf.Bytes())
	w.buf.Reset()
	return err
}

func (w *gzipResponseWriter) finish() {
	if !w.decided {
		if !w.headerSent {
			return
		}
		_ = w.decide(false)
	}

	compressed := w.gz != nil
	if compressed {
		_ = w.gz.Close()
		w.cm.pool.Put(w.gz)
		w.gz = nil
	}
	w.cm.stats.RecordRequest(w.raw, int64(w.ResponseWriter.Size()), compressed)
}

// Flush forces a decision and flushes whatever is buffered
func (w *gzipResponseWriter) Flush() {
	if !w.decided {
		_ = w.decide(w.buf.Len() >= w.cm.config.MinSize)
	}
	if w.gz != nil {
		_ = w.gz.Flush()
	}
	w.ResponseWriter.Flush()
}

// Hijack hijacks the connection (for WebSocket upgrades, etc.)
func (w *gzipResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("response writer does not implement http.Hijacker")
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalRequests      int64
	CompressedRequests int64
	TotalBytes         int64
	CompressedBytes    int64
	mutex              sync.RWMutex
}

// NewCompressionStats creates new compression statistics
func NewCompressionStats() *CompressionStats {
	return &CompressionStats{}
}

// RecordRequest records a request's compression stats
func (cs *CompressionStats) RecordRequest(originalSize, compressedSize int64, compressed bool) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.TotalRequests++
	cs.TotalBytes += originalSize

	if compressed {
		cs.CompressedRequests++
		cs.CompressedBytes += compressedSize
	}
}

// GetStats returns current compression statistics
func (cs *CompressionStats) GetStats() map[string]interface{} {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	compressionRatio := float64(0)
	if cs.TotalBytes > 0 {
		compressionRatio = float64(cs.CompressedBytes) / float64(cs.TotalBytes)
	}

	return map[string]interface{}{
		"total_requests":      cs.TotalRequests,
		"compressed_requests": cs.CompressedRequests,
		"total_bytes":         cs.TotalBytes,
		"compressed_bytes":    cs.CompressedBytes,
		"compression_ratio":   compressionRatio,
	}
}

// GetStats returns compression statistics
func (cm *CompressionMiddleware) GetStats() map[string]interface{} {
	return cm.stats.GetStats()
}
