package server

import (
	"bytes"
	"compress/gzip"
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"todoist/internal/domain/errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RequestLogger writes one entry per request. Server errors log at error
// level, client errors at warn.
func RequestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		begin := time.Now()
		path := ctx.Request.URL.Path

		ctx.Next()

		entry := log.WithFields(logrus.Fields{
			"method":    ctx.Request.Method,
			"path":      path,
			"status":    ctx.Writer.Status(),
			"took":      time.Since(begin),
			"client_ip": ctx.ClientIP(),
		})
		if userID := ctx.GetString(userIDKey); userID != "" {
			entry = entry.WithField("user_id", userID)
		}
		if len(ctx.Errors) > 0 {
			entry = entry.WithField("errors", ctx.Errors.String())
		}

		switch status := ctx.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("request")
		case status >= http.StatusBadRequest:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	}
}

type gzipRequestBody struct {
	*gzip.Reader
	body io.Closer
}

func (b *gzipRequestBody) Close() error {
	return stderrors.Join(b.Reader.Close(), b.body.Close())
}

// GzipRequestDecompress transparently inflates request bodies sent with
// Content-Encoding: gzip.
func GzipRequestDecompress() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		encoding := strings.ToLower(ctx.GetHeader("Content-Encoding"))
		if !strings.Contains(encoding, "gzip") {
			ctx.Next()
			return
		}

		gr, err := gzip.NewReader(ctx.Request.Body)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errors.ErrInvalidGzipRequest.Error()})
			return
		}

		ctx.Request.Body = &gzipRequestBody{Reader: gr, body: ctx.Request.Body}
		ctx.Request.ContentLength = -1
		ctx.Request.Header.Del("Content-Encoding")
		ctx.Request.Header.Del("Content-Length")
		ctx.Next()
	}
}

// Responses shorter than this are sent as is.
const minCompressSize = 1024

var gzipWriters = sync.Pool{
	New: func() interface{} { return gzip.NewWriter(io.Discard) },
}

var compressibleTypes = []string{
	"application/json",
	"application/xml",
	"application/javascript",
	"text/html",
	"text/css",
	"text/plain",
	"text/xml",
	"text/javascript",
}

// gzipResponseWriter buffers the first minCompressSize bytes and only then
// decides whether to switch to gzip. Once it decides against it, writes go
// straight through.
type gzipResponseWriter struct {
	gin.ResponseWriter
	gz     *gzip.Writer
	buf    bytes.Buffer
	direct bool
}

func (w *gzipResponseWriter) Write(data []byte) (int, error) {
	if w.gz != nil {
		n, err := w.gz.Write(data)
		if err != nil {
			return n, errors.ErrGzipCompressionFailed
		}
		return n, nil
	}
	if w.direct {
		return w.ResponseWriter.Write(data)
	}

	w.buf.Write(data)
	if w.buf.Len() < minCompressSize {
		return len(data), nil
	}

	if !w.compressible() {
		w.direct = true
		if _, err := w.ResponseWriter.Write(w.buf.Bytes()); err != nil {
			return 0, err
		}
		w.buf.Reset()
		return len(data), nil
	}

	w.startGzip()
	if _, err := w.gz.Write(w.buf.Bytes()); err != nil {
		return 0, errors.ErrGzipCompressionFailed
	}
	w.buf.Reset()
	return len(data), nil
}

func (w *gzipResponseWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *gzipResponseWriter) Flush() {
	if w.gz != nil {
		_ = w.gz.Flush()
	} else if w.buf.Len() > 0 {
		_, _ = w.ResponseWriter.Write(w.buf.Bytes())
		w.buf.Reset()
	}
	w.ResponseWriter.Flush()
}

func (w *gzipResponseWriter) compressible() bool {
	switch w.Status() {
	case http.StatusNoContent, http.StatusNotModified, http.StatusPartialContent:
		return false
	}
	header := w.Header()
	if header.Get("Content-Encoding") != "" {
		return false
	}
	ct := strings.ToLower(header.Get("Content-Type"))
	for _, prefix := range compressibleTypes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

func (w *gzipResponseWriter) startGzip() {
	header := w.Header()
	header.Del("Content-Length")
	header.Set("Content-Encoding", "gzip")
	gz := gzipWriters.Get().(*gzip.Writer)
	gz.Reset(w.ResponseWriter)
	w.gz = gz
}

func (w *gzipResponseWriter) finish() error {
	if w.gz != nil {
		err := w.gz.Close()
		gzipWriters.Put(w.gz)
		w.gz = nil
		return err
	}
	if w.buf.Len() > 0 {
		_, err := w.ResponseWriter.Write(w.buf.Bytes())
		w.buf.Reset()
		return err
	}
	return nil
}

// GzipResponseCompress compresses textual responses for clients that accept
// gzip.
func GzipResponseCompress() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method == http.MethodHead ||
			!strings.Contains(strings.ToLower(ctx.GetHeader("Accept-Encoding")), "gzip") {
			ctx.Next()
			return
		}

		addVary(ctx.Writer.Header(), "Accept-Encoding")
		gw := &gzipResponseWriter{ResponseWriter: ctx.Writer}
		ctx.Writer = gw

		ctx.Next()

		if err := gw.finish(); err != nil {
			_ = ctx.Error(errors.ErrGzipCompressionFailed)
		}
		ctx.Writer = gw.ResponseWriter
	}
}

func addVary(header http.Header, value string) {
	vary := header.Get("Vary")
	switch {
	case vary == "":
		header.Set("Vary", value)
	case !strings.Contains(vary, value):
		header.Set("Vary", vary+", "+value)
	}
}
