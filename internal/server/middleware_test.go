package server

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"todoist/internal/domain/errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestGzipRequestDecompress(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GzipRequestDecompress())
	router.POST("/test", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"body": string(body), "encoding": c.GetHeader("Content-Encoding")})
	})

	tests := []struct {
		name            string
		body            func(t *testing.T) []byte
		contentEncoding string
		want            struct {
			statusCode int
			body       string
		}
	}{
		{
			name:            "uncompressed request",
			body:            func(t *testing.T) []byte { return []byte("Hello, World!") },
			contentEncoding: "",
			want: struct {
				statusCode int
				body       string
			}{
				statusCode: http.StatusOK,
				body:       `{"body":"Hello, World!","encoding":""}`,
			},
		},
		{
			name:            "gzip compressed request",
			body:            func(t *testing.T) []byte { return gzipBytes(t, "Hello, World!") },
			contentEncoding: "GZIP",
			want: struct {
				statusCode int
				body       string
			}{
				statusCode: http.StatusOK,
				body:       `{"body":"Hello, World!","encoding":""}`,
			},
		},
		{
			name:            "invalid gzip request",
			body:            func(t *testing.T) []byte { return []byte("Invalid gzip data") },
			contentEncoding: "gzip",
			want: struct {
				statusCode int
				body       string
			}{
				statusCode: http.StatusBadRequest,
				body:       `{"error":"` + errors.ErrInvalidGzipRequest.Error() + `"}`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader(tt.body(t)))
			if tt.contentEncoding != "" {
				req.Header.Set("Content-Encoding", tt.contentEncoding)
			}

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want.statusCode, w.Code)
			assert.JSONEq(t, tt.want.body, w.Body.String())
		})
	}
}

func TestGzipResponseCompress(t *testing.T) {
	large := strings.Repeat("Large content for compression testing. ", 100)

	tests := []struct {
		name           string
		method         string
		acceptEncoding string
		handler        gin.HandlerFunc
		want           struct {
			contentEncoding string
			body            string
		}
	}{
		{
			name:           "small body stays plain",
			method:         http.MethodGet,
			acceptEncoding: "gzip",
			handler:        func(c *gin.Context) { c.String(http.StatusOK, "short") },
			want: struct {
				contentEncoding string
				body            string
			}{body: "short"},
		},
		{
			name:           "large body is compressed",
			method:         http.MethodGet,
			acceptEncoding: "gzip, deflate",
			handler:        func(c *gin.Context) { c.String(http.StatusOK, large) },
			want: struct {
				contentEncoding string
				body            string
			}{contentEncoding: "gzip", body: large},
		},
		{
			name:           "large body written in chunks",
			method:         http.MethodGet,
			acceptEncoding: "gzip",
			handler: func(c *gin.Context) {
				c.Header("Content-Type", "application/json")
				c.Status(http.StatusOK)
				for i := 0; i < 100; i++ {
					_, _ = c.Writer.WriteString("Large content for compression testing. ")
				}
			},
			want: struct {
				contentEncoding string
				body            string
			}{contentEncoding: "gzip", body: large},
		},
		{
			name:           "client does not accept gzip",
			method:         http.MethodGet,
			acceptEncoding: "deflate",
			handler:        func(c *gin.Context) { c.String(http.StatusOK, large) },
			want: struct {
				contentEncoding string
				body            string
			}{body: large},
		},
		{
			name:           "binary content type",
			method:         http.MethodGet,
			acceptEncoding: "gzip",
			handler:        func(c *gin.Context) { c.Data(http.StatusOK, "image/png", []byte(large)) },
			want: struct {
				contentEncoding string
				body            string
			}{body: large},
		},
		{
			name:           "already encoded",
			method:         http.MethodGet,
			acceptEncoding: "gzip",
			handler: func(c *gin.Context) {
				c.Header("Content-Encoding", "br")
				c.String(http.StatusOK, large)
			},
			want: struct {
				contentEncoding string
				body            string
			}{contentEncoding: "br", body: large},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			router := gin.New()
			router.Use(GzipResponseCompress())
			router.GET("/test", tt.handler)

			req := httptest.NewRequest(tt.method, "/test", nil)
			req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want.contentEncoding, w.Header().Get("Content-Encoding"))

			body := w.Body.Bytes()
			if tt.want.contentEncoding == "gzip" {
				assert.Less(t, len(body), len(large))
				gr, err := gzip.NewReader(bytes.NewReader(body))
				require.NoError(t, err)
				body, err = io.ReadAll(gr)
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want.body, string(body))

			if strings.Contains(tt.acceptEncoding, "gzip") {
				assert.Equal(t, "Accept-Encoding", w.Header().Get("Vary"))
			}
		})
	}
}

func TestGzipResponseSkipsHead(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GzipResponseCompress())
	router.HEAD("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodHead, "/test", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Empty(t, w.Header().Get("Vary"))
}

func TestGzipResponseStreamsIncompressibleBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	chunk := strings.Repeat("x", minCompressSize)
	w := httptest.NewRecorder()

	router := gin.New()
	router.Use(GzipResponseCompress())
	router.GET("/test", func(c *gin.Context) {
		c.Header("Content-Type", "image/png")
		c.Status(http.StatusOK)
		_, _ = c.Writer.WriteString(chunk)
		assert.Equal(t, len(chunk), w.Body.Len(), "buffer is released once gzip is ruled out")

		_, _ = c.Writer.WriteString(chunk)
		assert.Equal(t, 2*len(chunk), w.Body.Len())
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	router.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, chunk+chunk, w.Body.String())
}

func TestAddVary(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		want     string
	}{
		{name: "empty", existing: "", want: "Accept-Encoding"},
		{name: "other value", existing: "Origin", want: "Origin, Accept-Encoding"},
		{name: "already present", existing: "Origin, Accept-Encoding", want: "Origin, Accept-Encoding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.existing != "" {
				header.Set("Vary", tt.existing)
			}
			addVary(header, "Accept-Encoding")
			assert.Equal(t, tt.want, header.Get("Vary"))
		})
	}
}

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  logrus.Level
	}{
		{name: "success", status: http.StatusOK, level: logrus.InfoLevel},
		{name: "client error", status: http.StatusNotFound, level: logrus.WarnLevel},
		{name: "server error", status: http.StatusInternalServerError, level: logrus.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			logger, hook := logtest.NewNullLogger()
			router := gin.New()
			router.Use(RequestLogger(logrus.NewEntry(logger)))
			router.GET("/tasks", func(c *gin.Context) {
				c.Set(userIDKey, testUserID)
				c.Status(tt.status)
			})

			req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
			router.ServeHTTP(httptest.NewRecorder(), req)

			require.Len(t, hook.AllEntries(), 1)
			entry := hook.LastEntry()
			assert.Equal(t, tt.level, entry.Level)
			assert.Equal(t, "request", entry.Message)
			assert.Equal(t, http.MethodGet, entry.Data["method"])
			assert.Equal(t, "/tasks", entry.Data["path"])
			assert.Equal(t, tt.status, entry.Data["status"])
			assert.Equal(t, testUserID, entry.Data["user_id"])
		})
	}
}
