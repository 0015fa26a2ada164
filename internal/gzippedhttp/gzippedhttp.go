// Package gzippedhttp provides middleware that transparently decompresses
// gzip request bodies and compresses response bodies for clients that
// accept it.
package gzippedhttp

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

var gzipWriterPool = sync.Pool{
	New: func() any {
		return gzip.NewWriter(io.Discard)
	},
}

type gzippedBody struct {
	io.Reader
	io.Closer
}

// UngzipRequest replaces the request body with a decompressing reader when
// the client sent a gzip encoded body.
func UngzipRequest(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Content-Encoding"), "gzip") {
			zr, err := gzip.NewReader(r.Body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			defer zr.Close()

			r.Body = gzippedBody{Reader: zr, Closer: r.Body}
			r.Header.Del("Content-Length")
		}

		h.ServeHTTP(w, r)
	})
}

type compressedResponseWriter struct {
	http.ResponseWriter
	zw *gzip.Writer
}

func (c *compressedResponseWriter) Write(p []byte) (int, error) {
	return c.zw.Write(p)
}

// GzipResponse compresses the response body when the client accepts gzip.
func GzipResponse(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			h.ServeHTTP(w, r)
			return
		}

		zw := gzipWriterPool.Get().(*gzip.Writer)
		zw.Reset(w)
		defer func() {
			_ = zw.Close()
			gzipWriterPool.Put(zw)
		}()

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")

		h.ServeHTTP(&compressedResponseWriter{ResponseWriter: w, zw: zw}, r)
	})
}
