package middleware

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// gzipReaderPool reuses gzip readers to reduce allocations
var gzipReaderPool sync.Pool

type gzipBody struct {
	io.Reader
	gz   *gzip.Reader
	orig io.ReadCloser
}

func (b *gzipBody) Close() error {
	err := b.orig.Close()
	if b.gz != nil {
		gzipReaderPool.Put(b.gz)
		b.gz = nil
	}
	return err
}

// Decompression распаковывает тела запросов с Content-Encoding: gzip.
// maxBytes ограничивает размер тела после распаковки.
func Decompression(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			encoding := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding")))
			switch encoding {
			case "", "identity":
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
				next.ServeHTTP(w, r)
				return
			case "gzip":
			default:
				http.Error(w, "Unsupported Content-Encoding", http.StatusUnsupportedMediaType)
				return
			}

			compressed := http.MaxBytesReader(w, r.Body, maxBytes)

			var gz *gzip.Reader
			if pooled, ok := gzipReaderPool.Get().(*gzip.Reader); ok {
				if err := pooled.Reset(compressed); err != nil {
					gzipReaderPool.Put(pooled)
					http.Error(w, "Invalid gzip body", http.StatusBadRequest)
					return
				}
				gz = pooled
			} else {
				created, err := gzip.NewReader(compressed)
				if err != nil {
					http.Error(w, "Invalid gzip body", http.StatusBadRequest)
					return
				}
				gz = created
			}

			r.Header.Del("Content-Encoding")
			r.Header.Del("Content-Length")
			r.ContentLength = -1
			r.Body = http.MaxBytesReader(w, &gzipBody{Reader: gz, gz: gz, orig: compressed}, maxBytes)

			next.ServeHTTP(w, r)
		})
	}
}
