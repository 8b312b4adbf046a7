package ingest

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// gzipWriterPool reuses gzip writers across uploads
var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		w, _ := gzip.NewWriterLevel(nil, gzip.DefaultCompression)
		return w
	},
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	gz := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(gz)
	gz.Reset(&buf)

	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
