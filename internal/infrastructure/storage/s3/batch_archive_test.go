package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
)

type mockPutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (m *mockPutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.input = params
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestBatchArchive_PutObject(t *testing.T) {
	putter := &mockPutter{}
	archive := newBatchArchive(putter, Config{Bucket: " batches "})

	err := archive.PutObject(context.Background(), "/prefix/remote-1/a.json", "application/x-ndjson", []byte("{}\n"))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}

	if *putter.input.Bucket != "batches" || *putter.input.Key != "prefix/remote-1/a.json" {
		t.Errorf("unexpected target %s/%s", *putter.input.Bucket, *putter.input.Key)
	}
	if putter.input.ContentEncoding != nil {
		t.Error("plain archive must not set Content-Encoding")
	}
	if string(putter.body) != "{}\n" {
		t.Errorf("unexpected body %q", putter.body)
	}
}

func TestBatchArchive_PutObjectCompressed(t *testing.T) {
	putter := &mockPutter{}
	archive := newBatchArchive(putter, Config{Bucket: "batches", Compress: true})

	if err := archive.PutObject(context.Background(), "k.json", "application/x-ndjson", []byte("line\n")); err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if putter.input.ContentEncoding == nil || *putter.input.ContentEncoding != "gzip" {
		t.Fatal("expected gzip Content-Encoding")
	}

	zr, err := gzip.NewReader(bytes.NewReader(putter.body))
	if err != nil {
		t.Fatal(err)
	}
	plain, _ := io.ReadAll(zr)
	if string(plain) != "line\n" {
		t.Errorf("unexpected decompressed body %q", plain)
	}
}

func TestBatchArchive_PutObjectErrors(t *testing.T) {
	archive := newBatchArchive(&mockPutter{err: errors.New("access denied")}, Config{Bucket: "b"})

	if err := archive.PutObject(context.Background(), " ", "text/plain", nil); err == nil {
		t.Error("empty key must be rejected")
	}
	if err := archive.PutObject(context.Background(), "k", "text/plain", nil); err == nil {
		t.Error("client error must be returned")
	}
}
