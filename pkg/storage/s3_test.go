package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type apiError struct {
	code string
}

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &apiError{code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, &apiError{code: "NotFound"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3RoundTripWithPrefix(t *testing.T) {
	fake := newFakeS3()
	store := NewS3(fake, "models", "/emotion/v1/")
	ctx := context.Background()

	if err := WriteFile(ctx, store, "best_model.msgpack", []byte{0x81}); err != nil {
		t.Fatal(err)
	}
	if _, ok := fake.objects["emotion/v1/best_model.msgpack"]; !ok {
		t.Fatalf("object keys = %v", fake.objects)
	}
	data, err := ReadFile(ctx, store, "best_model.msgpack")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte{0x81}) {
		t.Fatalf("got %x", data)
	}
}

func TestS3SinglePutPerClose(t *testing.T) {
	fake := newFakeS3()
	store := NewS3(fake, "b", "")
	w, err := store.Write(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(w, "ab")
	io.WriteString(w, "cd")
	if fake.puts != 0 {
		t.Fatal("uploaded before Close")
	}
	w.Close()
	w.Close()
	if fake.puts != 1 {
		t.Fatalf("puts = %d, want 1", fake.puts)
	}
	if string(fake.objects["x"]) != "abcd" {
		t.Fatalf("object = %q", fake.objects["x"])
	}
}

func TestS3NotFound(t *testing.T) {
	store := NewS3(newFakeS3(), "b", "")
	ctx := context.Background()

	if _, err := store.Read(ctx, "missing"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Read err = %v, want ErrNotExist", err)
	}
	ok, err := store.Exists(ctx, "missing")
	if err != nil || ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
}

func TestS3PutError(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("access denied")
	store := NewS3(fake, "b", "")
	if err := WriteFile(context.Background(), store, "x", []byte("1")); err == nil {
		t.Fatal("expected upload error")
	}
}
