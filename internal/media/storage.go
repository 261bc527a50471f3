// Package media stores uploaded report images and videos and validates them
// before they are accepted.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrNotFound        = errors.New("media not found")
	ErrInvalidKey      = errors.New("invalid media key")
	ErrTooLarge        = errors.New("file exceeds upload size limit")
	ErrUnsupportedType = errors.New("unsupported media type")
)

// Object is an opened stored file.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// Storage persists media objects under slash separated keys.
type Storage interface {
	// Save writes r under key and returns the number of bytes stored.
	Save(ctx context.Context, key, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (Object, error)
	Delete(ctx context.Context, key string) error
	// URL returns the public location of key.
	URL(key string) string
}

// CleanKey validates a storage key. Keys are relative, slash separated and
// may not contain empty, "." or ".." segments.
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return key, nil
}

type limitedReader struct {
	r         io.Reader
	remaining int64
}

// LimitReader returns a reader that fails with ErrTooLarge once more than
// max bytes have been read.
func LimitReader(r io.Reader, max int64) io.Reader {
	return &limitedReader{r: r, remaining: max}
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrTooLarge
	}
	return n, err
}
