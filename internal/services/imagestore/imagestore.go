// Package imagestore keeps the captured frames and hands back a reference for the audit record.
package imagestore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store saves one JPEG under name and returns an opaque reference to it.
type Store interface {
	Put(ctx context.Context, name string, jpeg []byte) (string, error)
}

// ObjectName is the name a frame captured at t is stored under.
func ObjectName(t time.Time) string {
	return fmt.Sprintf("plant_%d.jpg", t.Unix())
}

// Local stores frames in a directory. References are file URLs unless BaseURL is set.
type Local struct {
	Dir     string
	BaseURL string
}

var _ Store = (*Local)(nil)

func NewLocal(dir, baseURL string) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("imagestore: empty directory")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("imagestore: %w", err)
	}
	return &Local{Dir: abs, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *Local) Put(ctx context.Context, name string, jpeg []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("imagestore: invalid name %q", name)
	}
	path := filepath.Join(l.Dir, name)
	if err := os.WriteFile(path, jpeg, 0o644); err != nil {
		return "", fmt.Errorf("imagestore: %w", err)
	}
	if l.BaseURL != "" {
		return l.BaseURL + "/" + url.PathEscape(name), nil
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
}
