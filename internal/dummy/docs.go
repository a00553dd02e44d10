package dummy

import (
	"context"
	"fmt"
	"sync"
)

// Documents is an in-memory document store keyed by path.
type Documents struct {
	mu    sync.Mutex
	files map[string]string
	fail  map[string]error
}

func NewDocuments(files map[string]string) *Documents {
	d := &Documents{files: map[string]string{}, fail: map[string]error{}}
	for k, v := range files {
		d.files[k] = v
	}
	return d
}

// Fail makes every fetch of path return err.
func (d *Documents) Fail(path string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[path] = err
}

func (d *Documents) Fetch(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[path]; err != nil {
		return "", err
	}
	text, ok := d.files[path]
	if !ok {
		return "", fmt.Errorf("dummy document not found: %s", path)
	}
	return text, nil
}
