package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu       sync.Mutex
	indexed  []string
	removed  []string
	notified chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notified: make(chan struct{}, 64)}
}

func (r *recorder) Reindex(ctx context.Context, path string) error {
	r.mu.Lock()
	r.indexed = append(r.indexed, path)
	r.mu.Unlock()
	r.notified <- struct{}{}
	return nil
}

func (r *recorder) Remove(ctx context.Context, path string) error {
	r.mu.Lock()
	r.removed = append(r.removed, path)
	r.mu.Unlock()
	r.notified <- struct{}{}
	return nil
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func (r *recorder) has(list *[]string, suffix string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range *list {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func startWatcher(t *testing.T, dir string, rec *recorder) {
	t.Helper()
	w := New(dir, []string{".txt", ".md"}, rec, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Give fsnotify time to register the root before the test writes files.
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_ReindexesWrittenFiles(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	startWatcher(t, dir, rec)

	if err := os.WriteFile(filepath.Join(dir, "faq.txt"), []byte("Q: hours?"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "image.png"), []byte("png"), 0600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return rec.has(&rec.indexed, "faq.txt") })
	time.Sleep(150 * time.Millisecond)
	if rec.has(&rec.indexed, "image.png") {
		t.Error("files with other extensions should be ignored")
	}
}

func TestWatcher_DebouncesBurstOfWrites(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	startWatcher(t, dir, rec)

	path := filepath.Join(dir, "policy.md")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte(strings.Repeat("x", i+1)), 0600); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool { return rec.has(&rec.indexed, "policy.md") })
	time.Sleep(200 * time.Millisecond)
	rec.mu.Lock()
	n := len(rec.indexed)
	rec.mu.Unlock()
	if n != 1 {
		t.Errorf("expected one debounced reindex, got %d", n)
	}
}

func TestWatcher_RemovesDeletedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.txt")
	if err := os.WriteFile(path, []byte("old"), 0600); err != nil {
		t.Fatal(err)
	}
	rec := newRecorder()
	startWatcher(t, dir, rec)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return rec.has(&rec.removed, "old.txt") })
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	startWatcher(t, dir, rec)

	nested := filepath.Join(dir, "level1", "level2")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nested, "deep.txt"), []byte("deep"), 0600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return rec.has(&rec.indexed, "deep.txt") })
}

func TestWatcher_RunCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "kb")
	startWatcher(t, root, newRecorder())
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Errorf("root should be created: %v", err)
	}
}

func TestMatches(t *testing.T) {
	w := New("/kb", []string{".TXT", "md"}, newRecorder())
	tests := map[string]bool{
		"/kb/a.txt": true,
		"/kb/a.TxT": true,
		"/kb/b.md":  true,
		"/kb/c.pdf": false,
		"/kb/noext": false,
	}
	for path, want := range tests {
		if got := w.matches(path); got != want {
			t.Errorf("matches(%q) = %v, want %v", path, got, want)
		}
	}
	if !New("/kb", nil, newRecorder()).matches("/kb/any.bin") {
		t.Error("empty extension list should match everything")
	}
}
