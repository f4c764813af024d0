package syncstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/UniMusic-app/unimusic/internal/platform"
	"github.com/UniMusic-app/unimusic/internal/shared"
	"github.com/UniMusic-app/unimusic/internal/state"
)

type remoteCall struct {
	op       string
	syncPath string
	path     string
}

type fakeRemote struct {
	created int
	files   map[string]map[string]FileEntry
	calls   []remoteCall

	reconnectErr error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{files: make(map[string]map[string]FileEntry)}
}

func (r *fakeRemote) CreateNamespace(ctx context.Context) (string, error) {
	r.created++
	namespace := fmt.Sprintf("ns-%d", r.created)
	r.files[namespace] = make(map[string]FileEntry)
	return namespace, nil
}

func (r *fakeRemote) DeleteNamespace(ctx context.Context, namespace string) error {
	delete(r.files, namespace)
	r.calls = append(r.calls, remoteCall{op: "deleteNamespace", path: namespace})
	return nil
}

func (r *fakeRemote) WriteFile(ctx context.Context, namespace, syncPath, sourcePath string) error {
	r.calls = append(r.calls, remoteCall{op: "write", syncPath: syncPath, path: sourcePath})
	return nil
}

func (r *fakeRemote) DeleteFile(ctx context.Context, namespace, syncPath string) error {
	r.calls = append(r.calls, remoteCall{op: "delete", syncPath: syncPath})
	return nil
}

func (r *fakeRemote) Export(ctx context.Context, namespace, syncPath, destinationPath string) error {
	r.calls = append(r.calls, remoteCall{op: "export", syncPath: syncPath, path: destinationPath})
	return nil
}

func (r *fakeRemote) ExportHash(ctx context.Context, fileHash, destinationPath string) error {
	r.calls = append(r.calls, remoteCall{op: "exportHash", syncPath: fileHash, path: destinationPath})
	return nil
}

func (r *fakeRemote) GetFiles(ctx context.Context, namespace string) (map[string]FileEntry, error) {
	files := make(map[string]FileEntry, len(r.files[namespace]))
	for syncPath, entry := range r.files[namespace] {
		files[syncPath] = entry
	}
	return files, nil
}

func (r *fakeRemote) Share(ctx context.Context, namespace string) (Ticket, error) {
	return Ticket("ticket-" + namespace), nil
}

func (r *fakeRemote) Import(ctx context.Context, ticket Ticket) (string, error) {
	namespace := strings.TrimPrefix(string(ticket), "ticket-")
	if r.files[namespace] == nil {
		r.files[namespace] = make(map[string]FileEntry)
	}
	return namespace, nil
}

func (r *fakeRemote) Sync(ctx context.Context, namespace string) error { return nil }

func (r *fakeRemote) Reconnect(ctx context.Context) error { return r.reconnectErr }

func (r *fakeRemote) ops(op string) []remoteCall {
	var matched []remoteCall
	for _, call := range r.calls {
		if call.op == op {
			matched = append(matched, call)
		}
	}
	return matched
}

type fakeFile struct {
	mtime time.Time
	size  int64
}

type fakeFS struct {
	files map[string]fakeFile
}

func newFakeFS() *fakeFS {
	return &fakeFS{files: make(map[string]fakeFile)}
}

func (f *fakeFS) ReadFile(path string) ([]byte, error) { return nil, os.ErrNotExist }

func (f *fakeFS) Open(path string) (io.ReadSeekCloser, error) { return nil, os.ErrNotExist }

func (f *fakeFS) Stat(path string) (platform.FileInfo, error) {
	file, ok := f.files[path]
	if !ok {
		return platform.FileInfo{}, os.ErrNotExist
	}
	return platform.FileInfo{Size: file.size, ModTime: file.mtime}, nil
}

func (f *fakeFS) Traverse(root string) ([]string, error) {
	var paths []string
	for path := range f.files {
		if strings.HasPrefix(path, root+string(filepath.Separator)) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func newStates(t *testing.T) *state.Store {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	states, err := state.NewStore(db, shared.NewLogger(io.Discard))
	if err != nil {
		t.Fatalf("failed to create state store: %v", err)
	}
	return states
}

func TestNormalizeRelativePath(t *testing.T) {
	t.Run("canonicalizes separators and slash runs", func(t *testing.T) {
		cases := map[string]string{
			"music\\subdir\\song.mp3": "music/subdir/song.mp3",
			"/leading/and/trailing/":  "leading/and/trailing",
			"a//b///c.mp3":            "a/b/c.mp3",
			"./a/./b.mp3":             "a/b.mp3",
			"a%20b/c.mp3":             "a b/c.mp3",
		}
		for input, expected := range cases {
			got, err := NormalizeRelativePath(input)
			if err != nil {
				t.Errorf("%q: unexpected error: %v", input, err)
				continue
			}
			if got != expected {
				t.Errorf("%q: expected %q, got %q", input, expected, got)
			}
		}
	})

	t.Run("rejects escaping paths", func(t *testing.T) {
		if _, err := NormalizeRelativePath("../outside.mp3"); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("expected ErrInvalidPath, got %v", err)
		}
		if _, err := NormalizeRelativePath("a/../../b.mp3"); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("expected ErrInvalidPath, got %v", err)
		}
	})

	t.Run("rejects paths that normalize to nothing", func(t *testing.T) {
		for _, input := range []string{"", "/", "././."} {
			if _, err := NormalizeRelativePath(input); !errors.Is(err, ErrInvalidPath) {
				t.Errorf("%q: expected ErrInvalidPath, got %v", input, err)
			}
		}
	})
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	logger := shared.NewLogger(io.Discard)
	dir := filepath.Join(string(filepath.Separator), "music")

	newStore := func(t *testing.T, remote *fakeRemote, fs *fakeFS, states *state.Store) *Store {
		t.Helper()
		store, err := NewStore(remote, fs, states, logger)
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		return store
	}

	t.Run("GetOrCreateNamespace creates once per directory", func(t *testing.T) {
		remote := newFakeRemote()
		states := newStates(t)
		store := newStore(t, remote, newFakeFS(), states)

		first, err := store.GetOrCreateNamespace(ctx, dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := store.GetOrCreateNamespace(ctx, dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first != second || remote.created != 1 {
			t.Errorf("expected one namespace, got %q/%q after %d creations", first, second, remote.created)
		}

		// A restarted store sees the persisted namespace.
		restarted := newStore(t, remote, newFakeFS(), states)
		if restarted.Namespaces()[first] != dir {
			t.Errorf("expected the namespace restored, got %v", restarted.Namespaces())
		}
	})

	t.Run("ImportNamespace rejects duplicates", func(t *testing.T) {
		remote := newFakeRemote()
		store := newStore(t, remote, newFakeFS(), newStates(t))

		namespace, err := store.GetOrCreateNamespace(ctx, dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		ticket, err := store.ShareNamespace(ctx, namespace)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := store.ImportNamespace(ctx, ticket, "/elsewhere"); err == nil {
			t.Error("expected an error importing a watched namespace")
		}
	})

	t.Run("DeleteNamespace forgets locally and remotely", func(t *testing.T) {
		remote := newFakeRemote()
		store := newStore(t, remote, newFakeFS(), newStates(t))

		namespace, err := store.GetOrCreateNamespace(ctx, dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := store.DeleteNamespace(ctx, namespace); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(store.Namespaces()) != 0 {
			t.Error("expected the namespace forgotten")
		}
		if len(remote.ops("deleteNamespace")) != 1 {
			t.Error("expected the remote deletion")
		}
	})

	t.Run("SyncFiles", func(t *testing.T) {
		songPath := filepath.Join(dir, "song.mp3")

		setup := func(t *testing.T) (*fakeRemote, *fakeFS, *Store, string) {
			t.Helper()
			remote := newFakeRemote()
			fs := newFakeFS()
			store := newStore(t, remote, fs, newStates(t))
			namespace, err := store.GetOrCreateNamespace(ctx, dir)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			return remote, fs, store, namespace
		}

		t.Run("pushes new local files", func(t *testing.T) {
			remote, fs, store, _ := setup(t)
			fs.files[songPath] = fakeFile{mtime: time.UnixMilli(1000), size: 3}

			if err := store.SyncFiles(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			writes := remote.ops("write")
			if len(writes) != 1 || writes[0].syncPath != "song.mp3" || writes[0].path != songPath {
				t.Errorf("unexpected writes: %v", writes)
			}
		})

		t.Run("skips non-audio files", func(t *testing.T) {
			remote, fs, store, _ := setup(t)
			fs.files[filepath.Join(dir, "cover.jpg")] = fakeFile{mtime: time.UnixMilli(1000), size: 9}

			if err := store.SyncFiles(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(remote.calls) != 0 {
				t.Errorf("expected no remote traffic, got %v", remote.calls)
			}
		})

		t.Run("settles once pushed and pulls remote changes", func(t *testing.T) {
			remote, fs, store, namespace := setup(t)
			fs.files[songPath] = fakeFile{mtime: time.UnixMilli(1000), size: 3}

			// First pass pushes, and the remote learns the file.
			if err := store.SyncFiles(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			remote.files[namespace]["song.mp3"] = FileEntry{ContentHash: "h1", Size: 3}

			// Second pass records the remote entry without traffic.
			if err := store.SyncFiles(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(remote.ops("write")) != 1 || len(remote.ops("exportHash")) != 0 {
				t.Errorf("expected a settled file, got %v", remote.calls)
			}

			// A changed remote hash pulls the new content over the local file.
			remote.files[namespace]["song.mp3"] = FileEntry{ContentHash: "h2", Size: 4}
			if err := store.SyncFiles(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			pulls := remote.ops("exportHash")
			if len(pulls) != 1 || pulls[0].syncPath != "h2" || pulls[0].path != songPath {
				t.Errorf("unexpected pulls: %v", pulls)
			}
		})

		t.Run("pushes locally modified files", func(t *testing.T) {
			remote, fs, store, namespace := setup(t)
			fs.files[songPath] = fakeFile{mtime: time.UnixMilli(1000), size: 3}

			if err := store.SyncFiles(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			remote.files[namespace]["song.mp3"] = FileEntry{ContentHash: "h1", Size: 3}

			fs.files[songPath] = fakeFile{mtime: time.UnixMilli(2000), size: 5}
			if err := store.SyncFiles(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(remote.ops("write")) != 2 {
				t.Errorf("expected the modification pushed, got %v", remote.calls)
			}
		})

		t.Run("retrieves files only the remote has", func(t *testing.T) {
			remote, _, store, namespace := setup(t)
			remote.files[namespace]["album/other.mp3"] = FileEntry{ContentHash: "h1", Size: 7}

			if err := store.SyncFiles(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			exports := remote.ops("export")
			expected := filepath.Join(dir, "album", "other.mp3")
			if len(exports) != 1 || exports[0].syncPath != "album/other.mp3" || exports[0].path != expected {
				t.Errorf("unexpected exports: %v", exports)
			}
		})

		t.Run("propagates local deletions", func(t *testing.T) {
			remote, fs, store, namespace := setup(t)
			fs.files[songPath] = fakeFile{mtime: time.UnixMilli(1000), size: 3}

			if err := store.SyncFiles(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			remote.files[namespace]["song.mp3"] = FileEntry{ContentHash: "h1", Size: 3}

			delete(fs.files, songPath)
			if err := store.SyncFiles(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			deletes := remote.ops("delete")
			if len(deletes) != 1 || deletes[0].syncPath != "song.mp3" {
				t.Errorf("unexpected deletes: %v", deletes)
			}
		})

		t.Run("a failed reconnect aborts the pass", func(t *testing.T) {
			remote, fs, store, _ := setup(t)
			remote.reconnectErr = errors.New("offline")
			fs.files[songPath] = fakeFile{mtime: time.UnixMilli(1000), size: 3}

			if err := store.SyncFiles(ctx); err == nil {
				t.Error("expected an error")
			}
			if len(remote.ops("write")) != 0 {
				t.Error("expected no pushes")
			}
		})
	})
}
