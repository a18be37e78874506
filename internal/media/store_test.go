package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hpungsan/steno/internal/errors"
)

func TestInit_CreatesLayout(t *testing.T) {
	root := t.TempDir()
	s, err := Init(root)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	for _, dir := range []string{s.VideosDir, s.RendersDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", dir, err)
		}
	}
	if got := s.OutputPath("JOB1"); got != filepath.Join(s.RendersDir, "JOB1.mp4") {
		t.Errorf("OutputPath = %q", got)
	}
}

func TestSaveResolveDelete(t *testing.T) {
	s, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	res, err := s.Save(strings.NewReader("fake video bytes"), "clip.MOV")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if res.Size != int64(len("fake video bytes")) {
		t.Errorf("Size = %d", res.Size)
	}
	if filepath.Ext(res.Path) != ".mov" {
		t.Errorf("Path = %q, want lowercased .mov", res.Path)
	}

	path, err := s.Resolve(res.VideoID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if path != res.Path {
		t.Errorf("Resolve() = %q, want %q", path, res.Path)
	}

	if err := s.Delete(res.VideoID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Resolve(res.VideoID); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Resolve after delete error = %v, want NOT_FOUND", err)
	}
}

func TestSave_RejectsExtension(t *testing.T) {
	s, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	_, err = s.Save(strings.NewReader("x"), "notes.txt")
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Fatalf("Save(.txt) error = %v, want INVALID_REQUEST", err)
	}
}

func TestResolve_RejectsTraversal(t *testing.T) {
	s, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	for _, id := range []string{"", "../videos", "a/b", ".hidden"} {
		if _, err := s.Resolve(id); !errors.Is(err, errors.ErrNotFound) {
			t.Errorf("Resolve(%q) error = %v, want NOT_FOUND", id, err)
		}
	}
}

func TestOutputFile(t *testing.T) {
	s, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	out := s.OutputPath("JOB1")
	if err := os.WriteFile(out, []byte("mp4"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := s.OutputFile("JOB1.mp4")
	if err != nil || got != out {
		t.Errorf("OutputFile() = %q, %v", got, err)
	}
	for _, name := range []string{"missing.mp4", "../steno.lock", ".."} {
		if _, err := s.OutputFile(name); !errors.Is(err, errors.ErrNotFound) {
			t.Errorf("OutputFile(%q) error = %v, want NOT_FOUND", name, err)
		}
	}

	if err := s.RemoveOutput(out); err != nil {
		t.Fatalf("RemoveOutput() error = %v", err)
	}
	if err := s.RemoveOutput(out); err != nil {
		t.Errorf("RemoveOutput(missing) error = %v, want nil", err)
	}
}

func TestLock_Exclusive(t *testing.T) {
	root := t.TempDir()
	a, err := Init(root)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	b, err := Init(root)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if err := a.Lock(); err != nil {
		t.Fatalf("first Lock() error = %v", err)
	}
	if err := b.Lock(); err == nil {
		t.Fatal("second Lock() succeeded, want error")
	}
	if err := a.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if err := b.Lock(); err != nil {
		t.Fatalf("Lock() after unlock error = %v", err)
	}
	_ = b.Unlock()
}
