package archive

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/voiceinvoice/internal/models"
)

func tempArchive(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(filepath.Join(t.TempDir(), "archive"))
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestSaveAndLoad(t *testing.T) {
	a := tempArchive(t)
	doc := []byte("%PDF-1.3 invoice")
	rel, err := a.Save(models.Invoice{InvoiceNumber: "INV-20250614-001"}, doc)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if want := filepath.Join("2025", "INV-20250614-001.pdf"); rel != want {
		t.Errorf("path = %q, want %q", rel, want)
	}
	got, err := a.Load("INV-20250614-001")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != string(doc) {
		t.Errorf("content mismatch: %q", got)
	}
}

func TestSaveOverwritesWithoutLeftovers(t *testing.T) {
	a := tempArchive(t)
	inv := models.Invoice{InvoiceNumber: "INV-20250614-002"}
	_, _ = a.Save(inv, []byte("first"))
	if _, err := a.Save(inv, []byte("second")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _ := a.Load(inv.InvoiceNumber)
	if string(got) != "second" {
		t.Errorf("content = %q, want second", got)
	}
	matches, _ := filepath.Glob(filepath.Join(a.Root(), "2025", ".invoice-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestMalformedNumbersRejected(t *testing.T) {
	a := tempArchive(t)
	for _, num := range []string{"", "INV-2025-001", "../../etc/passwd", "INV-20250614-../x"} {
		if _, err := a.Save(models.Invoice{InvoiceNumber: num}, []byte("x")); err == nil {
			t.Errorf("expected error saving %q", num)
		}
	}
}

func TestLoadMissing(t *testing.T) {
	a := tempArchive(t)
	_, err := a.Load("INV-20250614-404")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not exist", err)
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp(t.TempDir(), "not-a-dir-*")
	_ = f.Close()
	if _, err := NewFS(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}
