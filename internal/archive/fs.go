// Package archive keeps delivered invoice documents on the local file system.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/voiceinvoice/internal/commit"
	"github.com/starford/voiceinvoice/internal/models"
)

var _ commit.Archiver = (*FS)(nil)

// FS stores documents as <root>/<YYYY>/<number>.pdf.
type FS struct {
	root string // absolute path to archive directory
}

// NewFS creates an archive rooted at dir, creating it if needed.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("archive: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("archive: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("archive: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute archive directory.
func (f *FS) Root() string { return f.root }

// PathFor returns the archive-relative path of an invoice number. The year
// is taken from the number's date segment.
func PathFor(number string) (string, error) {
	// INV-YYYYMMDD-NNN
	parts := strings.SplitN(number, "-", 3)
	if len(parts) != 3 || len(parts[1]) != 8 || strings.ContainsAny(number, `/\`) {
		return "", fmt.Errorf("archive: malformed invoice number %q", number)
	}
	return filepath.Join(parts[1][:4], number+".pdf"), nil
}

// safePath resolves rel against the root and rejects escapes.
func (f *FS) safePath(rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("archive: absolute paths not allowed: %s", rel)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive: path escapes root: %s", rel)
	}
	return abs, nil
}

// Save writes doc for inv and returns the archive-relative path.
func (f *FS) Save(inv models.Invoice, doc []byte) (string, error) {
	rel, err := PathFor(inv.InvoiceNumber)
	if err != nil {
		return "", err
	}
	abs, err := f.safePath(rel)
	if err != nil {
		return "", err
	}
	if err := writeAtomic(abs, doc); err != nil {
		return "", err
	}
	return rel, nil
}

// Load returns the archived document for number.
func (f *FS) Load(number string) ([]byte, error) {
	rel, err := PathFor(number)
	if err != nil {
		return nil, err
	}
	abs, err := f.safePath(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", rel, err)
	}
	return data, nil
}

// writeAtomic writes content via tmp file, fsync and rename.
func writeAtomic(abs string, content []byte) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("archive: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".invoice-tmp-*")
	if err != nil {
		return fmt.Errorf("archive: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("archive: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("archive: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("archive: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("archive: rename: %w", err)
	}
	success = true
	return nil
}
