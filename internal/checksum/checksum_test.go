package checksum

import (
	"strings"
	"testing"
)

func TestDocument(t *testing.T) {
	// sha256 of the empty input.
	const empty = "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Document(nil); got != empty {
		t.Errorf("Document(nil) = %s", got)
	}
	if !strings.HasPrefix(Document([]byte("%PDF-1.3")), Prefix) {
		t.Error("missing prefix")
	}
}

func TestVerify(t *testing.T) {
	doc := []byte("%PDF-1.3 INV-20250614-001")
	sum := Document(doc)
	if !Verify(doc, sum) {
		t.Error("document should match its own checksum")
	}
	if Verify([]byte("%PDF-1.3 INV-20250614-002"), sum) {
		t.Error("different document should not match")
	}
	if Verify(doc, "") {
		t.Error("empty checksum never matches")
	}
}
