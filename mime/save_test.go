package mime

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveAttachmentWritesDecodedBody(t *testing.T) {
	root, err := Parse(strings.NewReader(multipartMessage))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	dst := filepath.Join(t.TempDir(), "out.txt")
	if err := SaveAttachment(root.Children[0], dst, SaveWrite); err != nil {
		t.Fatalf("SaveAttachment: %v", err)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.TrimSpace(string(b)) != "plain body" {
		t.Fatalf("content = %q", string(b))
	}
}

func TestSaveAttachmentWriteFailsIfExists(t *testing.T) {
	root, err := Parse(strings.NewReader(multipartMessage))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	dst := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(dst, []byte("existing"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := SaveAttachment(root.Children[0], dst, SaveWrite); err == nil {
		t.Fatal("expected error when destination already exists under SaveWrite")
	}
}

func TestSaveAttachmentOverwriteReplacesContent(t *testing.T) {
	root, err := Parse(strings.NewReader(multipartMessage))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	dst := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(dst, []byte("old content that is longer"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := SaveAttachment(root.Children[0], dst, SaveOverwrite); err != nil {
		t.Fatalf("SaveAttachment: %v", err)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.TrimSpace(string(b)) != "plain body" {
		t.Fatalf("content = %q", string(b))
	}
}
