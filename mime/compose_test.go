package mime

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSplitHeaderFromResultStripsHeaderBlock(t *testing.T) {
	dir := t.TempDir()
	staged := filepath.Join(dir, "edited")
	content := "Content-Type: text/html; charset=utf-8\r\n" +
		"Content-Description: edited copy\r\n" +
		"\r\n" +
		"<p>new body</p>"
	if err := os.WriteFile(staged, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	header, err := splitHeaderFromResult(staged)
	if err != nil {
		t.Fatalf("splitHeaderFromResult: %v", err)
	}
	if header.Get("Content-Description") != "edited copy" {
		t.Fatalf("header = %+v", header)
	}

	body, err := os.ReadFile(staged)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(body) != "<p>new body</p>" {
		t.Fatalf("body = %q, want header block stripped", string(body))
	}
}

func TestMergeHeaderIntoPart(t *testing.T) {
	staged := filepath.Join(t.TempDir(), "edited")
	content := "Content-Type: text/plain; charset=iso-8859-1\r\n" +
		"Content-Description: plain now\r\n" +
		"\r\n" +
		"hi"
	if err := os.WriteFile(staged, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	header, err := splitHeaderFromResult(staged)
	if err != nil {
		t.Fatalf("splitHeaderFromResult: %v", err)
	}

	part := &Part{Type: "text", Subtype: "html", Params: map[string]string{"charset": "utf-8"}}
	mergeHeaderIntoPart(part, header)

	if part.Subtype != "plain" {
		t.Fatalf("Subtype = %q, want plain", part.Subtype)
	}
	if part.Params["charset"] != "iso-8859-1" {
		t.Fatalf("charset = %q", part.Params["charset"])
	}
	if part.Description != "plain now" {
		t.Fatalf("Description = %q", part.Description)
	}
}
