package txlog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.txt")
	l := New(path)

	if err := l.Append(1700000000000, "HASH1", "xToken"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Append(1700000001000, "HASH2", "xToken"); err != nil {
		t.Fatalf("append: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "1700000000000,HASH1,xToken\n1700000001000,HASH2,xToken\n"
	if string(b) != want {
		t.Errorf("log = %q, want %q", string(b), want)
	}
}

func TestNilLogIsNoop(t *testing.T) {
	var l *Log
	if err := l.Append(1, "HASH", "xToken"); err != nil {
		t.Errorf("nil log append: %v", err)
	}
	if New("  ") != nil {
		t.Error("blank path should disable the log")
	}
}
