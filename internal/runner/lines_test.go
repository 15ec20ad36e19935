package runner

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeLine(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"hello\n", "hello"},
		{"trailing \t \r\n", "trailing"},
		{"   \n", ""},
		{"  lead\n", "  lead"},
		{"héllo wörld\n", "héllo wörld"},
		{"no newline", "no newline"},
	}
	for _, c := range cases {
		got, err := decodeLine([]byte(c.raw), 1)
		if err != nil {
			t.Errorf("decodeLine(%q) error: %v", c.raw, err)
			continue
		}
		if got != c.want {
			t.Errorf("decodeLine(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestDecodeLine_Invalid(t *testing.T) {
	_, err := decodeLine([]byte("é\xc3("), 7)
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("error = %v, want *DecodeError", err)
	}
	if decErr.Line != 7 {
		t.Errorf("Line = %d, want 7", decErr.Line)
	}
	if decErr.Offset != 2 {
		t.Errorf("Offset = %d, want 2", decErr.Offset)
	}
	if decErr.Error() != "line 7: invalid UTF-8 at byte 2" {
		t.Errorf("Error() = %q", decErr.Error())
	}
}

func TestLimitWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &limitWriter{buf: &buf, limit: 5}
	n, err := w.Write([]byte("abc"))
	if err != nil || n != 3 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	n, err = w.Write([]byte("defgh"))
	if err != nil || n != 5 {
		t.Fatalf("Write = %d, %v, want all bytes reported", n, err)
	}
	if _, err := w.Write([]byte("ijk")); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "abcde" {
		t.Errorf("buf = %q, want %q", buf.String(), "abcde")
	}
}

func TestTranscript_StopsAtLimit(t *testing.T) {
	tr := &transcript{limit: 8}
	tr.add("abc")
	tr.add("defg")
	tr.add("h")
	if len(tr.lines) != 1 || tr.lines[0] != "abc" {
		t.Errorf("lines = %q, want [abc]", tr.lines)
	}
	if !tr.truncated {
		t.Error("truncated = false, want true")
	}
}
