package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DecodeError reports a stdout line that is not valid UTF-8.
type DecodeError struct {
	Line   int // 1-based line number
	Offset int // byte offset of the first invalid sequence within the line
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("line %d: invalid UTF-8 at byte %d", e.Line, e.Offset)
}

// forward copies lines from src to out until src is exhausted.
func (r *Runner) forward(ctx context.Context, src io.Reader, out io.Writer, res *Result) error {
	br := bufio.NewReader(src)
	var keep *transcript
	if r.MaxOutput > 0 {
		keep = &transcript{limit: r.MaxOutput}
	}
	defer func() {
		if keep != nil {
			res.Output = keep.lines
			res.Truncated = keep.truncated
		}
	}()

	for {
		raw, err := br.ReadBytes('\n')
		if len(raw) > 0 {
			line, derr := decodeLine(raw, res.Lines+1)
			if derr != nil {
				return derr
			}
			if _, werr := fmt.Fprintln(out, line); werr != nil {
				return fmt.Errorf("writing line %d: %w", res.Lines+1, werr)
			}
			res.Lines++
			if keep != nil {
				keep.add(line)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading stdout: %w", err)
		}
	}
}

// decodeLine validates raw as UTF-8 and strips trailing whitespace.
// A line made only of whitespace decodes to "".
func decodeLine(raw []byte, n int) (string, error) {
	if !utf8.Valid(raw) {
		return "", &DecodeError{Line: n, Offset: invalidOffset(raw)}
	}
	return strings.TrimRightFunc(string(raw), unicode.IsSpace), nil
}

func invalidOffset(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return len(b)
}

// transcript keeps forwarded lines until limit bytes have been retained.
type transcript struct {
	lines     []string
	size      int
	limit     int
	truncated bool
}

func (t *transcript) add(line string) {
	if t.truncated {
		return
	}
	if t.size+len(line)+1 > t.limit {
		t.truncated = true
		return
	}
	t.lines = append(t.lines, line)
	t.size += len(line) + 1
}
