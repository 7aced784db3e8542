package stream

import (
	"bytes"
	"strings"
)

// MaxLineBytes caps how much of an unterminated line the framer will hold.
// A fragment that grows past it is emitted as a line on its own.
const MaxLineBytes = 1 << 20

// Framer splits an arbitrary byte stream into newline-delimited lines.
//
// Chunks may end mid-line; the trailing fragment is held back and joined
// with the next Write. Lines that are empty after trimming whitespace are
// discarded. Framer is an io.Writer so a subprocess pipe can be copied
// straight into it. It is not safe for concurrent use.
type Framer struct {
	buf    []byte
	onLine func(line string)
}

// NewFramer returns a Framer that calls onLine once per non-blank line,
// in arrival order. The line passed to onLine is whitespace-trimmed.
func NewFramer(onLine func(line string)) *Framer {
	return &Framer{onLine: onLine}
}

// Write consumes a chunk. It always reports the full chunk as written.
func (f *Framer) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		idx := bytes.IndexByte(p, '\n')
		if idx < 0 {
			f.buf = append(f.buf, p...)
			if len(f.buf) >= MaxLineBytes {
				f.emit(f.buf)
				f.buf = f.buf[:0]
			}
			break
		}

		if len(f.buf) > 0 {
			f.buf = append(f.buf, p[:idx]...)
			f.emit(f.buf)
			f.buf = f.buf[:0]
		} else {
			f.emit(p[:idx])
		}
		p = p[idx+1:]
	}
	return n, nil
}

// Flush emits any buffered fragment as a final line. Call it once the
// underlying stream reaches EOF.
func (f *Framer) Flush() {
	if len(f.buf) == 0 {
		return
	}
	f.emit(f.buf)
	f.buf = f.buf[:0]
}

// Pending reports how many bytes of an incomplete line are buffered.
func (f *Framer) Pending() int {
	return len(f.buf)
}

func (f *Framer) emit(line []byte) {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return
	}
	f.onLine(trimmed)
}
