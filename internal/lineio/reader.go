// Package lineio implements spec §4.2: turning a child process's stdout
// byte stream into a lazy sequence of UTF-8 text lines.
package lineio

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

// MaxLineBytes is the per-line cap from spec §4.2. Longer lines are split
// at the limit; each full MaxLineBytes chunk is surfaced through Oversize so
// the caller can treat it as a translation error candidate. The remainder
// that ends the line is yielded as an ordinary line with Oversize false.
const MaxLineBytes = 1 << 20 // 1 MiB

// Line is one yielded unit from Reader.Next.
type Line struct {
	Text     string
	Oversize bool // true if this is a full MaxLineBytes chunk split off a longer line
}

// Reader splits a byte stream on LF into lossily-decoded UTF-8 lines,
// emitting the trailing partial line on EOF.
type Reader struct {
	src     *bufio.Reader
	pending []byte // bytes read but not yet yielded, carried across Next calls
	eof     bool
	err     error
}

// New wraps r for line-wise reading.
func New(r io.Reader) *Reader {
	return &Reader{src: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next line, or (Line{}, false) once the stream is
// exhausted or an unrecoverable read error occurred (inspect Err).
func (r *Reader) Next() (Line, bool) {
	for {
		if nl := bytes.IndexByte(r.pending, '\n'); nl >= 0 && nl <= MaxLineBytes {
			line := r.pending[:nl]
			r.pending = r.pending[nl+1:]
			return Line{Text: decode(trimCR(line))}, true
		}

		// An oversize line already accumulated in pending: slice it off
		// without waiting for more input.
		if len(r.pending) > MaxLineBytes {
			return r.takeOversize(), true
		}

		if r.eof || r.err != nil {
			if len(r.pending) == 0 {
				return Line{}, false
			}
			line := r.pending
			r.pending = nil
			return Line{Text: decode(trimCR(line))}, true
		}

		chunk, err := r.src.ReadSlice('\n')
		r.pending = append(r.pending, chunk...)
		if err == bufio.ErrBufferFull {
			continue
		}
		if err == io.EOF {
			r.eof = true
			continue
		}
		if err != nil {
			r.err = err
			continue
		}
		// ReadSlice succeeded: the newline is now in r.pending, handled by
		// the IndexByte check at the top of the next loop iteration.
	}
}

func (r *Reader) takeOversize() Line {
	chunk := append([]byte(nil), r.pending[:MaxLineBytes]...)
	r.pending = r.pending[MaxLineBytes:]
	return Line{Text: decode(chunk), Oversize: true}
}

func trimCR(b []byte) []byte {
	return bytes.TrimSuffix(b, []byte("\r"))
}

// Err returns the terminal read error, if any. io.EOF is not an error.
func (r *Reader) Err() error { return r.err }

// decode lossily converts bytes to a UTF-8 string, replacing invalid
// sequences with the replacement character, per spec §4.2.
func decode(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var out bytes.Buffer
	out.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		out.WriteRune(r)
		b = b[size:]
	}
	return out.String()
}
