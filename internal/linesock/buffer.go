package linesock

import "bytes"

// lineBuffer accumulates received bytes until a '\n' terminator shows up.
//
// The only mutating operation is appendAndExtract, so the append and the
// trim of a delivered prefix always happen together.
type lineBuffer struct {
	b []byte
}

// appendAndExtract appends chunk (which may be empty) and, if the buffer now
// holds a terminator, removes and returns the prefix up to and including it.
// The buffer is scanned from the start on every call.
func (lb *lineBuffer) appendAndExtract(chunk []byte) (string, bool) {
	lb.b = append(lb.b, chunk...)
	eol := bytes.IndexByte(lb.b, '\n')
	if eol == -1 {
		return "", false
	}
	eol++
	line := string(lb.b[:eol])
	n := copy(lb.b, lb.b[eol:])
	lb.b = lb.b[:n]
	return line, true
}

func (lb *lineBuffer) pending() int {
	return len(lb.b)
}

func (lb *lineBuffer) String() string {
	return string(lb.b)
}

func (lb *lineBuffer) reset() {
	lb.b = nil
}
