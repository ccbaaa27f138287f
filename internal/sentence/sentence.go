// Package sentence splits comma-delimited instrument sentences and folds the
// ones the mast instruments emit into a Dashboard.
//
// Fields are interpreted positionally per sentence type. Checksums are not
// required on receipt unless checksum verification is switched on.
package sentence

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSkipped marks a line whose prefix matches no known sentence.
	ErrSkipped = errors.New("sentence: unknown sentence")
	// ErrShortSentence marks a sentence with fewer fields than its parser reads.
	ErrShortSentence = errors.New("sentence: too few fields")
	// ErrBadField marks a field that should be numeric but is not.
	ErrBadField = errors.New("sentence: bad field")
	// ErrChecksum marks a missing or mismatching checksum when verifying.
	ErrChecksum = errors.New("sentence: checksum")
)

// Sentence is one split line. Fields[0] is the mnemonic including the
// leading '$' (for example "$IIMWV"); the checksum is not part of Fields.
type Sentence struct {
	Talker string
	Type   string
	Fields []string

	// Checksum is the two hex digits after '*', empty when absent.
	Checksum string
	Raw      string
}

// SplitChecksum cuts a trailing "*hh" off s. The suffix is a checksum only
// when the '*' is followed by exactly two hex digits that end s; anything
// else is left in the payload.
func SplitChecksum(s string) (payload, ck string, ok bool) {
	n := len(s)
	if n >= 3 && s[n-3] == '*' && isHex(s[n-2]) && isHex(s[n-1]) {
		return s[:n-3], strings.ToUpper(s[n-2:]), true
	}
	return s, "", false
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// Parse trims the line trailer, strips an optional "*hh" checksum and splits
// on commas. With verify set, the checksum must be present and match.
func Parse(line string, verify bool) (Sentence, error) {
	raw := strings.TrimRight(line, "\r\n")
	s := strings.TrimSpace(raw)
	if s == "" {
		return Sentence{}, fmt.Errorf("%w: empty line", ErrShortSentence)
	}

	payload, ck, _ := SplitChecksum(s)

	if verify {
		if ck == "" {
			return Sentence{}, fmt.Errorf("%w: missing", ErrChecksum)
		}
		want, err := hex.DecodeString(ck)
		if err != nil || len(want) != 1 {
			return Sentence{}, fmt.Errorf("%w: bad digits %q", ErrChecksum, ck)
		}
		if got := Checksum(payload); got != want[0] {
			return Sentence{}, fmt.Errorf("%w: mismatch got %02X want %s", ErrChecksum, got, ck)
		}
	}

	out := Sentence{Fields: strings.Split(payload, ","), Checksum: ck, Raw: raw}
	id := out.Fields[0]
	if (strings.HasPrefix(id, "$") || strings.HasPrefix(id, "!")) && len(id) >= 6 {
		out.Talker = id[1:3]
		out.Type = strings.ToUpper(id[3:])
	}
	return out, nil
}

// Field returns field i, or ErrShortSentence when the sentence is too short.
func (s Sentence) Field(i int) (string, error) {
	if i < 0 || i >= len(s.Fields) {
		return "", fmt.Errorf("%w: want field %d, have %d in %v", ErrShortSentence, i, len(s.Fields), s.Fields)
	}
	return s.Fields[i], nil
}

// Checksum is the XOR of every character after a leading '$'.
func Checksum(s string) byte {
	s = strings.TrimPrefix(s, "$")
	var sum byte
	for i := 0; i < len(s); i++ {
		sum ^= s[i]
	}
	return sum
}

// AddChecksum appends "*hh\r\n" to s, hh being the two uppercase hex digits
// of Checksum(s).
func AddChecksum(s string) string {
	return fmt.Sprintf("%s*%02X\r\n", s, Checksum(s))
}
