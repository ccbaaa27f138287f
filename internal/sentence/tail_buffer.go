package sentence

// tailBuffer keeps the last maxLines lines, each cut to maxLineBytes.
type tailBuffer struct {
	maxLines     int
	maxLineBytes int
	lines        []string
}

func newTailBuffer(maxLines int, maxLineBytes int) *tailBuffer {
	if maxLines < 0 {
		maxLines = 0
	}
	if maxLineBytes <= 0 {
		maxLineBytes = 256
	}
	return &tailBuffer{maxLines: maxLines, maxLineBytes: maxLineBytes, lines: make([]string, 0, maxLines)}
}

func (t *tailBuffer) add(line string) {
	if t == nil || t.maxLines == 0 {
		return
	}
	if len(line) > t.maxLineBytes {
		line = line[:t.maxLineBytes]
	}
	if len(t.lines) < t.maxLines {
		t.lines = append(t.lines, line)
		return
	}
	copy(t.lines, t.lines[1:])
	t.lines[len(t.lines)-1] = line
}

func (t *tailBuffer) snapshot() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.lines))
	return append(out, t.lines...)
}
