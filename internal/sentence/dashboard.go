package sentence

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Dashboard holds the latest derived mast values.
type Dashboard struct {
	AWA   float64 // apparent wind angle, degrees
	AWS   float64 // apparent wind speed
	HDM   float64 // magnetic heading
	Roll  float64
	Pitch float64
	Temp  float64

	// Fix is nil until a gpsd TPV or SKY report arrives.
	Fix *Fix

	VerifyChecksum bool
	// ShowSkipped makes Render list the most recent unknown lines.
	ShowSkipped bool

	Lines   uint64
	Skipped uint64

	tail *tailBuffer
}

func NewDashboard(tailLines int) *Dashboard {
	return &Dashboard{tail: newTailBuffer(tailLines, 256)}
}

// Apply folds one received line into the dashboard. Blank lines are ignored.
// Unknown sentences return ErrSkipped; short or non-numeric ones return
// ErrShortSentence or ErrBadField and leave the dashboard unchanged.
func (d *Dashboard) Apply(line string) error {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}
	d.Lines++

	if strings.HasPrefix(trimmed, "{") {
		return d.applyReport(trimmed)
	}

	s, err := Parse(trimmed, d.VerifyChecksum)
	if err != nil {
		return err
	}

	switch s.Fields[0] {
	case "$IIMWV":
		ref, err := s.Field(2)
		if err != nil {
			return err
		}
		if ref != "R" {
			// True wind is not shown.
			return d.skip(s)
		}
		awa, err := floatField(s, 1)
		if err != nil {
			return err
		}
		aws, err := floatField(s, 3)
		if err != nil {
			return err
		}
		d.AWA, d.AWS = awa, aws
	case "$HCHDM":
		v, err := floatField(s, 1)
		if err != nil {
			return err
		}
		d.HDM = v
	case "$IIXDR":
		name, err := s.Field(4)
		if err != nil {
			return err
		}
		switch {
		case strings.HasPrefix(name, "PTCH"):
			v, err := floatField(s, 2)
			if err != nil {
				return err
			}
			d.Pitch = v
		case strings.HasPrefix(name, "ROLL"):
			v, err := floatField(s, 2)
			if err != nil {
				return err
			}
			d.Roll = v
		}
	case "$IIMTA":
		v, err := floatField(s, 1)
		if err != nil {
			return err
		}
		d.Temp = v
	default:
		return d.skip(s)
	}
	return nil
}

func (d *Dashboard) skip(s Sentence) error {
	d.Skipped++
	if d.tail == nil {
		d.tail = newTailBuffer(8, 256)
	}
	d.tail.add(s.Raw)
	return fmt.Errorf("%w: %v", ErrSkipped, s.Fields)
}

// RecentSkipped returns the most recent unknown lines, oldest first.
func (d *Dashboard) RecentSkipped() []string {
	return d.tail.snapshot()
}

func floatField(s Sentence, i int) (float64, error) {
	f, err := s.Field(i)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: field %d %q of %s", ErrBadField, i, f, s.Fields[0])
	}
	return v, nil
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Render writes the fixed dashboard block.
func (d *Dashboard) Render(w io.Writer) error {
	var b strings.Builder
	b.WriteString("------------------------------\n")
	fmt.Fprintf(&b, "AWAmtop:\t%s\n", fmtFloat(d.AWA))
	fmt.Fprintf(&b, "AWSmtop:\t%s\n", fmtFloat(d.AWS))
	fmt.Fprintf(&b, "HDMmtop:\t%s\n", fmtFloat(d.HDM))
	fmt.Fprintf(&b, "ROLLmtop:\t%s\n", fmtFloat(d.Roll))
	fmt.Fprintf(&b, "PTCHmtop:\t%s\n", fmtFloat(d.Pitch))
	fmt.Fprintf(&b, "TEMPmtop:\t%s\n", fmtFloat(d.Temp))
	if f := d.Fix; f != nil {
		fmt.Fprintf(&b, "FIX:\t\tmode=%d", f.Mode)
		if f.Valid() {
			fmt.Fprintf(&b, " lat=%.6f lon=%.6f", f.LatDeg, f.LonDeg)
		}
		if f.SpeedKt != nil {
			fmt.Fprintf(&b, " sog=%.1fkt", *f.SpeedKt)
		}
		if f.TrackDeg != nil {
			fmt.Fprintf(&b, " cog=%.1f", *f.TrackDeg)
		}
		if f.Satellites != nil {
			fmt.Fprintf(&b, " sats=%d", *f.Satellites)
		}
		b.WriteString("\n")
	}
	if d.ShowSkipped {
		for _, l := range d.RecentSkipped() {
			fmt.Fprintf(&b, "skipped:\t%s\n", l)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
