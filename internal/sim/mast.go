package sim

import (
	"fmt"
	"math"
	"time"
)

// MastSim produces deterministic instrument readings for a boat swinging
// about a base heading in a steady wind.
type MastSim struct {
	HeadingDeg  float64
	WindFromDeg float64
	WindKt      float64
	SwingDeg    float64
	RollAmpDeg  float64
	PitchAmpDeg float64
	AirTempC    float64
	Period      time.Duration
}

// Sentences returns the sentences (without checksum) for now.
func (m MastSim) Sentences(now time.Time) []string {
	period := m.Period
	if period <= 0 {
		period = 60 * time.Second
	}
	phase := float64(now.UnixNano()%period.Nanoseconds()) / float64(period.Nanoseconds())
	w := 2 * math.Pi * phase

	hdg := normDeg(m.HeadingDeg + m.SwingDeg*math.Sin(w))
	awa := normDeg(m.WindFromDeg - hdg)
	// Gusts on a period decoupled from the swing.
	aws := m.WindKt * (1 + 0.15*math.Sin(3*w))
	if aws < 0 {
		aws = 0
	}
	roll := m.RollAmpDeg * math.Sin(2*w)
	pitch := m.PitchAmpDeg * math.Cos(5*w)

	return []string{
		fmt.Sprintf("$IIMWV,%.1f,R,%.1f,N,A", awa, aws),
		fmt.Sprintf("$HCHDM,%.1f,M", hdg),
		fmt.Sprintf("$IIXDR,A,%.1f,D,ROLL", roll),
		fmt.Sprintf("$IIXDR,A,%.1f,D,PTCH", pitch),
		fmt.Sprintf("$IIMTA,%.1f,C", m.AirTempC),
	}
}

func normDeg(v float64) float64 {
	v = math.Mod(v, 360)
	if v < 0 {
		v += 360
	}
	return v
}
