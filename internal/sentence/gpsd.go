package sentence

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

type reportBase struct {
	Class string `json:"class"`
}

type reportTPV struct {
	Class string `json:"class"`
	Mode  *int   `json:"mode"`
	Time  string `json:"time"`

	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`

	Alt     *float64 `json:"alt"`
	AltMSL  *float64 `json:"altMSL"`
	SpeedMS *float64 `json:"speed"`
	Track   *float64 `json:"track"`
}

type reportSat struct {
	Used bool `json:"used"`
}

type reportSKY struct {
	Class      string      `json:"class"`
	HDOP       *float64    `json:"hdop"`
	Satellites []reportSat `json:"satellites"`
	USat       *int        `json:"uSat"` // some gpsd versions
}

// Fix is the position part of the dashboard, fed from gpsd JSON reports.
type Fix struct {
	Mode       int
	LatDeg     float64
	LonDeg     float64
	AltFeet    *int
	SpeedKt    *float64
	TrackDeg   *float64
	Satellites *int
	HDOP       *float64
	Time       time.Time

	latOK, lonOK bool
}

// Valid reports a 2D/3D fix with a position.
func (f *Fix) Valid() bool {
	return f != nil && f.Mode >= 2 && f.latOK && f.lonOK
}

// applyReport decodes one gpsd JSON object. Classes other than TPV and SKY
// (VERSION, DEVICES, WATCH, ...) are accepted and ignored.
func (d *Dashboard) applyReport(line string) error {
	var base reportBase
	if err := json.Unmarshal([]byte(line), &base); err != nil {
		return fmt.Errorf("%w: gpsd json: %v", ErrBadField, err)
	}

	switch strings.ToUpper(strings.TrimSpace(base.Class)) {
	case "TPV":
		var tpv reportTPV
		if err := json.Unmarshal([]byte(line), &tpv); err != nil {
			return fmt.Errorf("%w: gpsd tpv: %v", ErrBadField, err)
		}
		d.fix().applyTPV(tpv)
	case "SKY":
		var sky reportSKY
		if err := json.Unmarshal([]byte(line), &sky); err != nil {
			return fmt.Errorf("%w: gpsd sky: %v", ErrBadField, err)
		}
		d.fix().applySKY(sky)
	}
	return nil
}

func (d *Dashboard) fix() *Fix {
	if d.Fix == nil {
		d.Fix = &Fix{}
	}
	return d.Fix
}

func (f *Fix) applyTPV(tpv reportTPV) {
	if tpv.Mode != nil {
		f.Mode = *tpv.Mode
	}
	if strings.TrimSpace(tpv.Time) != "" {
		if t, err := time.Parse(time.RFC3339Nano, tpv.Time); err == nil {
			f.Time = t.UTC()
		}
	}
	if tpv.Lat != nil {
		f.LatDeg = *tpv.Lat
		f.latOK = true
	}
	if tpv.Lon != nil {
		f.LonDeg = *tpv.Lon
		f.lonOK = true
	}
	if tpv.SpeedMS != nil {
		// gpsd reports m/s.
		v := *tpv.SpeedMS * 1.9438444924406
		f.SpeedKt = &v
	}
	if tpv.Track != nil {
		v := *tpv.Track
		f.TrackDeg = &v
	}
	altM := tpv.AltMSL
	if altM == nil {
		altM = tpv.Alt
	}
	if altM != nil {
		v := int(math.Round(*altM * 3.280839895013123))
		f.AltFeet = &v
	}
}

func (f *Fix) applySKY(sky reportSKY) {
	if sky.HDOP != nil {
		v := *sky.HDOP
		f.HDOP = &v
	}
	switch {
	case len(sky.Satellites) > 0:
		used := 0
		for _, sat := range sky.Satellites {
			if sat.Used {
				used++
			}
		}
		f.Satellites = &used
	case sky.USat != nil:
		v := *sky.USat
		f.Satellites = &v
	}
}
