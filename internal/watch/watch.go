// Package watch builds the ?WATCH control message that asks a gpsd-style
// daemon to start or stop streaming reports.
package watch

import (
	"fmt"
	"strings"
)

// Flags selects what the daemon should stream.
type Flags uint32

const (
	Enable  Flags = 0x000001 // enable streaming
	Disable Flags = 0x000002 // disable watching
	JSON    Flags = 0x000010 // JSON output
	NMEA    Flags = 0x000020 // output in NMEA
	Rare    Flags = 0x000040 // output of packets in hex
	Raw     Flags = 0x000080 // output of raw packets
	Scaled  Flags = 0x000100 // scale output to floats
	Timing  Flags = 0x000200 // timing information
	Device  Flags = 0x000800 // watch specific device
	Split24 Flags = 0x001000 // split AIS Type 24s
	PPS     Flags = 0x002000 // enable PPS in raw/NMEA
)

// member is one entry of the message table. Boolean members take the
// enable/disable value; the rest render a fixed value.
type member struct {
	flag  Flags
	name  string
	value string
}

// members is ordered the way the daemon documents the WATCH object.
var members = []member{
	{flag: JSON, name: "json"},
	{flag: NMEA, name: "nmea"},
	{flag: Rare, name: "raw", value: "1"},
	{flag: Raw, name: "raw", value: "2"},
	{flag: Scaled, name: "scaled"},
	{flag: Timing, name: "timing"},
	{flag: Split24, name: "split24"},
	{flag: PPS, name: "pps"},
}

var names = map[string]Flags{
	"enable":  Enable,
	"disable": Disable,
	"json":    JSON,
	"nmea":    NMEA,
	"rare":    Rare,
	"raw":     Raw,
	"scaled":  Scaled,
	"timing":  Timing,
	"device":  Device,
	"split24": Split24,
	"pps":     PPS,
}

// Has reports whether every bit of f2 is set in f.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

func (f Flags) String() string {
	if f == 0 {
		return "0"
	}
	var parts []string
	for _, n := range []string{"enable", "disable", "json", "nmea", "rare", "raw", "scaled", "timing", "device", "split24", "pps"} {
		if f.Has(names[n]) {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "|")
}

// Stream returns flags with JSON added when none of JSON, NMEA or Raw is
// requested, so an enable-only request still yields reports.
func Stream(f Flags) Flags {
	if f&(JSON|NMEA|Raw) == 0 {
		f |= JSON
	}
	return f
}

// Message renders the ?WATCH={...} request for f, newline terminated.
// Disable takes precedence over Enable. The device path is only sent when
// enabling with the Device flag set.
func Message(f Flags, device string) string {
	enable := !f.Has(Disable)
	on := "false"
	if enable {
		on = "true"
	}

	var b strings.Builder
	b.WriteString(`?WATCH={"enable":`)
	b.WriteString(on)
	for _, m := range members {
		if !f.Has(m.flag) {
			continue
		}
		v := m.value
		if v == "" {
			v = on
		}
		fmt.Fprintf(&b, `,"%s":%s`, m.name, v)
	}
	if enable && f.Has(Device) && device != "" {
		fmt.Fprintf(&b, `,"device":%q`, device)
	}
	b.WriteString("}\n")
	return b.String()
}

// ParseFlags maps config names such as "json" or "scaled" to their bits.
func ParseFlags(list []string) (Flags, error) {
	var f Flags
	for _, s := range list {
		bit, ok := names[strings.ToLower(strings.TrimSpace(s))]
		if !ok {
			return 0, fmt.Errorf("unknown watch flag %q", s)
		}
		f |= bit
	}
	return f, nil
}
