package model

import "fmt"

// Version identifies a Tuya LAN protocol revision. The zero value is
// VersionAuto, meaning "learn the version from discovery".
type Version int

const (
	VersionAuto Version = iota
	Version31
	Version33
	Version34
	Version35
)

// ParseVersion accepts the common string forms ("3.1", "3.3", "3.4", "3.5",
// "Auto", "", "3.2") and returns the matching Version. "3.2" is a pseudo
// version: there is no 3.2 wire format, so it maps to Version33 on the
// wire; callers that need the device22 behavior historically implied by
// "3.2" should use DevTypeForVersionString instead of relying on the
// returned Version alone.
func ParseVersion(s string) (Version, error) {
	switch s {
	case "", "Auto", "auto":
		return VersionAuto, nil
	case "3.1":
		return Version31, nil
	case "3.2", "3.3":
		return Version33, nil
	case "3.4":
		return Version34, nil
	case "3.5":
		return Version35, nil
	default:
		return VersionAuto, fmt.Errorf("tuyalink: unknown protocol version %q", s)
	}
}

// DevTypeForVersionString reports the device-type tag implied at
// construction time by a caller-supplied version string. Only "3.2"
// carries special meaning; every other version starts out DevTypeDefault.
func DevTypeForVersionString(s string) string {
	if s == "3.2" {
		return DevTypeDevice22
	}
	return DevTypeDefault
}

// Val returns the float value of the version, as used in numeric
// comparisons throughout the session state machine (e.g. "version >= 3.4").
func (v Version) Val() float64 {
	switch v {
	case Version31:
		return 3.1
	case Version33:
		return 3.3
	case Version34:
		return 3.4
	case Version35:
		return 3.5
	default:
		return 0
	}
}

// Bytes returns the 3-byte ASCII on-wire version tag, e.g. "3.3".
func (v Version) Bytes() [3]byte {
	s := v.String()
	var out [3]byte
	copy(out[:], s)
	return out
}

func (v Version) String() string {
	switch v {
	case Version31:
		return "3.1"
	case Version33:
		return "3.3"
	case Version34:
		return "3.4"
	case Version35:
		return "3.5"
	default:
		return "Auto"
	}
}

// Device type tags. DevTypeDevice22 marks firmwares that require
// ControlNew in place of DpQuery and have non-block-aligned payloads.
const (
	DevTypeDefault  = "default"
	DevTypeDevice22 = "device22"
)
