package urmfb

import (
	"fmt"
	"strings"
)

// UpdateMode selects the refresh strategy for a region update. Modes other
// than UpdateAny and UpdateClear matter mostly for e-paper panels; devices
// without refresh waveforms treat them alike.
type UpdateMode uint32

// Supported update modes. The values are stable.
const (
	UpdateAny    UpdateMode = iota // Device chooses
	UpdateClear                    // Flashing full screen refresh, removes ghosting
	UpdateDirect                   // Fastest, black and white only
	UpdateHQ                       // High quality grayscale
	UpdateMQ                       // Medium quality grayscale, no flashing
	UpdateFast                     // Low latency two level, for pen input and animation
)

var updateModeNames = [...]string{
	UpdateAny:    "any",
	UpdateClear:  "clear",
	UpdateDirect: "direct",
	UpdateHQ:     "hq",
	UpdateMQ:     "mq",
	UpdateFast:   "fast",
}

// UpdateModes lists every update mode.
var UpdateModes = []UpdateMode{UpdateAny, UpdateClear, UpdateDirect, UpdateHQ, UpdateMQ, UpdateFast}

func (m UpdateMode) Valid() bool {
	return m <= UpdateFast
}

func (m UpdateMode) String() string {
	if m.Valid() {
		return updateModeNames[m]
	}
	return fmt.Sprintf("UpdateMode(%d)", uint32(m))
}

func (m UpdateMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("urmfb: invalid update mode %d", uint32(m))
	}
	return []byte(m.String()), nil
}

func (m *UpdateMode) UnmarshalText(text []byte) error {
	s := strings.ToLower(string(text))
	for i, name := range updateModeNames {
		if s == name {
			*m = UpdateMode(i)
			return nil
		}
	}
	return fmt.Errorf("urmfb: unknown update mode %q", text)
}
