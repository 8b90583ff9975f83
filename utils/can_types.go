package utils

import (
	"fmt"
	"sort"
)

// DeviceIDSpan is the number of device ids a frame template covers. A device
// frame is addressed as template id + device id, so templates must sit at least
// this far apart.
const DeviceIDSpan = 0x40

type SignalDef struct {
	Name       string
	StartBit   int
	BitLength  int
	Signed     bool
	Factor     float64
	Offset     float64
	Min        float64
	Max        float64
	Default    float64
	Unit       string
	Comment    string
	Endianness string // only "little" supported
}

// FrameDef describes one frame template. Direction is "tx" for frames the robot
// sends to devices and "rx" for status frames the devices broadcast.
type FrameDef struct {
	ID        uint32
	Name      string
	DLC       int
	Direction string
	CycleMS   int
	Signals   []SignalDef
}

// DeviceFrameID returns the bus id of this template addressed to deviceID.
func (fd *FrameDef) DeviceFrameID(deviceID int) (uint32, error) {
	if deviceID < 0 || deviceID >= DeviceIDSpan-1 {
		return 0, fmt.Errorf("frame %s: device id %d out of range 0..%d", fd.Name, deviceID, DeviceIDSpan-2)
	}
	return fd.ID + uint32(deviceID), nil
}

func (fd *FrameDef) Signal(name string) (*SignalDef, bool) {
	for i := range fd.Signals {
		if fd.Signals[i].Name == name {
			return &fd.Signals[i], true
		}
	}
	return nil, false
}

type CANMap struct {
	ByID   map[uint32]*FrameDef
	ByName map[string]*FrameDef
}

func (m *CANMap) FrameNames() []string {
	out := make([]string, 0, len(m.ByName))
	for k := range m.ByName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
