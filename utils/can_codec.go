package utils

import (
	"fmt"
	"math"

	"go.einride.tech/can"
)

func (fd *FrameDef) pack(values map[string]float64) ([]byte, error) {
	if fd.DLC <= 0 || fd.DLC > 8 {
		return nil, fmt.Errorf("frame %s has invalid DLC %d", fd.Name, fd.DLC)
	}

	var payload uint64
	for _, s := range fd.Signals {
		v, ok := values[s.Name]
		if !ok {
			v = s.Default
		}
		if math.IsNaN(v) {
			return nil, fmt.Errorf("frame %s signal %s: NaN", fd.Name, s.Name)
		}

		v = clamp(v, s.Min, s.Max)

		raw := int64(math.Round((v - s.Offset) / s.Factor))
		raw = clampRaw(raw, s.BitLength, s.Signed)
		payload = setBits(payload, s.StartBit, s.BitLength, rawToUnsigned(raw, s.BitLength))
	}

	out := make([]byte, fd.DLC)
	for i := 0; i < fd.DLC; i++ {
		out[i] = byte(payload >> (8 * i))
	}
	return out, nil
}

func (fd *FrameDef) unpack(data []byte) (map[string]float64, error) {
	if len(data) < fd.DLC {
		return nil, fmt.Errorf("frame %s expects DLC %d, got %d", fd.Name, fd.DLC, len(data))
	}

	var payload uint64
	for i := 0; i < fd.DLC && i < 8; i++ {
		payload |= uint64(data[i]) << (8 * i)
	}

	out := make(map[string]float64, len(fd.Signals))
	for _, s := range fd.Signals {
		raw := unsignedToRawInt64(getBits(payload, s.StartBit, s.BitLength), s.BitLength, s.Signed)
		out[s.Name] = float64(raw)*s.Factor + s.Offset
	}
	return out, nil
}

// EncodeDeviceFrame builds a frame ready to transmit to one device. Missing
// signals take their default and every value is clamped to the signal range.
func (m *CANMap) EncodeDeviceFrame(frameName string, deviceID int, values map[string]float64) (can.Frame, error) {
	fd, err := m.FrameByName(frameName)
	if err != nil {
		return can.Frame{}, err
	}
	id, err := fd.DeviceFrameID(deviceID)
	if err != nil {
		return can.Frame{}, err
	}
	payload, err := fd.pack(values)
	if err != nil {
		return can.Frame{}, err
	}

	var f can.Frame
	f.ID = id
	f.Length = uint8(len(payload))
	copy(f.Data[:], payload)
	return f, nil
}

// DecodeDeviceFrame decodes a received frame into its template, the sending
// device id and the physical signal values.
func (m *CANMap) DecodeDeviceFrame(frame can.Frame) (*FrameDef, int, map[string]float64, error) {
	if frame.IsExtended || frame.IsRemote {
		return nil, 0, nil, fmt.Errorf("frame 0x%X: extended and remote frames are not used", frame.ID)
	}
	fd, deviceID, err := m.TemplateFor(frame.ID)
	if err != nil {
		return nil, 0, nil, err
	}
	values, err := fd.unpack(frame.Data[:frame.Length])
	if err != nil {
		return nil, 0, nil, err
	}
	return fd, deviceID, values, nil
}
