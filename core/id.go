package core

import "fmt"

// Bus types for DeviceID.  Only Virtual is used by the bus itself;
// the rest exist so callers can tag nodes that mirror hardware.
const (
	BusUnknown   = 0
	BusI2C       = 1
	BusSPI       = 2
	BusUAVCAN    = 3
	BusSimulated = 4
	BusSerial    = 5
	BusMAVLink   = 6
	BusVirtual   = 7
)

// DeviceID packs a node's origin into 32 bits: bus type in bits 0-2,
// bus number in bits 3-7, address in bits 8-15, device type in bits
// 16-23.
type DeviceID uint32

// MakeDeviceID packs the four fields.  Out-of-range values are masked.
func MakeDeviceID(busType, bus, address, devType int) DeviceID {
	return DeviceID(uint32(busType&0x7) |
		uint32(bus&0x1f)<<3 |
		uint32(address&0xff)<<8 |
		uint32(devType&0xff)<<16)
}

func (d DeviceID) BusType() int { return int(d & 0x7) }
func (d DeviceID) Bus() int     { return int(d>>3) & 0x1f }
func (d DeviceID) Address() int { return int(d>>8) & 0xff }
func (d DeviceID) DevType() int { return int(d>>16) & 0xff }

func (d DeviceID) String() string {
	return fmt.Sprintf("bustype=%d bus=%d address=%d devtype=%d",
		d.BusType(), d.Bus(), d.Address(), d.DevType())
}
