package device

import (
	"encoding/binary"
	"fmt"
)

// Bluetooth SIG company identifiers commonly seen next to the actuator
var knownCompanies = map[uint16]string{
	0x0006: "Microsoft",
	0x004C: "Apple",
	0x0059: "Nordic Semiconductor",
	0x0075: "Samsung",
	0x00E0: "Google",
	0x02E5: "Espressif",
}

// CompanyID extracts the company identifier from manufacturer data.
// By BLE convention it is the first 2 bytes, little-endian.
func CompanyID(data []byte) (uint16, bool) {
	if len(data) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(data[0:2]), true
}

// Manufacturer names the company that owns the manufacturer data.
// Unknown identifiers are rendered as hex; data too short to carry one yields "".
func Manufacturer(data []byte) string {
	id, ok := CompanyID(data)
	if !ok {
		return ""
	}
	if name, known := knownCompanies[id]; known {
		return name
	}
	return fmt.Sprintf("0x%04X", id)
}
