package modbus

// crc16 computes the Modbus RTU CRC-16 (polynomial 0xA001 reflected, initial
// value 0xFFFF) over data. The low byte is transmitted first on the wire.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
