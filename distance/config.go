package distance

// defaultConfig is written in one transfer starting at I2C_FAST_MODE_PLUS and
// covers registers 0x2D..0x87.
var defaultConfig = [...]byte{
	0x12, // 0x2d : set bit 2 and 5 to 1 for fast plus mode (1MHz I2C), else don't touch
	0x00, // 0x2e : bit 0 if I2C pulled up at 1.8V, else set bit 0 to 1 (pull up at AVDD)
	0x00, // 0x2f : bit 0 if GPIO pulled up at 1.8V, else set bit 0 to 1 (pull up at AVDD)
	0x11, // 0x30 : set bit 4 to 0 for active high interrupt and 1 for active low (bits 3:0 must be 0x1)
	0x02, // 0x31 : bit 1 = interrupt depending on the polarity
	0x00, // 0x32
	0x02, // 0x33
	0x08, // 0x34
	0x00, // 0x35
	0x08, // 0x36
	0x10, // 0x37
	0x01, // 0x38
	0x01, // 0x39
	0x00, // 0x3a
	0x00, // 0x3b
	0x00, // 0x3c
	0x00, // 0x3d
	0xFF, // 0x3e
	0x00, // 0x3f
	0x0F, // 0x40
	0x00, // 0x41
	0x00, // 0x42
	0x00, // 0x43
	0x00, // 0x44
	0x00, // 0x45
	0x20, // 0x46 : interrupt configuration, 0x20 = new sample ready
	0x0B, // 0x47
	0x00, // 0x48
	0x00, // 0x49
	0x02, // 0x4a
	0x14, // 0x4b
	0x21, // 0x4c
	0x00, // 0x4d
	0x00, // 0x4e
	0x05, // 0x4f
	0x00, // 0x50
	0x00, // 0x51
	0x00, // 0x52
	0x00, // 0x53
	0xC8, // 0x54
	0x00, // 0x55
	0x00, // 0x56
	0x38, // 0x57
	0xFF, // 0x58
	0x01, // 0x59
	0x00, // 0x5a
	0x08, // 0x5b
	0x00, // 0x5c
	0x00, // 0x5d
	0x01, // 0x5e
	0xCC, // 0x5f
	0x07, // 0x60
	0x01, // 0x61
	0xF1, // 0x62
	0x05, // 0x63
	0x00, // 0x64 : sigma threshold MSB (mm in 14.2 format), default 90 mm
	0xA0, // 0x65 : sigma threshold LSB
	0x00, // 0x66 : min count rate MSB (MCPS in 9.7 format)
	0x80, // 0x67 : min count rate LSB
	0x08, // 0x68
	0x38, // 0x69
	0x00, // 0x6a
	0x00, // 0x6b
	0x00, // 0x6c : intermeasurement period MSB, 32 bits register
	0x00, // 0x6d
	0x0F, // 0x6e
	0x89, // 0x6f : intermeasurement period LSB
	0x00, // 0x70
	0x00, // 0x71
	0x00, // 0x72 : distance threshold high MSB (mm)
	0x00, // 0x73 : distance threshold high LSB
	0x00, // 0x74 : distance threshold low MSB (mm)
	0x00, // 0x75 : distance threshold low LSB
	0x00, // 0x76
	0x01, // 0x77
	0x07, // 0x78
	0x05, // 0x79
	0x06, // 0x7a
	0x06, // 0x7b
	0x00, // 0x7c
	0x00, // 0x7d
	0x02, // 0x7e
	0xC7, // 0x7f
	0xFF, // 0x80
	0x9B, // 0x81
	0x00, // 0x82
	0x00, // 0x83
	0x00, // 0x84
	0x01, // 0x85
	0x00, // 0x86 : clear interrupt, 0x01 = clear
	0x00, // 0x87 : ranging, 0x00 = stop, 0x40 = start
}
