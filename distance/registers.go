package distance

// Register is a 16-bit VL53L4CD register address.
type Register uint16

const (
	SOFT_RESET                           Register = 0x0000
	I2C_SLAVE_DEVICE_ADDRESS             Register = 0x0001
	OSC_FREQ                             Register = 0x0006
	VHV_CONFIG_TIMEOUT_MACROP_LOOP_BOUND Register = 0x0008
	MYSTERY_1                            Register = 0x000B
	XTALK_PLANE_OFFSET_KCPS              Register = 0x0016
	XTALK_X_PLANE_GRADIENT_KCPS          Register = 0x0018
	XTALK_Y_PLANE_GRADIENT_KCPS          Register = 0x001A
	RANGE_OFFSET_MM                      Register = 0x001E
	INNER_OFFSET_MM                      Register = 0x0020
	OUTER_OFFSET_MM                      Register = 0x0022
	MYSTERY_2                            Register = 0x0024
	I2C_FAST_MODE_PLUS                   Register = 0x002D
	GPIO_HV_MUX_CTRL                     Register = 0x0030
	GPIO_TIO_HV_STATUS                   Register = 0x0031
	SYSTEM_INTERRUPT                     Register = 0x0046
	RANGE_CONFIG_A                       Register = 0x005E
	RANGE_CONFIG_B                       Register = 0x0061
	RANGE_CONFIG_SIGMA_THRESH            Register = 0x0064
	MIN_COUNT_RATE_RTN_LIMIT_MCPS        Register = 0x0066
	INTERMEASUREMENT_MS                  Register = 0x006C
	THRESH_HIGH                          Register = 0x0072
	THRESH_LOW                           Register = 0x0074
	SYSTEM_INTERRUPT_CLEAR               Register = 0x0086
	SYSTEM_START                         Register = 0x0087
	RESULT_RANGE_STATUS                  Register = 0x0089
	RESULT_SPAD_NB                       Register = 0x008C
	RESULT_SIGNAL_RATE                   Register = 0x008E
	RESULT_AMBIENT_RATE                  Register = 0x0090
	RESULT_SIGMA                         Register = 0x0092
	RESULT_DISTANCE                      Register = 0x0096
	RESULT_OSC_CALIBRATE_VAL             Register = 0x00DE
	FIRMWARE_SYSTEM_STATUS               Register = 0x00E5
	IDENTIFICATION_MODEL_ID              Register = 0x010F
)

// SYSTEM_START commands
const (
	startStop       byte = 0x00
	startContinuous byte = 0x21
	startAutonomous byte = 0x40
)

const (
	// DefaultAddress is the 7-bit address the sensor answers to after power up.
	DefaultAddress byte = 0x29
	ModelID        uint16 = 0xEBAA
	firmwareBooted byte = 0x03
	// result block spans RESULT_RANGE_STATUS..RESULT_DISTANCE+1
	resultBlockSize = int(RESULT_DISTANCE-RESULT_RANGE_STATUS) + 2
)
