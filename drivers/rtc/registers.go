package rtc

// I2C address of the RTCC block.
const Address uint16 = 0x6F

// Timekeeping registers.
const (
	regSec     = 0x00
	regMin     = 0x01
	regHour    = 0x02
	regWkDay   = 0x03
	regDate    = 0x04
	regMonth   = 0x05
	regYear    = 0x06
	regControl = 0x07
	regOscTrim = 0x08

	regAlm0Sec   = 0x0A
	regAlm0WkDay = 0x0D

	sramStart = 0x20
	SRAMSize  = 64
)

// Bits and fields.
const (
	secST      = 0x80
	secMask    = 0x7F
	minMask    = 0x7F
	hour12     = 0x40
	hourMask   = 0x3F
	wkdOSCRun  = 0x20
	wkdPwrFail = 0x10
	wkdVBatEn  = 0x08
	wkdMask    = 0x07
	dateMask   = 0x3F
	monthLPYR  = 0x20
	monthMask  = 0x1F

	ctrlOut    = 0x80
	ctrlSQWEn  = 0x40
	ctrlALM1En = 0x20
	ctrlALM0En = 0x10

	almPol      = 0x80
	almMaskBits = 0x70
	almIF       = 0x08
)
