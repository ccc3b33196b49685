package accel

// Register map (LIS2DH12 class).
const (
	regStatusAux = 0x07
	regOutTempL  = 0x0C
	regWhoAmI    = 0x0F
	regTempCfg   = 0x1F
	regCtrl1     = 0x20
	regCtrl3     = 0x22
	regCtrl4     = 0x23
	regCtrl5     = 0x24
	regStatus    = 0x27
	regOutXL     = 0x28
)

// Bits and fields.
const (
	whoAmIValue = 0x33

	ctrl1XYZEn   = 0x07
	ctrl1ODRMask = 0xF0

	ctrl3I1ZYXDA = 0x10

	ctrl4BDU    = 0x80
	ctrl4FSMask = 0x30
	ctrl4HR     = 0x08

	ctrl5Boot = 0x80

	tempCfgEn = 0xC0

	statusZYXDA    = 0x08
	statusAuxTDA   = 0x04
	i2cAutoInc     = 0x80
	spiRead        = 0x80
	spiMultiAccess = 0x40
)

// I2C addresses selected by the SA0 jumper.
const (
	AddressLow  uint16 = 0x18
	AddressHigh uint16 = 0x19
)
