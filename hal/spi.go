package hal

// SPIDevice couples an SPI bus with the Click's active-low chip select.
type SPIDevice struct {
	Bus SPI
	CS  Pin
}

// Tx asserts CS for the duration of one full-duplex transfer.
func (d SPIDevice) Tx(w, r []byte) error {
	d.CS.Set(false)
	err := d.Bus.Tx(w, r)
	d.CS.Set(true)
	return err
}
