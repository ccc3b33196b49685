package accel

import "clickboards-go/hal"

// regIO is the register access path chosen in New.
type regIO interface {
	read(reg byte, buf []byte) error
	write(reg byte, val byte) error
}

type i2cIO struct {
	bus  hal.I2C
	addr uint16
	w    [2]byte
}

func (c *i2cIO) read(reg byte, buf []byte) error {
	c.w[0] = reg
	if len(buf) > 1 {
		c.w[0] |= i2cAutoInc
	}
	return c.bus.Tx(c.addr, c.w[:1], buf)
}

func (c *i2cIO) write(reg byte, val byte) error {
	c.w[0], c.w[1] = reg, val
	return c.bus.Tx(c.addr, c.w[:2], nil)
}

type spiIO struct {
	dev hal.SPIDevice
	tx  [7]byte
	rx  [7]byte
}

func (c *spiIO) read(reg byte, buf []byte) error {
	n := len(buf) + 1
	c.tx = [7]byte{}
	c.tx[0] = reg | spiRead
	if len(buf) > 1 {
		c.tx[0] |= spiMultiAccess
	}
	if err := c.dev.Tx(c.tx[:n], c.rx[:n]); err != nil {
		return err
	}
	copy(buf, c.rx[1:n])
	return nil
}

func (c *spiIO) write(reg byte, val byte) error {
	c.tx[0], c.tx[1] = reg, val
	return c.dev.Tx(c.tx[:2], c.rx[:2])
}
