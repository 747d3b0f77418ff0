//go:build !linux

package main

import "fmt"

type linuxI2C struct{}

func openLinuxI2C(bus int) (*linuxI2C, error) {
	return nil, fmt.Errorf("i2c bus %d: not supported on this platform", bus)
}

func (d *linuxI2C) Close() error                    { return nil }
func (d *linuxI2C) Tx(addr uint16, w, r []byte) error { return fmt.Errorf("i2c: not supported on this platform") }
