//go:build linux

package main

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux i2c-dev ioctl constants (linux/i2c.h, linux/i2c-dev.h). Not
// exposed by golang.org/x/sys/unix, which only carries the generic
// ioctl plumbing.
const (
	i2cRDWR     = 0x0707
	i2cMRD      = 0x0001
	i2cSlaveAck = 0x0706
)

type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	pad   uint16
	buf   uintptr
}

type i2cRdwrIoctlData struct {
	msgs  uintptr
	nmsgs uint32
}

// linuxI2C implements dispatch-facing drivers.I2C over a Linux i2c-dev
// character device, combining a write and a read into one I2C_RDWR
// ioctl so the bus is never released between them — the repeated-start
// transaction drivers/aht20 requires.
type linuxI2C struct {
	f *os.File
}

// openLinuxI2C opens /dev/i2c-<bus>. The caller still supplies the
// target address on every Tx call, so one handle can be shared by
// several devices on the same bus.
func openLinuxI2C(bus int) (*linuxI2C, error) {
	f, err := os.OpenFile(fmt.Sprintf("/dev/i2c-%d", bus), os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %d: %w", bus, err)
	}
	return &linuxI2C{f: f}, nil
}

func (d *linuxI2C) Close() error { return d.f.Close() }

// Tx performs w (if non-empty) followed by r (if non-empty) as a single
// combined transaction when both are given, matching the semantics
// drivers.I2C implementations are expected to provide.
func (d *linuxI2C) Tx(addr uint16, w, r []byte) error {
	var msgs []i2cMsg
	if len(w) > 0 {
		msgs = append(msgs, i2cMsg{addr: addr, len: uint16(len(w)), buf: uintptr(unsafe.Pointer(&w[0]))})
	}
	if len(r) > 0 {
		msgs = append(msgs, i2cMsg{addr: addr, flags: i2cMRD, len: uint16(len(r)), buf: uintptr(unsafe.Pointer(&r[0]))})
	}
	if len(msgs) == 0 {
		return nil
	}

	data := i2cRdwrIoctlData{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: uint32(len(msgs))}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), uintptr(i2cRDWR), uintptr(unsafe.Pointer(&data)))
	if errno != 0 {
		return fmt.Errorf("i2c transaction to 0x%02x: %w", addr, errno)
	}
	return nil
}
