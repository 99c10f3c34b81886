// Package ioctl encodes and issues Linux ioctl requests.
package ioctl

import (
	"fmt"
	"reflect"

	"golang.org/x/sys/unix"
)

// Mode is the IOCTL mode.
type Mode uint8

// Modes
const (
	None  Mode = iota
	Write      // _IOC_WRITE
	Read       // _IOC_READ
	ReadWrite  = Write | Read
)

// Command to be sent over ioctl.
type Command uintptr

// Mode returns the direction bits of the command.
func (c Command) Mode() Mode {
	return Mode(c >> 30 & 0x03)
}

// Size returns the argument size encoded in the command.
func (c Command) Size() uint16 {
	return uint16(c >> 16 & 0x3fff)
}

func (c Command) String() string {
	var (
		mode = c.Mode()
		cmd  = c & 0xffff
		str  string
	)
	if mode&Write > 0 {
		str += " write"
	}
	if mode&Read > 0 {
		str += " read"
	}
	return fmt.Sprintf("ioctl%s (%d bytes) 0x%04x", str, c.Size(), uintptr(cmd))
}

// Do executes the ioctl call with ptr as argument. ptr must be a pointer or nil.
func Do(fd uintptr, command Command, ptr interface{}) error {
	var p uintptr

	if ptr != nil {
		v := reflect.ValueOf(ptr)
		if v.Kind() != reflect.Pointer {
			return fmt.Errorf("ioctl %s: argument is %T, not a pointer", command, ptr)
		}
		p = v.Pointer()
	}

	return Call(fd, uintptr(command), p)
}

// Call does a plain ioctl system call.
func Call(fd, command, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, command, arg)
	if errno != 0 {
		return fmt.Errorf("ioctl %s failed: %w", Command(command), errno)
	}
	return nil
}

// Encode an ioctl command from its direction, argument size, type and number.
func Encode(mode Mode, size uint16, typ byte, nr byte) Command {
	return Command(mode)<<30 | Command(size&0x3fff)<<16 | Command(typ)<<8 | Command(nr)
}

// Pointer encodes a command whose argument is the value ref points to.
func Pointer(mode Mode, ref interface{}, typ byte, nr byte) Command {
	size := uint16(reflect.TypeOf(ref).Elem().Size())
	return Encode(mode, size, typ, nr)
}
