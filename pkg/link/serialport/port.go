// Package serialport adapts go.bug.st/serial ports to the link.SerialPort
// boundary used by the REPL session.
package serialport

import (
	"time"

	"go.bug.st/serial"

	"github.com/brickworks/hublink.go/pkg/link"
)

// Port wraps a serial.Port as a link.SerialPort.
type Port struct {
	port serial.Port
}

var _ link.SerialPort = (*Port)(nil)

// Mode is the default port configuration for hub consoles.
var Mode = &serial.Mode{
	BaudRate: 115200,
	DataBits: 8,
	Parity:   serial.NoParity,
	StopBits: serial.OneStopBit,
}

// Open opens a port by name with the default mode.
func Open(name string) (*Port, error) {
	p, err := serial.Open(name, Mode)
	if err != nil {
		return nil, err
	}
	// Reads must return immediately with whatever is buffered so the
	// REPL automaton can poll without blocking.
	if err := p.SetReadTimeout(time.Millisecond); err != nil {
		p.Close()
		return nil, err
	}
	return &Port{port: p}, nil
}

// List returns the names of serial ports present on the system.
func List() ([]string, error) {
	return serial.GetPortsList()
}

// Write implements link.SerialPort.
func (p *Port) Write(data []byte) (int, error) {
	return p.port.Write(data)
}

// ReadAvailable implements link.SerialPort.
func (p *Port) ReadAvailable() ([]byte, error) {
	buf := make([]byte, 1024)
	n, err := p.port.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Close implements link.SerialPort.
func (p *Port) Close() error {
	return p.port.Close()
}

// Drain discards whatever input is currently buffered.
func (p *Port) Drain() error {
	return p.port.ResetInputBuffer()
}
