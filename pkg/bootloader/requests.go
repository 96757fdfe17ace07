// Package bootloader speaks the single-byte-command request/reply
// protocol of the hub bootloader and drives full firmware flashes.
package bootloader

import (
	"encoding/binary"
)

// Command bytes.
const (
	CmdEraseFlash    byte = 0x11
	CmdProgramFlash  byte = 0x22
	CmdStartApp      byte = 0x33
	CmdInitLoader    byte = 0x44
	CmdGetInfo       byte = 0x55
	CmdGetChecksum   byte = 0x66
	CmdGetFlashState byte = 0x77
	CmdDisconnect    byte = 0x88
)

// Request is one entry of the static command table: the command byte
// and the fixed shape of its reply. ReplyLen counts the echoed command
// byte; zero means the command produces no reply at all.
type Request struct {
	Command  byte
	Name     string
	ReplyLen int
}

// The static request table. PROGRAM_FLASH and PROGRAM_FLASH_BARE share
// a command byte; the bare variant asks the device not to reply.
var (
	EraseFlash       = Request{CmdEraseFlash, "Erase", 2}
	ProgramFlashBare = Request{CmdProgramFlash, "Flash", 0}
	ProgramFlash     = Request{CmdProgramFlash, "Flash", 6}
	StartApp         = Request{CmdStartApp, "Start", 1}
	InitLoader       = Request{CmdInitLoader, "Init", 2}
	GetInfo          = Request{CmdGetInfo, "Info", 14}
	GetChecksum      = Request{CmdGetChecksum, "Checksum", 2}
	GetFlashState    = Request{CmdGetFlashState, "State", 2}
	Disconnect       = Request{CmdDisconnect, "Disconnect", 1}
)

// InfoReply is the decoded GET_INFO reply.
type InfoReply struct {
	Version   int32
	StartAddr uint32
	EndAddr   uint32
	TypeID    byte
}

func decodeInfo(payload []byte) InfoReply {
	return InfoReply{
		Version:   int32(binary.LittleEndian.Uint32(payload)),
		StartAddr: binary.LittleEndian.Uint32(payload[4:]),
		EndAddr:   binary.LittleEndian.Uint32(payload[8:]),
		TypeID:    payload[12],
	}
}

// FlashReply is the decoded confirmed PROGRAM_FLASH reply.
type FlashReply struct {
	Checksum byte
	Count    uint32
}

func decodeFlash(payload []byte) FlashReply {
	return FlashReply{
		Checksum: payload[0],
		Count:    binary.LittleEndian.Uint32(payload[1:]),
	}
}

// HubNames maps device type ids to their product names, for
// diagnostics on a device mismatch.
var HubNames = map[byte]string{
	0x40: "Move Hub",
	0x41: "City Hub",
	0x80: "Control+ Hub",
}

// HubName returns a printable name for a device type id.
func HubName(id byte) string {
	if name, ok := HubNames[id]; ok {
		return name
	}
	return "unknown hub"
}
