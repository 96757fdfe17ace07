package hub

// Event codes on the control characteristic. The first byte of every
// control notification identifies the event.
const (
	// EventStatusReport carries the hub status flag word.
	EventStatusReport byte = 0
)

// StatusFlags is the hub status bitset. Each status notification
// replaces the whole value; consumers observe transitions only.
type StatusFlags uint32

// Status flag bits.
const (
	FlagBatteryLowWarning  StatusFlags = 1 << 0
	FlagBatteryLowShutdown StatusFlags = 1 << 1
	FlagHighCurrent        StatusFlags = 1 << 2
	FlagBLEAdvertising     StatusFlags = 1 << 3
	FlagBLELowSignal       StatusFlags = 1 << 4
	FlagPowerButtonPressed StatusFlags = 1 << 5
	FlagProgramRunning     StatusFlags = 1 << 6
)

// ProgramRunning reports the user-program bit.
func (f StatusFlags) ProgramRunning() bool {
	return f&FlagProgramRunning != 0
}

// Hub kinds, as reported by the device PnP id.
const (
	// KindMoveHub is the most MTU-constrained variant; uploads to it
	// use 20-byte chunks.
	KindMoveHub byte = 0x40
	KindCityHub byte = 0x41
	KindTechHub byte = 0x80
)
