// Package firmware lays out composite firmware images and computes
// their integrity checksum.
package firmware

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/brickworks/hublink.go/pkg/link"
)

// Checksum algorithm tags.
const (
	ChecksumSum = "sum"
)

// Metadata describes the target device's firmware layout. It comes
// from the firmware package and is read-only here.
type Metadata struct {
	// DeviceID is the hub type id the image targets.
	DeviceID byte
	// MaxSize is the maximum firmware size in bytes, including the
	// trailing checksum word.
	MaxSize int
	// ProgramOffset is where the size-prefixed program blob is
	// inserted.
	ProgramOffset int
	// ChecksumType selects the checksum algorithm.
	ChecksumType string
}

// SumComplement computes the correction that makes the word-wise sum of
// the buffer zero modulo 2^32. Words are 32-bit little-endian; the
// unfilled region up to maxSize is treated as all-ones words, which is
// what erased flash reads as.
func SumComplement(fw io.Reader, maxSize int) (uint32, error) {
	var checksum uint32
	size := 0

	word := make([]byte, 4)
	for {
		_, err := io.ReadFull(fw, word)
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		checksum += binary.LittleEndian.Uint32(word)
		size += 4
	}

	if size > maxSize {
		return 0, &link.SizeError{Size: size, Max: maxSize}
	}

	for i := size; i < maxSize; i += 4 {
		checksum += 0xffffffff
	}

	if checksum == 0 {
		return 0, nil
	}
	return -checksum, nil
}

// Build assembles the flashable image: base firmware, zero padding to
// the program offset, 4-byte little-endian program length, the program
// blob, zero padding to 4-byte alignment and the 4-byte little-endian
// checksum correction. The result's word-sum over the full flash range
// is zero, which is the invariant the bootloader re-checks.
func Build(base, program []byte, meta Metadata) ([]byte, error) {
	if len(base) > meta.ProgramOffset {
		return nil, fmt.Errorf("base firmware overruns program offset: %d > %d", len(base), meta.ProgramOffset)
	}

	image := make([]byte, 0, meta.ProgramOffset+8+len(program))
	image = append(image, base...)
	image = append(image, make([]byte, meta.ProgramOffset-len(image))...)
	image = binary.LittleEndian.AppendUint32(image, uint32(len(program)))
	image = append(image, program...)
	if pad := -len(image) & 3; pad > 0 {
		image = append(image, make([]byte, pad)...)
	}

	if meta.ChecksumType != ChecksumSum {
		return nil, fmt.Errorf("unknown checksum type %q", meta.ChecksumType)
	}

	// The final word is the checksum itself, so it is excluded from
	// the sum range.
	correction, err := SumComplement(bytes.NewReader(image), meta.MaxSize-4)
	if err != nil {
		return nil, err
	}
	image = binary.LittleEndian.AppendUint32(image, correction)
	return image, nil
}
