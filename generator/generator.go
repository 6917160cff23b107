/*Package generator produces and verifies the data patterns of the on-card
data generator.

The readout card's generator fills every DMA page with a predictable word
sequence so the data path can be validated end to end.  This package is
the host-side twin: the simulated card uses Fill to produce what real
firmware would, and readout tools use Verify on popped superpages to catch
corruption (including corruption deliberately caused by InjectError).

Each filled buffer ends in a four byte trailer carrying a CRC-32 over the
payload words.
*/
package generator

import (
	"encoding/binary"
	"fmt"

	"github.com/snksoft/crc"

	"github.com/daqline/readoutcard/roc"
)

// TrailerSize is the number of bytes at the end of a filled buffer occupied
// by the CRC trailer.
const TrailerSize = 4

// WordSize is the generator's word granularity in bytes.
const WordSize = 4

var crcTable = crc.NewTable(crc.CRC32)

// checksum computes the four-byte trailer value in one line
func checksum(payload []byte) uint32 {
	crcUint := crcTable.InitCrc()
	crcUint = crcTable.UpdateCrc(crcUint, payload)
	return crcTable.CRC32(crcUint)
}

// Fill writes the given pattern into buf, leaving a CRC trailer in the
// final word.  buf must hold at least two words and a whole number of them.
func Fill(buf []byte, pattern roc.GeneratorPattern, seed uint32) error {
	if len(buf)%WordSize != 0 || len(buf) < 2*WordSize {
		return fmt.Errorf("generator: buffer length %d is not a multiple of %d words", len(buf), 2)
	}
	payload := buf[: len(buf)-TrailerSize : len(buf)-TrailerSize]
	for i := 0; i < len(payload); i += WordSize {
		var w uint32
		switch pattern {
		case roc.PatternIncremental:
			w = seed + uint32(i/WordSize)
		case roc.PatternAlternating:
			if (i/WordSize)%2 == 0 {
				w = 0xAAAAAAAA
			} else {
				w = 0x55555555
			}
		case roc.PatternConstant:
			w = seed
		default:
			return fmt.Errorf("generator: unknown pattern %d", pattern)
		}
		binary.LittleEndian.PutUint32(payload[i:], w)
	}
	binary.LittleEndian.PutUint32(buf[len(buf)-TrailerSize:], checksum(payload))
	return nil
}

// Verify recomputes the CRC of a filled buffer and compares it against the
// trailer.  The error is non-nil if the buffer is malformed or the
// checksums disagree.
func Verify(buf []byte) error {
	if len(buf)%WordSize != 0 || len(buf) < 2*WordSize {
		return fmt.Errorf("generator: buffer length %d is not a multiple of %d words", len(buf), 2)
	}
	payload := buf[:len(buf)-TrailerSize]
	want := binary.LittleEndian.Uint32(buf[len(buf)-TrailerSize:])
	got := checksum(payload)
	if got != want {
		return fmt.Errorf("generator: checksum mismatch, trailer %08x computed %08x", want, got)
	}
	return nil
}
