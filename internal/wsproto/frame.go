package wsproto

import (
	"encoding/binary"
	"errors"

	"github.com/momentics/webterm/internal/ksys"
)

const (
	opcodeBinary = 0x2
	opcodeClose  = 0x8
)

var (
	// ErrShort indicates the input does not yet contain a complete frame.
	ErrShort = errors.New("short")
	// ErrClientNotMasked indicates an inbound data frame without the
	// client mask bit set — a protocol violation: RFC 6455 requires every
	// client-to-server frame to be masked.
	ErrClientNotMasked = errors.New("client not masked")
	// ErrClose indicates the parsed frame was a close frame (opcode 0x8).
	ErrClose = errors.New("close")
)

// WriteBinaryFrame emits exactly one unmasked, final, binary-opcode frame
// carrying payload. Header and payload are sent with two sequential
// send_all calls.
func WriteBinaryFrame(fd int, payload []byte) error {
	var hdr [10]byte
	n := len(payload)

	var headerLen int
	switch {
	case n < 126:
		hdr[0] = 0x80 | opcodeBinary
		hdr[1] = byte(n)
		headerLen = 2
	case n <= 0xFFFF:
		hdr[0] = 0x80 | opcodeBinary
		hdr[1] = 126
		binary.BigEndian.PutUint16(hdr[2:4], uint16(n))
		headerLen = 4
	default:
		hdr[0] = 0x80 | opcodeBinary
		hdr[1] = 127
		binary.BigEndian.PutUint64(hdr[2:10], uint64(n))
		headerLen = 10
	}

	if err := ksys.SendAll(fd, hdr[:headerLen]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	return ksys.SendAll(fd, payload)
}

// ParseAndUnmaskFrame parses the first frame present in input, unmasking
// its payload into out (which must be large enough), and returns the
// borrowed slice out[:len]:
//   - fewer than 2 bytes present: ErrShort
//   - MASK bit clear: ErrClientNotMasked
//   - incomplete extended length / mask key / payload: ErrShort
//   - opcode == 0x8 (close), after unmasking: ErrClose
//   - otherwise: the unmasked payload and a nil error
func ParseAndUnmaskFrame(input []byte, out []byte) ([]byte, error) {
	if len(input) < 2 {
		return nil, ErrShort
	}

	opcode := input[0] & 0x0F
	masked := input[1]&0x80 != 0
	length := int64(input[1] & 0x7F)
	offset := 2

	if !masked {
		return nil, ErrClientNotMasked
	}

	switch length {
	case 126:
		if len(input) < offset+2 {
			return nil, ErrShort
		}
		length = int64(binary.BigEndian.Uint16(input[offset:]))
		offset += 2
	case 127:
		if len(input) < offset+8 {
			return nil, ErrShort
		}
		length = int64(binary.BigEndian.Uint64(input[offset:]))
		offset += 8
	}

	if len(input) < offset+4 {
		return nil, ErrShort
	}
	var key [4]byte
	copy(key[:], input[offset:offset+4])
	offset += 4

	if int64(len(input)-offset) < length {
		return nil, ErrShort
	}
	if int64(len(out)) < length {
		return nil, ErrShort
	}

	payload := input[offset : int64(offset)+length]
	for i := int64(0); i < length; i++ {
		out[i] = payload[i] ^ key[i%4]
	}

	if opcode == opcodeClose {
		return nil, ErrClose
	}
	return out[:length], nil
}
