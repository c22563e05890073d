package shamir

import (
	"encoding/binary"
	"fmt"

	"github.com/heirvault/escrow-backend/interfaces"
)

// Binary share layout: [index][threshold][commitment(32)][length(2, BE)][data].
// This is what gets envelope-encrypted per trustee and what recovery kits
// password-wrap, so a decrypted share is self-describing.
const shareHeaderSize = 1 + 1 + 32 + 2

// MarshalBinary serializes the share.
func (s Share) MarshalBinary() ([]byte, error) {
	if s.Index < 1 || s.Index > interfaces.MaxTrustees {
		return nil, fmt.Errorf("%w: share index %d out of range", interfaces.ErrInvalidInput, s.Index)
	}
	if len(s.Data) > 0xFFFF {
		return nil, fmt.Errorf("%w: share data too long", interfaces.ErrInvalidInput)
	}

	buf := make([]byte, shareHeaderSize+len(s.Data))
	buf[0] = byte(s.Index)
	buf[1] = byte(s.Threshold)
	copy(buf[2:34], s.Commitment[:])
	binary.BigEndian.PutUint16(buf[34:36], uint16(len(s.Data)))
	copy(buf[shareHeaderSize:], s.Data)
	return buf, nil
}

// UnmarshalBinary parses a share serialized with MarshalBinary.
func (s *Share) UnmarshalBinary(data []byte) error {
	if len(data) < shareHeaderSize {
		return fmt.Errorf("%w: share blob too short", interfaces.ErrInvalidInput)
	}

	index := int(data[0])
	if index < 1 || index > interfaces.MaxTrustees {
		return fmt.Errorf("%w: share index %d out of range", interfaces.ErrInvalidInput, index)
	}

	length := int(binary.BigEndian.Uint16(data[34:36]))
	if len(data) != shareHeaderSize+length {
		return fmt.Errorf("%w: share blob truncated", interfaces.ErrInvalidInput)
	}

	s.Index = index
	s.Threshold = int(data[1])
	copy(s.Commitment[:], data[2:34])
	s.Data = append([]byte(nil), data[shareHeaderSize:]...)
	return nil
}
