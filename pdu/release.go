package pdu

import (
	"fmt"

	"github.com/dicomkit/ulp/ulperrors"
)

// EncodeReleaseRQ returns the 4-byte reserved body of an A-RELEASE-RQ PDU.
func EncodeReleaseRQ() []byte { return make([]byte, 4) }

// EncodeReleaseRP returns the 4-byte reserved body of an A-RELEASE-RP PDU.
func EncodeReleaseRP() []byte { return make([]byte, 4) }

// DecodeRelease validates the reserved body of an A-RELEASE-RQ/RP PDU.
func DecodeRelease(data []byte) error {
	if len(data) != 4 {
		return fmt.Errorf("%w: A-RELEASE body must be 4 bytes, got %d", ulperrors.ErrInvalidPDU, len(data))
	}
	return nil
}

// Abort is the decoded form of an A-ABORT PDU (PS3.8 §9.3.8).
type Abort struct {
	Source byte // 0 = service-user, 2 = service-provider
	Reason byte
}

// A-ABORT source/reason codes (PS3.8 Table 9-26).
const (
	AbortSourceServiceUser     byte = 0x00
	AbortSourceServiceProvider byte = 0x02

	AbortReasonNotSpecified             byte = 0x00
	AbortReasonUnrecognizedPDU          byte = 0x01
	AbortReasonUnexpectedPDU            byte = 0x02
	AbortReasonUnrecognizedPDUParameter byte = 0x04
	AbortReasonUnexpectedPDUParameter   byte = 0x05
	AbortReasonInvalidPDUParameterValue byte = 0x06
)

// EncodeAbort serializes a into the body of an A-ABORT PDU.
func EncodeAbort(a Abort) []byte {
	return []byte{0x00, 0x00, a.Source, a.Reason}
}

// DecodeAbort parses the body of an A-ABORT PDU.
func DecodeAbort(data []byte) (Abort, error) {
	if len(data) != 4 {
		return Abort{}, fmt.Errorf("%w: A-ABORT body must be 4 bytes, got %d", ulperrors.ErrInvalidPDU, len(data))
	}
	return Abort{Source: data[2], Reason: data[3]}, nil
}
