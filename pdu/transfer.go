package pdu

import (
	"encoding/binary"
	"fmt"

	"github.com/dicomkit/ulp/ulperrors"
)

// Message control header bits of a PDV (PS3.8 §9.3.1.1).
const (
	MsgHeaderCommand byte = 0x01 // bit 0: 1 = command, 0 = dataset
	MsgHeaderLast    byte = 0x02 // bit 1: 1 = last fragment of this message
)

// PresentationDataValue is one PDV item inside a P-DATA-TF PDU: a
// presentation-context-ID byte, a one-byte message control header, and the
// command or dataset fragment itself.
type PresentationDataValue struct {
	PresentationContextID byte
	MessageControlHeader  byte
	Data                  []byte
}

// IsCommand reports whether this PDV carries command-set bytes rather than
// dataset bytes.
func (p PresentationDataValue) IsCommand() bool {
	return p.MessageControlHeader&MsgHeaderCommand != 0
}

// IsLast reports whether this PDV is the last fragment of its message.
func (p PresentationDataValue) IsLast() bool {
	return p.MessageControlHeader&MsgHeaderLast != 0
}

// EncodePDataTF serializes one or more PDVs into the body of a P-DATA-TF PDU.
func EncodePDataTF(pdvs []PresentationDataValue) []byte {
	var buf []byte
	for _, pdv := range pdvs {
		item := append([]byte{pdv.PresentationContextID, pdv.MessageControlHeader}, pdv.Data...)
		lenBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBytes, uint32(len(item)))
		buf = append(buf, lenBytes...)
		buf = append(buf, item...)
	}
	return buf
}

// DecodePDataTF parses the body of a P-DATA-TF PDU into its PDVs.
func DecodePDataTF(data []byte) ([]PresentationDataValue, error) {
	var pdvs []PresentationDataValue
	offset := 0
	for offset+4 <= len(data) {
		pdvLength := binary.BigEndian.Uint32(data[offset : offset+4])
		start := offset + 4
		end := start + int(pdvLength)
		if end > len(data) {
			return nil, fmt.Errorf("%w: PDV length %d exceeds P-DATA-TF body", ulperrors.ErrInvalidPDU, pdvLength)
		}
		if pdvLength < 2 {
			return nil, fmt.Errorf("%w: PDV shorter than its own header", ulperrors.ErrInvalidPDU)
		}
		pdvs = append(pdvs, PresentationDataValue{
			PresentationContextID: data[start],
			MessageControlHeader:  data[start+1],
			Data:                  data[start+2 : end],
		})
		offset = end
	}
	if offset != len(data) {
		return nil, fmt.Errorf("%w: trailing bytes after last PDV", ulperrors.ErrInvalidPDU)
	}
	return pdvs, nil
}

// MaxPDVPayload returns the largest dataset/command fragment size (in
// bytes) that fits inside one P-DATA-TF PDU no larger than maxPDULength,
// accounting for the 6-byte PDU header, the 4-byte PDV length, and the
// 2-byte PDV header. A maxPDULength of 0 (unlimited, PS3.8 Note on Annex D)
// is reported as 0, meaning "no fragmentation limit".
func MaxPDVPayload(maxPDULength uint32) int {
	if maxPDULength == 0 {
		return 0
	}
	overhead := 6 + 4 + 2
	if int(maxPDULength) <= overhead {
		return 1
	}
	return int(maxPDULength) - overhead
}
