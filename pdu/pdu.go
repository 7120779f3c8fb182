// Package pdu implements the DICOM Upper Layer Protocol Data Unit codec
// (PS3.8 §9.3): pure encode/decode functions for the six PDU types, with no
// I/O or association-state awareness of their own. Connection handling and
// negotiation live in the assoc package; this package only turns bytes into
// structs and back.
package pdu

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dicomkit/ulp/ulperrors"
)

// PDU type codes (PS3.8 Table 9-17 and friends).
const (
	TypeAssociateRQ byte = 0x01
	TypeAssociateAC byte = 0x02
	TypeAssociateRJ byte = 0x03
	TypePDataTF     byte = 0x04
	TypeReleaseRQ   byte = 0x05
	TypeReleaseRP   byte = 0x06
	TypeAbort       byte = 0x07
)

// Item and sub-item type codes used inside the variable portion of
// A-ASSOCIATE-RQ/AC (PS3.8 Table 9-12 and following).
const (
	itemApplicationContext        byte = 0x10
	itemPresentationContextRQ     byte = 0x20
	itemPresentationContextAC     byte = 0x21
	itemAbstractSyntax            byte = 0x30
	itemTransferSyntax            byte = 0x40
	itemUserInformation           byte = 0x50
	itemMaxPDULength              byte = 0x51
	itemImplementationClassUID    byte = 0x52
	itemImplementationVersionName byte = 0x55
	itemUserIdentityRQ            byte = 0x58
	itemUserIdentityAC            byte = 0x59
)

// Header is the common 6-byte PDU header: 1-byte type, 1 reserved byte, and
// a 4-byte big-endian length of what follows.
type Header struct {
	Type   byte
	Length uint32
}

// ReadHeaderAndBody reads one complete PDU (header + body) from r.
func ReadHeaderAndBody(r io.Reader) (Header, []byte, error) {
	raw := make([]byte, 6)
	if _, err := io.ReadFull(r, raw); err != nil {
		return Header{}, nil, err
	}
	h := Header{Type: raw[0], Length: binary.BigEndian.Uint32(raw[2:6])}
	body := make([]byte, h.Length)
	if h.Length > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return Header{}, nil, fmt.Errorf("read PDU body (type 0x%02x): %w", h.Type, err)
		}
	}
	return h, body, nil
}

// WriteHeaderAndBody writes one complete PDU (header + body) to w.
func WriteHeaderAndBody(w io.Writer, pduType byte, body []byte) error {
	header := make([]byte, 6)
	header[0] = pduType
	binary.BigEndian.PutUint32(header[2:6], uint32(len(body)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	return nil
}

func putItem(buf []byte, itemType byte, value []byte) []byte {
	buf = append(buf, itemType, 0x00)
	lenBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBytes, uint16(len(value)))
	buf = append(buf, lenBytes...)
	return append(buf, value...)
}

// item is one parsed type-length-value entry from a PDU's variable portion.
type item struct {
	Type  byte
	Value []byte
}

func parseItems(data []byte) ([]item, error) {
	var items []item
	offset := 0
	for offset+4 <= len(data) {
		itemType := data[offset]
		length := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		start := offset + 4
		end := start + int(length)
		if end > len(data) {
			return nil, fmt.Errorf("%w: item 0x%02x exceeds enclosing length", ulperrors.ErrInvalidPDU, itemType)
		}
		items = append(items, item{Type: itemType, Value: data[start:end]})
		offset = end
	}
	if offset != len(data) {
		return nil, fmt.Errorf("%w: trailing bytes after last item", ulperrors.ErrInvalidPDU)
	}
	return items, nil
}
