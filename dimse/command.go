// Package dimse implements the DICOM Message Service Element layer: the
// command set codec (PS3.7 §9/§10), DIMSE-C/N client calls, and server-side
// command dispatch. It sits on top of assoc, which already reassembles PDVs
// into complete command/dataset byte streams, so dimse deals only in
// complete messages.
package dimse

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/dicomkit/ulp/types"
)

// Command set element tags (group 0000), PS3.7 §E.1.
const (
	tagGroupLength                    = 0x0000
	tagAffectedSOPClassUID            = 0x0002
	tagRequestedSOPClassUID           = 0x0003
	tagCommandField                   = 0x0100
	tagMessageID                      = 0x0110
	tagMessageIDBeingRespondedTo      = 0x0120
	tagMoveDestination                = 0x0600
	tagPriority                       = 0x0700
	tagCommandDataSetType             = 0x0800
	tagStatus                         = 0x0900
	tagEventTypeID                    = 0x1002
	tagAffectedSOPInstanceUID         = 0x1000
	tagRequestedSOPInstanceUID        = 0x1001
	tagActionTypeID                   = 0x1008
	tagNumberOfRemainingSuboperations = 0x1020
	tagNumberOfCompletedSuboperations = 0x1021
	tagNumberOfFailedSuboperations    = 0x1022
	tagNumberOfWarningSuboperations   = 0x1023
)

// NoDataSetPresent is the CommandDataSetType value meaning the message
// carries no dataset (PS3.7 §9.3.1).
const NoDataSetPresent = 0x0101

// EncodeCommand serializes msg into a DIMSE command set using Implicit VR
// Little Endian, the required encoding for command sets per PS3.7 §9.1.
func EncodeCommand(msg *types.Message) []byte {
	var elements []byte

	if msg.AffectedSOPClassUID != "" {
		elements = appendUIDElement(elements, tagAffectedSOPClassUID, msg.AffectedSOPClassUID)
	}
	if msg.RequestedSOPClassUID != "" {
		elements = appendUIDElement(elements, tagRequestedSOPClassUID, msg.RequestedSOPClassUID)
	}

	elements = appendUint16Element(elements, tagCommandField, msg.CommandField)

	if msg.MessageID != 0 {
		elements = appendUint16Element(elements, tagMessageID, msg.MessageID)
	}
	if msg.MessageIDBeingRespondedTo != 0 {
		elements = appendUint16Element(elements, tagMessageIDBeingRespondedTo, msg.MessageIDBeingRespondedTo)
	}
	if msg.MoveDestination != "" {
		elements = appendUIDElement(elements, tagMoveDestination, msg.MoveDestination)
	}

	// Priority is only meaningful on requests; responses omit it, matching
	// how the teacher only set it on outbound requests.
	isResponse := msg.CommandField&0x8000 != 0
	if !isResponse {
		elements = appendUint16Element(elements, tagPriority, msg.Priority)
	}

	elements = appendUint16Element(elements, tagCommandDataSetType, msg.CommandDataSetType)

	if isResponse {
		elements = appendUint16Element(elements, tagStatus, msg.Status)
	}

	if msg.AffectedSOPInstanceUID != "" {
		elements = appendUIDElement(elements, tagAffectedSOPInstanceUID, msg.AffectedSOPInstanceUID)
	}
	if msg.RequestedSOPInstanceUID != "" {
		elements = appendUIDElement(elements, tagRequestedSOPInstanceUID, msg.RequestedSOPInstanceUID)
	}
	if msg.EventTypeID != nil {
		elements = appendUint16Element(elements, tagEventTypeID, *msg.EventTypeID)
	}
	if msg.ActionTypeID != nil {
		elements = appendUint16Element(elements, tagActionTypeID, *msg.ActionTypeID)
	}

	if msg.NumberOfRemainingSuboperations != nil {
		elements = appendUint16Element(elements, tagNumberOfRemainingSuboperations, *msg.NumberOfRemainingSuboperations)
	}
	if msg.NumberOfCompletedSuboperations != nil {
		elements = appendUint16Element(elements, tagNumberOfCompletedSuboperations, *msg.NumberOfCompletedSuboperations)
	}
	if msg.NumberOfFailedSuboperations != nil {
		elements = appendUint16Element(elements, tagNumberOfFailedSuboperations, *msg.NumberOfFailedSuboperations)
	}
	if msg.NumberOfWarningSuboperations != nil {
		elements = appendUint16Element(elements, tagNumberOfWarningSuboperations, *msg.NumberOfWarningSuboperations)
	}

	groupLength := make([]byte, 4)
	binary.LittleEndian.PutUint32(groupLength, uint32(len(elements)))

	out := make([]byte, 0, len(elements)+12)
	out = appendElementHeader(out, tagGroupLength, 4)
	out = append(out, groupLength...)
	out = append(out, elements...)
	return out
}

// DecodeCommand parses a DIMSE command set encoded in Implicit VR Little
// Endian. Unrecognized group-0000 elements are skipped, and any non-command
// group (data already past the command set) stops parsing.
func DecodeCommand(data []byte) (*types.Message, error) {
	msg := &types.Message{CommandDataSetType: NoDataSetPresent}

	offset := 0
	for offset+8 <= len(data) {
		group := binary.LittleEndian.Uint16(data[offset : offset+2])
		element := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		length := binary.LittleEndian.Uint32(data[offset+4 : offset+8])

		if group != 0x0000 {
			break
		}
		if offset+8+int(length) > len(data) {
			return nil, fmt.Errorf("dimse: command element (0000,%04x) length %d exceeds remaining data", element, length)
		}
		value := data[offset+8 : offset+8+int(length)]

		switch element {
		case tagAffectedSOPClassUID:
			msg.AffectedSOPClassUID = trimUID(value)
		case tagRequestedSOPClassUID:
			msg.RequestedSOPClassUID = trimUID(value)
		case tagCommandField:
			msg.CommandField = mustUint16(value)
		case tagMessageID:
			msg.MessageID = mustUint16(value)
		case tagMessageIDBeingRespondedTo:
			msg.MessageIDBeingRespondedTo = mustUint16(value)
		case tagMoveDestination:
			msg.MoveDestination = trimUID(value)
		case tagPriority:
			msg.Priority = mustUint16(value)
		case tagCommandDataSetType:
			msg.CommandDataSetType = mustUint16(value)
		case tagStatus:
			msg.Status = mustUint16(value)
		case tagAffectedSOPInstanceUID:
			msg.AffectedSOPInstanceUID = trimUID(value)
		case tagRequestedSOPInstanceUID:
			msg.RequestedSOPInstanceUID = trimUID(value)
		case tagEventTypeID:
			msg.EventTypeID = uint16Ptr(value)
		case tagActionTypeID:
			msg.ActionTypeID = uint16Ptr(value)
		case tagNumberOfRemainingSuboperations:
			msg.NumberOfRemainingSuboperations = uint16Ptr(value)
		case tagNumberOfCompletedSuboperations:
			msg.NumberOfCompletedSuboperations = uint16Ptr(value)
		case tagNumberOfFailedSuboperations:
			msg.NumberOfFailedSuboperations = uint16Ptr(value)
		case tagNumberOfWarningSuboperations:
			msg.NumberOfWarningSuboperations = uint16Ptr(value)
		}

		offset += 8 + int(length)
	}

	return msg, nil
}

func appendElementHeader(buf []byte, tag uint16, length uint32) []byte {
	buf = append(buf, byte(tagGroupOf(tag)), byte(tagGroupOf(tag)>>8))
	buf = append(buf, byte(tag), byte(tag>>8))
	lengthBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(lengthBytes, length)
	return append(buf, lengthBytes...)
}

// tagGroupOf always returns 0 since every command-set tag dimse encodes is
// in group 0000; kept as a named helper for readability at call sites.
func tagGroupOf(uint16) uint16 { return 0x0000 }

func appendUint16Element(buf []byte, tag uint16, value uint16) []byte {
	buf = appendElementHeader(buf, tag, 2)
	valueBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(valueBytes, value)
	return append(buf, valueBytes...)
}

func appendUIDElement(buf []byte, tag uint16, uid string) []byte {
	value := []byte(uid)
	if len(value)%2 == 1 {
		value = append(value, 0x00)
	}
	buf = appendElementHeader(buf, tag, uint32(len(value)))
	return append(buf, value...)
}

func trimUID(value []byte) string {
	s := string(value)
	if idx := strings.IndexByte(s, 0); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func mustUint16(value []byte) uint16 {
	if len(value) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(value[:2])
}

func uint16Ptr(value []byte) *uint16 {
	v := mustUint16(value)
	return &v
}
