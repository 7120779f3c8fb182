package dimse

import (
	"testing"

	"github.com/dicomkit/ulp/types"
)

func TestEncodeDecodeCommandRoundTrip(t *testing.T) {
	remaining := uint16(3)
	completed := uint16(1)

	original := &types.Message{
		CommandField:                   types.CMoveRSP,
		MessageIDBeingRespondedTo:      7,
		AffectedSOPClassUID:            types.StudyRootQueryRetrieveInformationModelMove,
		CommandDataSetType:             NoDataSetPresent,
		Status:                         types.StatusPending,
		NumberOfRemainingSuboperations: &remaining,
		NumberOfCompletedSuboperations: &completed,
	}

	encoded := EncodeCommand(original)
	decoded, err := DecodeCommand(encoded)
	if err != nil {
		t.Fatalf("DecodeCommand: %v", err)
	}

	if decoded.CommandField != original.CommandField {
		t.Errorf("CommandField = 0x%04x, want 0x%04x", decoded.CommandField, original.CommandField)
	}
	if decoded.MessageIDBeingRespondedTo != original.MessageIDBeingRespondedTo {
		t.Errorf("MessageIDBeingRespondedTo = %d, want %d", decoded.MessageIDBeingRespondedTo, original.MessageIDBeingRespondedTo)
	}
	if decoded.AffectedSOPClassUID != original.AffectedSOPClassUID {
		t.Errorf("AffectedSOPClassUID = %q, want %q", decoded.AffectedSOPClassUID, original.AffectedSOPClassUID)
	}
	if decoded.Status != original.Status {
		t.Errorf("Status = 0x%04x, want 0x%04x", decoded.Status, original.Status)
	}
	if decoded.NumberOfRemainingSuboperations == nil || *decoded.NumberOfRemainingSuboperations != remaining {
		t.Errorf("NumberOfRemainingSuboperations = %v, want %d", decoded.NumberOfRemainingSuboperations, remaining)
	}
	if decoded.NumberOfCompletedSuboperations == nil || *decoded.NumberOfCompletedSuboperations != completed {
		t.Errorf("NumberOfCompletedSuboperations = %v, want %d", decoded.NumberOfCompletedSuboperations, completed)
	}
}

func TestEncodeCommandRequestOmitsStatus(t *testing.T) {
	req := &types.Message{
		CommandField:        types.CEchoRQ,
		MessageID:            1,
		CommandDataSetType:   NoDataSetPresent,
		AffectedSOPClassUID:  types.VerificationSOPClass,
	}
	encoded := EncodeCommand(req)
	decoded, err := DecodeCommand(encoded)
	if err != nil {
		t.Fatalf("DecodeCommand: %v", err)
	}
	if decoded.Status != 0 {
		t.Errorf("request Status = 0x%04x, want 0 (omitted on requests)", decoded.Status)
	}
	if decoded.MessageID != req.MessageID {
		t.Errorf("MessageID = %d, want %d", decoded.MessageID, req.MessageID)
	}
}

func TestDecodeCommandOddLengthUIDPadding(t *testing.T) {
	msg := &types.Message{
		CommandField:        types.CEchoRQ,
		AffectedSOPClassUID:  "1.2.840.10008.1.1", // odd length, 17 chars
		CommandDataSetType:   NoDataSetPresent,
	}
	encoded := EncodeCommand(msg)
	decoded, err := DecodeCommand(encoded)
	if err != nil {
		t.Fatalf("DecodeCommand: %v", err)
	}
	if decoded.AffectedSOPClassUID != msg.AffectedSOPClassUID {
		t.Errorf("AffectedSOPClassUID = %q, want %q", decoded.AffectedSOPClassUID, msg.AffectedSOPClassUID)
	}
}

func TestDecodeCommandTruncatedDataErrors(t *testing.T) {
	// A command field element claiming length 2 but with no value bytes.
	data := []byte{0x00, 0x00, 0x00, 0x01, 0x02, 0x00, 0x00, 0x00}
	if _, err := DecodeCommand(data); err == nil {
		t.Fatal("expected error decoding truncated command data")
	}
}
