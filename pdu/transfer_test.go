package pdu

import (
	"reflect"
	"testing"
)

func TestPDataTFRoundTrip(t *testing.T) {
	pdvs := []PresentationDataValue{
		{PresentationContextID: 1, MessageControlHeader: MsgHeaderCommand | MsgHeaderLast, Data: []byte{0xde, 0xad}},
		{PresentationContextID: 1, MessageControlHeader: 0x00, Data: []byte{1, 2, 3}},
		{PresentationContextID: 1, MessageControlHeader: MsgHeaderLast, Data: []byte{4, 5, 6}},
	}

	encoded := EncodePDataTF(pdvs)
	decoded, err := DecodePDataTF(encoded)
	if err != nil {
		t.Fatalf("DecodePDataTF: %v", err)
	}
	if !reflect.DeepEqual(decoded, pdvs) {
		t.Errorf("decoded = %+v, want %+v", decoded, pdvs)
	}
}

func TestPDVFlags(t *testing.T) {
	command := PresentationDataValue{MessageControlHeader: MsgHeaderCommand | MsgHeaderLast}
	if !command.IsCommand() || !command.IsLast() {
		t.Error("expected command+last PDV to report both flags true")
	}

	dataset := PresentationDataValue{MessageControlHeader: 0x00}
	if dataset.IsCommand() || dataset.IsLast() {
		t.Error("expected non-last dataset PDV to report both flags false")
	}
}

func TestDecodePDataTFTruncated(t *testing.T) {
	if _, err := DecodePDataTF([]byte{0x00, 0x00, 0x00, 0xff, 0x01}); err == nil {
		t.Fatal("expected error for PDV length exceeding body")
	}
}

func TestMaxPDVPayload(t *testing.T) {
	tests := []struct {
		maxPDULength uint32
		want         int
	}{
		{0, 0},
		{16384, 16384 - 12},
		{5, 1},
	}
	for _, tt := range tests {
		if got := MaxPDVPayload(tt.maxPDULength); got != tt.want {
			t.Errorf("MaxPDVPayload(%d) = %d, want %d", tt.maxPDULength, got, tt.want)
		}
	}
}
