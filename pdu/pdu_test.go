package pdu

import (
	"bytes"
	"testing"
)

func TestWriteReadHeaderAndBodyRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := []byte{0x01, 0x02, 0x03, 0x04, 0x05}

	if err := WriteHeaderAndBody(&buf, TypePDataTF, body); err != nil {
		t.Fatalf("WriteHeaderAndBody: %v", err)
	}

	header, gotBody, err := ReadHeaderAndBody(&buf)
	if err != nil {
		t.Fatalf("ReadHeaderAndBody: %v", err)
	}
	if header.Type != TypePDataTF {
		t.Errorf("Type = 0x%02x, want 0x%02x", header.Type, TypePDataTF)
	}
	if header.Length != uint32(len(body)) {
		t.Errorf("Length = %d, want %d", header.Length, len(body))
	}
	if !bytes.Equal(gotBody, body) {
		t.Errorf("body = %v, want %v", gotBody, body)
	}
}

func TestReadHeaderAndBodyEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHeaderAndBody(&buf, TypeReleaseRQ, nil); err != nil {
		t.Fatalf("WriteHeaderAndBody: %v", err)
	}
	header, body, err := ReadHeaderAndBody(&buf)
	if err != nil {
		t.Fatalf("ReadHeaderAndBody: %v", err)
	}
	if header.Length != 0 || len(body) != 0 {
		t.Errorf("expected empty body, got length=%d body=%v", header.Length, body)
	}
}
