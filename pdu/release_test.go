package pdu

import "testing"

func TestReleaseRoundTrip(t *testing.T) {
	if err := DecodeRelease(EncodeReleaseRQ()); err != nil {
		t.Errorf("DecodeRelease(EncodeReleaseRQ()): %v", err)
	}
	if err := DecodeRelease(EncodeReleaseRP()); err != nil {
		t.Errorf("DecodeRelease(EncodeReleaseRP()): %v", err)
	}
	if err := DecodeRelease([]byte{0x00}); err == nil {
		t.Error("expected error for malformed release body")
	}
}

func TestAbortRoundTrip(t *testing.T) {
	a := Abort{Source: AbortSourceServiceProvider, Reason: AbortReasonUnexpectedPDU}
	decoded, err := DecodeAbort(EncodeAbort(a))
	if err != nil {
		t.Fatalf("DecodeAbort: %v", err)
	}
	if decoded != a {
		t.Errorf("decoded = %+v, want %+v", decoded, a)
	}
}

func TestDecodeAbortWrongLength(t *testing.T) {
	if _, err := DecodeAbort([]byte{0x00}); err == nil {
		t.Error("expected error for malformed A-ABORT body")
	}
}
