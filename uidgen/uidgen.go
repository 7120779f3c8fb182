// Package uidgen mints DICOM UIDs for instances created locally by an
// acceptor (print hierarchy instances, MPPS steps, anything else that needs
// a fresh SOP Instance UID without a central registry).
package uidgen

import (
	"math/big"

	"github.com/google/uuid"
)

// New returns a fresh UID on the ITU-T "UUID-derived OID" arc:
// 2.25.<uuid-as-unsigned-decimal>. This stays within the 64-character UID
// length limit and the digits-and-dots charset without needing a registered
// organization root.
func New() string {
	id := uuid.New()
	return "2.25." + uuidToDecimal(id)
}

func uuidToDecimal(id uuid.UUID) string {
	n := new(big.Int).SetBytes(id[:])
	return n.String()
}
