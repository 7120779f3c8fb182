package dimse

import "github.com/dicomkit/ulp/ulperrors"

// StatusClass is the coarse classification of a DIMSE status code per
// PS3.7 Annex C.
type StatusClass int

const (
	StatusClassSuccess StatusClass = iota
	StatusClassPending
	StatusClassCancel
	StatusClassWarning
	StatusClassFailure
)

func (c StatusClass) String() string {
	switch c {
	case StatusClassSuccess:
		return "Success"
	case StatusClassPending:
		return "Pending"
	case StatusClassCancel:
		return "Cancel"
	case StatusClassWarning:
		return "Warning"
	case StatusClassFailure:
		return "Failure"
	default:
		return "Unknown"
	}
}

// ClassifyStatus resolves the open question of how to interpret a raw
// status code: it defers entirely to ulperrors.DIMSEError's classification
// so the server dispatch, client calls, and error taxonomy all agree on one
// definition of Success/Pending/Cancel/Warning/Failure.
func ClassifyStatus(status uint16) StatusClass {
	e := &ulperrors.DIMSEError{Status: status}
	switch {
	case e.IsSuccess():
		return StatusClassSuccess
	case e.IsPending():
		return StatusClassPending
	case e.IsCancel():
		return StatusClassCancel
	case e.IsWarning():
		return StatusClassWarning
	default:
		return StatusClassFailure
	}
}
