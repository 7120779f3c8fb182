package types

import (
	"fmt"
	"strings"
)

// AETMaxLength is the maximum length of an Application Entity title as an
// ASCII string, per PS3.8 §9.3.2 and PS3.5 §6.2 ("AE" value representation).
const AETMaxLength = 16

// AET is a validated Application Entity title: up to 16 characters of the
// default character repertoire, leading/trailing spaces trimmed for
// comparison but preserved in its padded wire form.
type AET string

// NewAET validates raw and returns it as an AET, rejecting titles that are
// empty, all-space, or longer than AETMaxLength once trimmed.
func NewAET(raw string) (AET, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: AE title is empty", ErrInvalidAET)
	}
	if len(trimmed) > AETMaxLength {
		return "", fmt.Errorf("%w: AE title %q exceeds %d characters", ErrInvalidAET, raw, AETMaxLength)
	}
	for _, r := range trimmed {
		if r < 0x20 || r > 0x7e {
			return "", fmt.Errorf("%w: AE title %q contains non-printable ASCII", ErrInvalidAET, raw)
		}
	}
	return AET(trimmed), nil
}

// Padded returns the AET as a 16-byte, space-padded wire form suitable for
// the calling/called AE title fields of an A-ASSOCIATE-RQ PDU.
func (a AET) Padded() [AETMaxLength]byte {
	var out [AETMaxLength]byte
	copy(out[:], a)
	for i := len(a); i < AETMaxLength; i++ {
		out[i] = ' '
	}
	return out
}

func (a AET) String() string { return string(a) }

// UIDMaxLength is the maximum length of a DICOM UID per PS3.5 §9.1.
const UIDMaxLength = 64

// UserIdentityType enumerates the shapes a requestor may use to identify
// itself in the User Identity RQ sub-item (0x58) of an A-ASSOCIATE-RQ
// (PS3.8 §9.3.2, Table 9-16; Annex D lists the identity shapes).
type UserIdentityType byte

const (
	UserIdentityUsername         UserIdentityType = 1
	UserIdentityUsernamePasscode UserIdentityType = 2
	UserIdentityKerberos         UserIdentityType = 3
	UserIdentitySAML             UserIdentityType = 4
	UserIdentityJWT              UserIdentityType = 5
)

func (t UserIdentityType) String() string {
	switch t {
	case UserIdentityUsername:
		return "username"
	case UserIdentityUsernamePasscode:
		return "username+passcode"
	case UserIdentityKerberos:
		return "kerberos"
	case UserIdentitySAML:
		return "saml"
	case UserIdentityJWT:
		return "jwt"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// UserIdentity is a requestor's identity negotiation offer. PrimaryField
// holds the username, Kerberos ticket, SAML assertion, or JWT, depending on
// Type; SecondaryField holds the passcode and is only meaningful when Type
// is UserIdentityUsernamePasscode. PositiveResponseRequested asks the
// acceptor to return a UserIdentityResponse on success.
type UserIdentity struct {
	Type                      UserIdentityType
	PrimaryField              []byte
	SecondaryField            []byte
	PositiveResponseRequested bool
}

// UserIdentityResponse is the acceptor's reply in the User Identity Server
// Response sub-item (0x59) of an A-ASSOCIATE-AC, sent only when the
// requestor's UserIdentity set PositiveResponseRequested. Its contents
// (e.g. a Kerberos or SAML response token) are opaque to the ULP layer.
type UserIdentityResponse struct {
	ServerResponse []byte
}

// UID is a validated DICOM Unique Identifier: dot-separated numeric
// components, each free of leading zeros (except a lone "0"), at most
// UIDMaxLength characters.
type UID string

// NewUID validates raw as a DICOM UID.
func NewUID(raw string) (UID, error) {
	trimmed := strings.TrimRight(raw, "\x00")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return "", fmt.Errorf("%w: UID is empty", ErrInvalidUID)
	}
	if len(trimmed) > UIDMaxLength {
		return "", fmt.Errorf("%w: UID %q exceeds %d characters", ErrInvalidUID, raw, UIDMaxLength)
	}
	components := strings.Split(trimmed, ".")
	if len(components) < 2 {
		return "", fmt.Errorf("%w: UID %q has fewer than two components", ErrInvalidUID, raw)
	}
	for _, c := range components {
		if c == "" {
			return "", fmt.Errorf("%w: UID %q has an empty component", ErrInvalidUID, raw)
		}
		if len(c) > 1 && c[0] == '0' {
			return "", fmt.Errorf("%w: UID %q component %q has a leading zero", ErrInvalidUID, raw, c)
		}
		for _, r := range c {
			if r < '0' || r > '9' {
				return "", fmt.Errorf("%w: UID %q component %q is not numeric", ErrInvalidUID, raw, c)
			}
		}
	}
	return UID(trimmed), nil
}

func (u UID) String() string { return string(u) }

// Padded returns the UID with a trailing NUL byte if its length is odd, as
// required when embedding a UID as an element value in a dataset (PS3.5
// §9.1: UID values shall be padded to even length with a single trailing NUL).
func (u UID) Padded() string {
	if len(u)%2 == 1 {
		return string(u) + "\x00"
	}
	return string(u)
}
