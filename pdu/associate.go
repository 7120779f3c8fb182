package pdu

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/dicomkit/ulp/types"
	"github.com/dicomkit/ulp/ulperrors"
)

// fixedFieldsLength is the size of the AssociateRQ/AC fixed portion: protocol
// version (2) + reserved (2) + called AE (16) + calling AE (16) + reserved (32).
const fixedFieldsLength = 68

func trimPadding(raw []byte) string {
	return strings.TrimRight(string(raw), "\x00 ")
}

func padAETitle(title string) []byte {
	out := make([]byte, 16)
	copy(out, title)
	for i := len(title); i < 16; i++ {
		out[i] = ' '
	}
	return out
}

// RequestedPresentationContext is one presentation context proposed in an
// A-ASSOCIATE-RQ, carrying an abstract syntax and the transfer syntaxes the
// requestor is willing to use, in preference order.
type RequestedPresentationContext struct {
	ID              byte
	AbstractSyntax  string
	TransferSyntaxes []string
}

// AcceptedPresentationContext is one presentation context result in an
// A-ASSOCIATE-AC: either accepted (Result == types.PresentationContextAcceptance,
// TransferSyntax set) or rejected (Result != acceptance, TransferSyntax empty).
type AcceptedPresentationContext struct {
	ID             byte
	Result         byte
	TransferSyntax string
}

// AssociateRQ is the decoded form of an A-ASSOCIATE-RQ PDU (PS3.8 §9.3.2).
type AssociateRQ struct {
	CalledAETitle             string
	CallingAETitle            string
	ApplicationContextUID     string
	PresentationContexts      []RequestedPresentationContext
	MaxPDULength              uint32
	ImplementationClassUID    string
	ImplementationVersionName string
	UserIdentity              *types.UserIdentity
}

// EncodeAssociateRQ serializes rq into the body of an A-ASSOCIATE-RQ PDU
// (the header is written separately by WriteHeaderAndBody).
func EncodeAssociateRQ(rq *AssociateRQ) []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, 0x00, 0x01) // protocol version
	buf = append(buf, 0x00, 0x00) // reserved
	buf = append(buf, padAETitle(rq.CalledAETitle)...)
	buf = append(buf, padAETitle(rq.CallingAETitle)...)
	buf = append(buf, make([]byte, 32)...) // reserved

	appContext := rq.ApplicationContextUID
	if appContext == "" {
		appContext = types.ApplicationContextUID
	}
	buf = putItem(buf, itemApplicationContext, []byte(appContext))

	for _, pc := range rq.PresentationContexts {
		buf = append(buf, encodePresentationContextRQ(pc)...)
	}

	buf = append(buf, encodeUserInformation(rq.MaxPDULength, rq.ImplementationClassUID, rq.ImplementationVersionName, rq.UserIdentity, nil)...)
	return buf
}

func encodePresentationContextRQ(pc RequestedPresentationContext) []byte {
	inner := []byte{pc.ID, 0x00, 0x00, 0x00}
	inner = putItem(inner, itemAbstractSyntax, []byte(pc.AbstractSyntax))
	for _, ts := range pc.TransferSyntaxes {
		inner = putItem(inner, itemTransferSyntax, []byte(ts))
	}
	return putItem(nil, itemPresentationContextRQ, inner)
}

// encodeUserInformation builds the User Information sub-item (0x50). Only
// one of identity (RQ side) or identityResponse (AC side) is ever non-nil
// for a given call, since a User Identity negotiation offer and its
// response travel in opposite directions.
func encodeUserInformation(maxPDULength uint32, implClassUID, implVersion string, identity *types.UserIdentity, identityResponse *types.UserIdentityResponse) []byte {
	if implClassUID == "" {
		implClassUID = "1.2.826.0.1.3680043.10.1337" // dicomkit implementation class UID
	}
	if implVersion == "" {
		implVersion = "DICOMKIT_ULP_1"
	}
	if maxPDULength == 0 {
		maxPDULength = 16384
	}

	maxLenValue := make([]byte, 4)
	binary.BigEndian.PutUint32(maxLenValue, maxPDULength)

	var inner []byte
	inner = putItem(inner, itemMaxPDULength, maxLenValue)
	inner = putItem(inner, itemImplementationClassUID, []byte(implClassUID))
	inner = putItem(inner, itemImplementationVersionName, []byte(implVersion))
	if identity != nil {
		inner = putItem(inner, itemUserIdentityRQ, encodeUserIdentity(identity))
	}
	if identityResponse != nil {
		inner = putItem(inner, itemUserIdentityAC, encodeUserIdentityResponse(identityResponse))
	}

	return putItem(nil, itemUserInformation, inner)
}

// encodeUserIdentity serializes the value of a User Identity RQ sub-item
// (PS3.8 §9.3.2, Table 9-16): type byte, positive-response-requested byte,
// a length-prefixed primary field, and — only for username+passcode — a
// length-prefixed secondary field.
func encodeUserIdentity(id *types.UserIdentity) []byte {
	buf := make([]byte, 2, 4+len(id.PrimaryField))
	buf[0] = byte(id.Type)
	if id.PositiveResponseRequested {
		buf[1] = 0x01
	}
	primaryLen := make([]byte, 2)
	binary.BigEndian.PutUint16(primaryLen, uint16(len(id.PrimaryField)))
	buf = append(buf, primaryLen...)
	buf = append(buf, id.PrimaryField...)

	if id.Type == types.UserIdentityUsernamePasscode {
		secondaryLen := make([]byte, 2)
		binary.BigEndian.PutUint16(secondaryLen, uint16(len(id.SecondaryField)))
		buf = append(buf, secondaryLen...)
		buf = append(buf, id.SecondaryField...)
	}
	return buf
}

// decodeUserIdentity parses the value of a User Identity RQ sub-item.
func decodeUserIdentity(data []byte) (*types.UserIdentity, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: User Identity sub-item too short", ulperrors.ErrInvalidPDU)
	}
	id := &types.UserIdentity{
		Type:                      types.UserIdentityType(data[0]),
		PositiveResponseRequested: data[1] != 0,
	}
	primaryLen := int(binary.BigEndian.Uint16(data[2:4]))
	if 4+primaryLen > len(data) {
		return nil, fmt.Errorf("%w: User Identity primary field length exceeds sub-item", ulperrors.ErrInvalidPDU)
	}
	if primaryLen > 0 {
		id.PrimaryField = append([]byte(nil), data[4:4+primaryLen]...)
	}

	if id.Type != types.UserIdentityUsernamePasscode {
		return id, nil
	}

	offset := 4 + primaryLen
	if offset+2 > len(data) {
		return nil, fmt.Errorf("%w: User Identity missing secondary field length", ulperrors.ErrInvalidPDU)
	}
	secondaryLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2
	if offset+secondaryLen > len(data) {
		return nil, fmt.Errorf("%w: User Identity secondary field length exceeds sub-item", ulperrors.ErrInvalidPDU)
	}
	if secondaryLen > 0 {
		id.SecondaryField = append([]byte(nil), data[offset:offset+secondaryLen]...)
	}
	return id, nil
}

// encodeUserIdentityResponse serializes the value of a User Identity Server
// Response sub-item (PS3.8 §9.3.3, Table 9-17-2): a length-prefixed opaque
// response blob.
func encodeUserIdentityResponse(resp *types.UserIdentityResponse) []byte {
	buf := make([]byte, 2, 2+len(resp.ServerResponse))
	binary.BigEndian.PutUint16(buf, uint16(len(resp.ServerResponse)))
	return append(buf, resp.ServerResponse...)
}

// decodeUserIdentityResponse parses the value of a User Identity Server
// Response sub-item.
func decodeUserIdentityResponse(data []byte) (*types.UserIdentityResponse, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: User Identity Server Response sub-item too short", ulperrors.ErrInvalidPDU)
	}
	length := int(binary.BigEndian.Uint16(data[0:2]))
	if 2+length > len(data) {
		return nil, fmt.Errorf("%w: User Identity Server Response length exceeds sub-item", ulperrors.ErrInvalidPDU)
	}
	resp := &types.UserIdentityResponse{}
	if length > 0 {
		resp.ServerResponse = append([]byte(nil), data[2:2+length]...)
	}
	return resp, nil
}

// DecodeAssociateRQ parses the body of an A-ASSOCIATE-RQ PDU.
func DecodeAssociateRQ(data []byte) (*AssociateRQ, error) {
	if len(data) < fixedFieldsLength {
		return nil, fmt.Errorf("%w: A-ASSOCIATE-RQ shorter than fixed fields (%d bytes)", ulperrors.ErrInvalidPDU, len(data))
	}

	rq := &AssociateRQ{
		CalledAETitle:  trimPadding(data[4:20]),
		CallingAETitle: trimPadding(data[20:36]),
		MaxPDULength:   16384,
	}

	items, err := parseItems(data[fixedFieldsLength:])
	if err != nil {
		return nil, err
	}

	for _, it := range items {
		switch it.Type {
		case itemApplicationContext:
			rq.ApplicationContextUID = trimPadding(it.Value)
		case itemPresentationContextRQ:
			pc, err := decodePresentationContextRQ(it.Value)
			if err != nil {
				return nil, err
			}
			rq.PresentationContexts = append(rq.PresentationContexts, pc)
		case itemUserInformation:
			maxLen, implClass, implVersion, identity, _, err := decodeUserInformation(it.Value)
			if err != nil {
				return nil, err
			}
			if maxLen > 0 {
				rq.MaxPDULength = maxLen
			}
			rq.ImplementationClassUID = implClass
			rq.ImplementationVersionName = implVersion
			rq.UserIdentity = identity
		}
	}

	return rq, nil
}

func decodePresentationContextRQ(data []byte) (RequestedPresentationContext, error) {
	if len(data) < 4 {
		return RequestedPresentationContext{}, fmt.Errorf("%w: presentation context item too short", ulperrors.ErrInvalidPDU)
	}
	pc := RequestedPresentationContext{ID: data[0]}
	subItems, err := parseItems(data[4:])
	if err != nil {
		return RequestedPresentationContext{}, err
	}
	for _, sub := range subItems {
		switch sub.Type {
		case itemAbstractSyntax:
			pc.AbstractSyntax = trimPadding(sub.Value)
		case itemTransferSyntax:
			pc.TransferSyntaxes = append(pc.TransferSyntaxes, trimPadding(sub.Value))
		}
	}
	if pc.AbstractSyntax == "" {
		return RequestedPresentationContext{}, fmt.Errorf("%w: presentation context %d missing abstract syntax", ulperrors.ErrInvalidPDU, pc.ID)
	}
	return pc, nil
}

func decodeUserInformation(data []byte) (maxPDULength uint32, implClassUID, implVersion string, identity *types.UserIdentity, identityResponse *types.UserIdentityResponse, err error) {
	items, err := parseItems(data)
	if err != nil {
		return 0, "", "", nil, nil, err
	}
	for _, it := range items {
		switch it.Type {
		case itemMaxPDULength:
			if len(it.Value) == 4 {
				maxPDULength = binary.BigEndian.Uint32(it.Value)
			}
		case itemImplementationClassUID:
			implClassUID = trimPadding(it.Value)
		case itemImplementationVersionName:
			implVersion = trimPadding(it.Value)
		case itemUserIdentityRQ:
			identity, err = decodeUserIdentity(it.Value)
			if err != nil {
				return 0, "", "", nil, nil, err
			}
		case itemUserIdentityAC:
			identityResponse, err = decodeUserIdentityResponse(it.Value)
			if err != nil {
				return 0, "", "", nil, nil, err
			}
		}
	}
	return maxPDULength, implClassUID, implVersion, identity, identityResponse, nil
}

// AssociateAC is the decoded form of an A-ASSOCIATE-AC PDU (PS3.8 §9.3.3).
type AssociateAC struct {
	CalledAETitle             string
	CallingAETitle            string
	ApplicationContextUID     string
	PresentationContexts      []AcceptedPresentationContext
	MaxPDULength              uint32
	ImplementationClassUID    string
	ImplementationVersionName string
	UserIdentityResponse      *types.UserIdentityResponse
}

// EncodeAssociateAC serializes ac into the body of an A-ASSOCIATE-AC PDU.
// Per PS3.8 §9.3.3.3, every presentation context proposed in the RQ must
// appear in the AC — accepted ones carry a single transfer syntax sub-item,
// rejected ones carry none.
func EncodeAssociateAC(ac *AssociateAC) []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, 0x00, 0x01)
	buf = append(buf, 0x00, 0x00)
	buf = append(buf, padAETitle(ac.CalledAETitle)...)
	buf = append(buf, padAETitle(ac.CallingAETitle)...)
	buf = append(buf, make([]byte, 32)...)

	appContext := ac.ApplicationContextUID
	if appContext == "" {
		appContext = types.ApplicationContextUID
	}
	buf = putItem(buf, itemApplicationContext, []byte(appContext))

	for _, pc := range ac.PresentationContexts {
		buf = append(buf, encodePresentationContextAC(pc)...)
	}

	buf = append(buf, encodeUserInformation(ac.MaxPDULength, ac.ImplementationClassUID, ac.ImplementationVersionName, nil, ac.UserIdentityResponse)...)
	return buf
}

func encodePresentationContextAC(pc AcceptedPresentationContext) []byte {
	inner := []byte{pc.ID, pc.Result, 0x00, 0x00}
	if pc.Result == types.PresentationContextAcceptance {
		inner = putItem(inner, itemTransferSyntax, []byte(pc.TransferSyntax))
	}
	return putItem(nil, itemPresentationContextAC, inner)
}

// DecodeAssociateAC parses the body of an A-ASSOCIATE-AC PDU.
func DecodeAssociateAC(data []byte) (*AssociateAC, error) {
	if len(data) < fixedFieldsLength {
		return nil, fmt.Errorf("%w: A-ASSOCIATE-AC shorter than fixed fields (%d bytes)", ulperrors.ErrInvalidPDU, len(data))
	}

	ac := &AssociateAC{
		CalledAETitle:  trimPadding(data[4:20]),
		CallingAETitle: trimPadding(data[20:36]),
	}

	items, err := parseItems(data[fixedFieldsLength:])
	if err != nil {
		return nil, err
	}

	for _, it := range items {
		switch it.Type {
		case itemApplicationContext:
			ac.ApplicationContextUID = trimPadding(it.Value)
		case itemPresentationContextAC:
			pc, err := decodePresentationContextAC(it.Value)
			if err != nil {
				return nil, err
			}
			ac.PresentationContexts = append(ac.PresentationContexts, pc)
		case itemUserInformation:
			maxLen, implClass, implVersion, _, identityResponse, err := decodeUserInformation(it.Value)
			if err != nil {
				return nil, err
			}
			ac.MaxPDULength = maxLen
			ac.ImplementationClassUID = implClass
			ac.ImplementationVersionName = implVersion
			ac.UserIdentityResponse = identityResponse
		}
	}

	return ac, nil
}

func decodePresentationContextAC(data []byte) (AcceptedPresentationContext, error) {
	if len(data) < 4 {
		return AcceptedPresentationContext{}, fmt.Errorf("%w: presentation context item too short", ulperrors.ErrInvalidPDU)
	}
	pc := AcceptedPresentationContext{ID: data[0], Result: data[1]}
	subItems, err := parseItems(data[4:])
	if err != nil {
		return AcceptedPresentationContext{}, err
	}
	for _, sub := range subItems {
		if sub.Type == itemTransferSyntax {
			pc.TransferSyntax = trimPadding(sub.Value)
		}
	}
	return pc, nil
}

// AssociateRJ is the decoded form of an A-ASSOCIATE-RJ PDU (PS3.8 §9.3.4).
type AssociateRJ struct {
	Result byte // ulperrors.RejectResult*
	Source byte // ulperrors.AssociationRejectSource
	Reason byte // ulperrors.AssociationRejectReason, scoped by Source
}

// EncodeAssociateRJ serializes rj into the body of an A-ASSOCIATE-RJ PDU.
func EncodeAssociateRJ(rj *AssociateRJ) []byte {
	return []byte{0x00, rj.Result, rj.Source, rj.Reason}
}

// DecodeAssociateRJ parses the body of an A-ASSOCIATE-RJ PDU.
func DecodeAssociateRJ(data []byte) (*AssociateRJ, error) {
	if len(data) != 4 {
		return nil, fmt.Errorf("%w: A-ASSOCIATE-RJ body must be 4 bytes, got %d", ulperrors.ErrInvalidPDU, len(data))
	}
	return &AssociateRJ{Result: data[1], Source: data[2], Reason: data[3]}, nil
}
