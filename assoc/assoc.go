// Package assoc drives association establishment, data transfer, and
// release for both roles (requestor and acceptor) over an abstract
// transport.Transport, using pdu for wire codec and statemachine to track
// legal state transitions. It unifies what the teacher split across
// client.Association (requestor) and pdu.Layer (acceptor) into one
// role-agnostic type, since both sides run the same PS3.8 §9.2 machine.
package assoc

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dicomkit/ulp/pdu"
	"github.com/dicomkit/ulp/statemachine"
	"github.com/dicomkit/ulp/transport"
	"github.com/dicomkit/ulp/types"
	"github.com/dicomkit/ulp/ulperrors"
)

// Proposal is one presentation context a requestor offers, in the order it
// prefers transfer syntaxes.
type Proposal struct {
	AbstractSyntax   string
	TransferSyntaxes []string
}

// Config holds the parameters of a requestor-side Associate call. Mirrors
// the teacher's client.Config in shape, with AET/UID validation added and
// DIMSE/DIMSE-N timeout knobs folded in per the expanded spec.
type Config struct {
	CallingAETitle            types.AET
	CalledAETitle             types.AET
	MaxPDULength              uint32
	Proposals                 []Proposal
	ConnectTimeout            time.Duration
	ReadTimeout               time.Duration
	WriteTimeout              time.Duration
	ReleaseTimeout            time.Duration
	Logger                    *zerolog.Logger // nil uses the global zerolog logger
	ImplementationClassUID    string
	ImplementationVersionName string
	UserIdentity              *types.UserIdentity
}

func (c *Config) applyDefaults() {
	if c.MaxPDULength == 0 {
		c.MaxPDULength = 16384
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 60 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.ReleaseTimeout == 0 {
		c.ReleaseTimeout = 10 * time.Second
	}
}

// Negotiator decides, on the acceptor side, which of a requestor's proposed
// presentation contexts to accept and which single transfer syntax to pick
// for each acceptance. It is the extension point print/worklist/dimse use
// to advertise the SOP classes they implement.
type Negotiator interface {
	Negotiate(abstractSyntax string, proposedTransferSyntaxes []string) (transferSyntax string, accept bool)
}

// NegotiatorFunc adapts a function to Negotiator.
type NegotiatorFunc func(abstractSyntax string, proposed []string) (string, bool)

func (f NegotiatorFunc) Negotiate(abstractSyntax string, proposed []string) (string, bool) {
	return f(abstractSyntax, proposed)
}

// IdentityValidator decides, on the acceptor side, whether a requestor's
// User Identity negotiation offer (§3.9) is acceptable. identity is nil
// when the requestor didn't send one — a validator that requires
// authentication should reject that case itself. response is only used
// when identity.PositiveResponseRequested is set, and becomes the opaque
// blob returned in the A-ASSOCIATE-AC's User Identity Server Response
// sub-item.
type IdentityValidator interface {
	ValidateIdentity(identity *types.UserIdentity) (response []byte, ok bool)
}

// IdentityValidatorFunc adapts a function to IdentityValidator.
type IdentityValidatorFunc func(identity *types.UserIdentity) ([]byte, bool)

func (f IdentityValidatorFunc) ValidateIdentity(identity *types.UserIdentity) ([]byte, bool) {
	return f(identity)
}

// Association is an established DICOM association, usable from either the
// requestor or the acceptor side once negotiation completes.
type Association struct {
	mu sync.Mutex

	transport transport.Transport
	machine   *statemachine.Machine
	logger    zerolog.Logger

	isRequestor bool

	callingAETitle types.AET
	calledAETitle  types.AET

	localMaxPDULength uint32
	peerMaxPDULength  uint32
	presentationCtxs  map[byte]*types.PresentationContext

	userIdentity         *types.UserIdentity
	userIdentityResponse *types.UserIdentityResponse

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// UserIdentity returns the User Identity the requestor offered (nil if
// none), per §3.5's "optional authenticated user identity" attribute.
func (a *Association) UserIdentity() *types.UserIdentity { return a.userIdentity }

// UserIdentityResponse returns the acceptor's User Identity Server Response
// (nil if none was sent), valid on the requestor side after Connect.
func (a *Association) UserIdentityResponse() *types.UserIdentityResponse { return a.userIdentityResponse }

// PresentationContexts returns the negotiated contexts, keyed by ID.
func (a *Association) PresentationContexts() map[byte]*types.PresentationContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[byte]*types.PresentationContext, len(a.presentationCtxs))
	for k, v := range a.presentationCtxs {
		out[k] = v
	}
	return out
}

// State returns the current association state.
func (a *Association) State() types.AssocState { return a.machine.State() }

// CallingAETitle and CalledAETitle return the negotiated AE titles.
func (a *Association) CallingAETitle() types.AET { return a.callingAETitle }
func (a *Association) CalledAETitle() types.AET  { return a.calledAETitle }

// PeerMaxPDULength returns the maximum PDU length the peer advertised it
// can receive; PDVs sent to the peer must be fragmented to fit within it.
func (a *Association) PeerMaxPDULength() uint32 { return a.peerMaxPDULength }

// GetPresentationContextID returns the ID of an accepted presentation
// context for abstractSyntax, or ulperrors.ErrNoPresentationCtx.
func (a *Association) GetPresentationContextID(abstractSyntax string) (byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, pc := range a.presentationCtxs {
		if pc.AbstractSyntax == abstractSyntax && pc.Result == types.PresentationContextAcceptance {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ulperrors.ErrNoPresentationCtx, abstractSyntax)
}

// TransferSyntax returns the negotiated transfer syntax for presContextID.
func (a *Association) TransferSyntax(presContextID byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pc, ok := a.presentationCtxs[presContextID]
	if !ok || pc.Result != types.PresentationContextAcceptance {
		return "", fmt.Errorf("%w: no accepted presentation context %d", ulperrors.ErrNoPresentationCtx, presContextID)
	}
	return pc.TransferSyntax, nil
}

func defaultImplementationIdentifiers(classUID, versionName string) (string, string) {
	if classUID == "" {
		classUID = "1.2.826.0.1.3680043.10.1337"
	}
	if versionName == "" {
		versionName = "DICOMKIT_ULP_1"
	}
	return classUID, versionName
}

// Connect dials address and performs the requestor side of association
// establishment: A-ASSOCIATE-RQ out, A-ASSOCIATE-AC or -RJ in.
func Connect(ctx context.Context, address string, cfg Config) (*Association, error) {
	cfg.applyDefaults()
	if cfg.CallingAETitle == "" || cfg.CalledAETitle == "" {
		return nil, ulperrors.NewInvalidArgumentError("AETitle", "both calling and called AE titles are required")
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	tr, err := transport.DialTCP(dialCtx, address)
	if err != nil {
		return nil, ulperrors.NewNetworkError("dial", err)
	}

	a := &Association{
		transport:         tr,
		machine:           statemachine.New(),
		logger:            logger,
		isRequestor:       true,
		callingAETitle:    cfg.CallingAETitle,
		calledAETitle:     cfg.CalledAETitle,
		localMaxPDULength: cfg.MaxPDULength,
		presentationCtxs:  make(map[byte]*types.PresentationContext),
		readTimeout:       cfg.ReadTimeout,
		writeTimeout:      cfg.WriteTimeout,
	}

	if _, err := a.machine.Fire(statemachine.EvTransportConnectLocal); err != nil {
		tr.Close()
		return nil, err
	}
	if _, err := a.machine.Fire(statemachine.EvTransportConnected); err != nil {
		tr.Close()
		return nil, err
	}

	if err := a.sendAssociateRQ(cfg); err != nil {
		tr.Close()
		return nil, err
	}

	if err := a.receiveAssociateResponse(); err != nil {
		tr.Close()
		return nil, err
	}

	a.logger.Info().
		Str("calling_ae", string(a.callingAETitle)).
		Str("called_ae", string(a.calledAETitle)).
		Int("accepted_contexts", a.countAccepted()).
		Msg("association established")

	return a, nil
}

func (a *Association) countAccepted() int {
	n := 0
	for _, pc := range a.presentationCtxs {
		if pc.Result == types.PresentationContextAcceptance {
			n++
		}
	}
	return n
}

func (a *Association) sendAssociateRQ(cfg Config) error {
	implClass, implVersion := defaultImplementationIdentifiers(cfg.ImplementationClassUID, cfg.ImplementationVersionName)

	a.userIdentity = cfg.UserIdentity

	rq := &pdu.AssociateRQ{
		CalledAETitle:             string(cfg.CalledAETitle),
		CallingAETitle:            string(cfg.CallingAETitle),
		MaxPDULength:              cfg.MaxPDULength,
		ImplementationClassUID:    implClass,
		ImplementationVersionName: implVersion,
		UserIdentity:              cfg.UserIdentity,
	}

	nextID := byte(1)
	for _, p := range cfg.Proposals {
		rq.PresentationContexts = append(rq.PresentationContexts, pdu.RequestedPresentationContext{
			ID:               nextID,
			AbstractSyntax:   p.AbstractSyntax,
			TransferSyntaxes: p.TransferSyntaxes,
		})
		a.presentationCtxs[nextID] = &types.PresentationContext{ID: nextID, AbstractSyntax: p.AbstractSyntax}
		nextID += 2 // presentation context IDs are always odd
	}

	a.transport.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
	if err := pdu.WriteHeaderAndBody(a.transport, pdu.TypeAssociateRQ, pdu.EncodeAssociateRQ(rq)); err != nil {
		return ulperrors.NewNetworkError("send A-ASSOCIATE-RQ", err)
	}
	return nil
}

func (a *Association) receiveAssociateResponse() error {
	a.transport.SetReadDeadline(time.Now().Add(a.readTimeout))
	header, body, err := pdu.ReadHeaderAndBody(a.transport)
	if err != nil {
		return ulperrors.NewNetworkError("receive A-ASSOCIATE response", err)
	}

	switch header.Type {
	case pdu.TypeAssociateAC:
		ac, err := pdu.DecodeAssociateAC(body)
		if err != nil {
			return err
		}
		if _, err := a.machine.Fire(statemachine.EvAAssociateACReceived); err != nil {
			return err
		}
		a.calledAETitle = types.AET(ac.CalledAETitle)
		a.callingAETitle = types.AET(ac.CallingAETitle)
		a.peerMaxPDULength = ac.MaxPDULength
		a.userIdentityResponse = ac.UserIdentityResponse
		for _, pc := range ac.PresentationContexts {
			if existing, ok := a.presentationCtxs[pc.ID]; ok {
				existing.Result = pc.Result
				existing.TransferSyntax = pc.TransferSyntax
			}
		}
		return nil
	case pdu.TypeAssociateRJ:
		rj, err := pdu.DecodeAssociateRJ(body)
		if err != nil {
			return err
		}
		if _, fireErr := a.machine.Fire(statemachine.EvAAssociateRJReceived); fireErr != nil {
			return fireErr
		}
		return ulperrors.NewAssociationError(
			ulperrors.AssociationRejectSource(rj.Source),
			ulperrors.AssociationRejectReason(rj.Reason),
			"peer rejected association",
		)
	default:
		return ulperrors.NewPDUError(header.Type, "expected A-ASSOCIATE-AC or A-ASSOCIATE-RJ")
	}
}

// Accept performs the acceptor side of association establishment over tr:
// reads A-ASSOCIATE-RQ, validates the Application Context UID and (if
// identityValidator is non-nil) the requestor's User Identity, asks
// negotiator to decide each proposed presentation context, and sends
// A-ASSOCIATE-AC (or A-ASSOCIATE-RJ on any rejection). identityValidator
// may be nil to accept every association regardless of User Identity.
func Accept(ctx context.Context, tr transport.Transport, calledAETitle types.AET, maxPDULength uint32, readTimeout, writeTimeout time.Duration, negotiator Negotiator, identityValidator IdentityValidator, logger zerolog.Logger) (*Association, error) {
	if maxPDULength == 0 {
		maxPDULength = 16384
	}

	a := &Association{
		transport:         tr,
		machine:           statemachine.New(),
		logger:            logger,
		isRequestor:       false,
		calledAETitle:     calledAETitle,
		localMaxPDULength: maxPDULength,
		presentationCtxs:  make(map[byte]*types.PresentationContext),
		readTimeout:       readTimeout,
		writeTimeout:      writeTimeout,
	}

	if _, err := a.machine.Fire(statemachine.EvTransportConnectionIndication); err != nil {
		return nil, err
	}

	tr.SetReadDeadline(time.Now().Add(readTimeout))
	header, body, err := pdu.ReadHeaderAndBody(tr)
	if err != nil {
		return nil, ulperrors.NewNetworkError("receive A-ASSOCIATE-RQ", err)
	}
	if header.Type != pdu.TypeAssociateRQ {
		return nil, ulperrors.NewPDUError(header.Type, "expected A-ASSOCIATE-RQ")
	}

	rq, err := pdu.DecodeAssociateRQ(body)
	if err != nil {
		return nil, err
	}
	if _, err := a.machine.Fire(statemachine.EvAAssociateRQReceived); err != nil {
		return nil, err
	}

	a.callingAETitle = types.AET(rq.CallingAETitle)

	reject := func(reason ulperrors.AssociationRejectReason, msg string) (*Association, error) {
		rj := &pdu.AssociateRJ{
			Result: byte(ulperrors.RejectResultPermanent),
			Source: byte(ulperrors.RejectSourceServiceUser),
			Reason: byte(reason),
		}
		a.machine.Fire(statemachine.EvAAssociateResponseRejectLocal)
		tr.SetWriteDeadline(time.Now().Add(writeTimeout))
		pdu.WriteHeaderAndBody(tr, pdu.TypeAssociateRJ, pdu.EncodeAssociateRJ(rj))
		return nil, ulperrors.NewAssociationError(
			ulperrors.AssociationRejectSource(rj.Source),
			ulperrors.AssociationRejectReason(rj.Reason),
			msg,
		)
	}

	if rq.ApplicationContextUID != types.ApplicationContextUID {
		return reject(ulperrors.RejectReasonApplicationContextNotSupported, "application context UID not supported")
	}

	if calledAETitle != "" && rq.CalledAETitle != string(calledAETitle) {
		return reject(ulperrors.RejectReasonCalledAETitleNotRecognized, "called AE title mismatch")
	}
	a.calledAETitle = calledAETitle

	a.userIdentity = rq.UserIdentity
	var identityResponseBytes []byte
	if identityValidator != nil {
		response, ok := identityValidator.ValidateIdentity(rq.UserIdentity)
		if !ok {
			return reject(ulperrors.RejectReasonNoReasonGiven, "user identity rejected")
		}
		identityResponseBytes = response
	}

	a.peerMaxPDULength = rq.MaxPDULength

	acMaxPDULength := maxPDULength
	if rq.MaxPDULength != 0 && rq.MaxPDULength < acMaxPDULength {
		acMaxPDULength = rq.MaxPDULength
	}
	ac := &pdu.AssociateAC{
		CalledAETitle:  rq.CalledAETitle,
		CallingAETitle: rq.CallingAETitle,
		MaxPDULength:   acMaxPDULength,
	}
	implClass, implVersion := defaultImplementationIdentifiers("", "")
	ac.ImplementationClassUID = implClass
	ac.ImplementationVersionName = implVersion
	if rq.UserIdentity != nil && rq.UserIdentity.PositiveResponseRequested && identityValidator != nil {
		ac.UserIdentityResponse = &types.UserIdentityResponse{ServerResponse: identityResponseBytes}
	}

	for _, proposed := range rq.PresentationContexts {
		ts, accept := negotiator.Negotiate(proposed.AbstractSyntax, proposed.TransferSyntaxes)
		pc := &types.PresentationContext{ID: proposed.ID, AbstractSyntax: proposed.AbstractSyntax}
		if accept && ts != "" {
			pc.Result = types.PresentationContextAcceptance
			pc.TransferSyntax = ts
			ac.PresentationContexts = append(ac.PresentationContexts, pdu.AcceptedPresentationContext{
				ID: proposed.ID, Result: types.PresentationContextAcceptance, TransferSyntax: ts,
			})
		} else {
			pc.Result = types.PresentationContextProviderRejectionTransferSyntax
			ac.PresentationContexts = append(ac.PresentationContexts, pdu.AcceptedPresentationContext{
				ID: proposed.ID, Result: types.PresentationContextProviderRejectionTransferSyntax,
			})
		}
		a.presentationCtxs[proposed.ID] = pc
	}

	if _, err := a.machine.Fire(statemachine.EvAAssociateResponseAcceptLocal); err != nil {
		return nil, err
	}

	tr.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := pdu.WriteHeaderAndBody(tr, pdu.TypeAssociateAC, pdu.EncodeAssociateAC(ac)); err != nil {
		return nil, ulperrors.NewNetworkError("send A-ASSOCIATE-AC", err)
	}

	a.logger.Info().
		Str("calling_ae", string(a.callingAETitle)).
		Str("called_ae", string(a.calledAETitle)).
		Int("accepted_contexts", a.countAccepted()).
		Msg("association accepted")

	return a, nil
}

// Release performs a graceful A-RELEASE exchange and closes the transport.
func (a *Association) Release(ctx context.Context) error {
	if _, err := a.machine.Fire(statemachine.EvAReleaseRequestLocal); err != nil {
		return err
	}

	a.transport.SetWriteDeadline(time.Now().Add(a.writeTimeout))
	if err := pdu.WriteHeaderAndBody(a.transport, pdu.TypeReleaseRQ, pdu.EncodeReleaseRQ()); err != nil {
		return ulperrors.NewNetworkError("send A-RELEASE-RQ", err)
	}

	a.transport.SetReadDeadline(time.Now().Add(a.readTimeout))
	header, body, err := pdu.ReadHeaderAndBody(a.transport)
	if err != nil {
		a.transport.Close()
		return ulperrors.NewNetworkError("receive A-RELEASE-RP", err)
	}
	if header.Type != pdu.TypeReleaseRP {
		a.transport.Close()
		return ulperrors.NewPDUError(header.Type, "expected A-RELEASE-RP")
	}
	if err := pdu.DecodeRelease(body); err != nil {
		a.transport.Close()
		return err
	}
	if _, err := a.machine.Fire(statemachine.EvAReleaseRPReceived); err != nil {
		a.transport.Close()
		return err
	}

	return a.transport.Close()
}

// AcceptRelease reads an A-RELEASE-RQ from the peer, replies with
// A-RELEASE-RP, and closes the transport — the acceptor-side counterpart
// of Release, for callers that haven't already read a PDU off the wire.
func (a *Association) AcceptRelease() error {
	a.transport.SetReadDeadline(time.Now().Add(a.readTimeout))
	header, body, err := pdu.ReadHeaderAndBody(a.transport)
	if err != nil {
		a.transport.Close()
		return ulperrors.NewNetworkError("receive A-RELEASE-RQ", err)
	}
	if header.Type != pdu.TypeReleaseRQ {
		a.transport.Close()
		return ulperrors.NewPDUError(header.Type, "expected A-RELEASE-RQ")
	}
	if err := pdu.DecodeRelease(body); err != nil {
		a.transport.Close()
		return err
	}
	return a.finishRelease()
}

// CompleteRelease finishes the acceptor side of the release handshake for a
// caller that has already read the A-RELEASE-RQ PDU itself — as
// ReceiveMessage does while assembling DIMSE messages off the same stream.
func (a *Association) CompleteRelease() error {
	return a.finishRelease()
}

func (a *Association) finishRelease() error {
	if _, err := a.machine.Fire(statemachine.EvAReleaseRQReceived); err != nil {
		return err
	}
	if _, err := a.machine.Fire(statemachine.EvAReleaseResponseLocal); err != nil {
		return err
	}
	a.transport.SetWriteDeadline(time.Now().Add(a.writeTimeout))
	if err := pdu.WriteHeaderAndBody(a.transport, pdu.TypeReleaseRP, pdu.EncodeReleaseRP()); err != nil {
		return ulperrors.NewNetworkError("send A-RELEASE-RP", err)
	}
	return a.transport.Close()
}

// Abort sends an A-ABORT PDU and tears the transport down immediately.
func (a *Association) Abort(reason byte) error {
	a.machine.Fire(statemachine.EvAAbortRequestLocal)
	a.transport.SetWriteDeadline(time.Now().Add(a.writeTimeout))
	pdu.WriteHeaderAndBody(a.transport, pdu.TypeAbort, pdu.EncodeAbort(pdu.Abort{
		Source: pdu.AbortSourceServiceUser,
		Reason: reason,
	}))
	return a.transport.Abort()
}

// NextPDU reads and classifies the next PDU after association
// establishment. An A-RELEASE-RQ is returned with a nil error, a decodable
// A-ABORT as an ulperrors.AbortError, and a transport read failure (such as
// io.EOF when the peer closes the connection) is passed through unchanged.
func (a *Association) NextPDU() (pdu.Header, []byte, error) {
	a.transport.SetReadDeadline(time.Time{})
	header, body, err := pdu.ReadHeaderAndBody(a.transport)
	if err != nil {
		return pdu.Header{}, nil, err
	}
	switch header.Type {
	case pdu.TypePDataTF:
		a.machine.Fire(statemachine.EvPDataTFReceived)
	case pdu.TypeReleaseRQ:
	case pdu.TypeAbort:
		ab, decodeErr := pdu.DecodeAbort(body)
		if decodeErr == nil {
			a.machine.Fire(statemachine.EvAAbortReceived)
			return header, body, ulperrors.NewAbortError(ab.Source, ab.Reason)
		}
	}
	return header, body, nil
}

// Close closes the underlying transport without performing a release
// handshake, for use after errors where the association is unrecoverable.
func (a *Association) Close() error {
	return a.transport.Close()
}

var _ io.Closer = (*Association)(nil)
