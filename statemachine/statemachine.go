// Package statemachine implements the thirteen-state DICOM Upper Layer
// state machine (PS3.8 §9.2, Table 9-10), as an explicit table-driven FSM
// rather than the ad hoc state implicit in a connection-handling loop. It
// knows nothing about sockets or PDU bytes; it only tracks which events are
// legal in which state and which action each (state, event) pair triggers.
package statemachine

import (
	"fmt"
	"sync"

	"github.com/dicomkit/ulp/types"
	"github.com/dicomkit/ulp/ulperrors"
)

// Event is one of the Upper Layer state machine's inputs: a local request
// primitive (A-ASSOCIATE, A-RELEASE, A-ABORT request, transport connect) or
// a PDU arriving from the peer.
type Event int

const (
	EvTransportConnectLocal Event = iota + 1 // A-E1: local request to open transport
	EvTransportConnected                     // A-E2: transport indication that connection opened
	EvTransportConnectionIndication           // A-E5: incoming transport connection at the acceptor
	EvAAssociateRequestLocal                  // A-E1: local A-ASSOCIATE request primitive
	EvAAssociateRQReceived                    // A-E6: A-ASSOCIATE-RQ PDU received
	EvAAssociateACReceived                    // A-E3: A-ASSOCIATE-AC PDU received
	EvAAssociateRJReceived                    // A-E4: A-ASSOCIATE-RJ PDU received
	EvAAssociateResponseAcceptLocal           // A-E7: local A-ASSOCIATE response (accept) primitive
	EvAAssociateResponseRejectLocal           // A-E8: local A-ASSOCIATE response (reject) primitive
	EvPDataTFReceived                         // A-E10: P-DATA-TF PDU received
	EvPDataRequestLocal                       // A-E9: local P-DATA request primitive
	EvAReleaseRequestLocal                    // A-E11: local A-RELEASE request primitive
	EvAReleaseRQReceived                      // A-E12: A-RELEASE-RQ PDU received
	EvAReleaseRPReceived                      // A-E13: A-RELEASE-RP PDU received
	EvAReleaseResponseLocal                   // A-E14: local A-RELEASE response primitive
	EvAAbortRequestLocal                      // A-E15: local A-ABORT request primitive
	EvAAbortReceived                          // A-E16: A-ABORT PDU received
	EvTransportClosedIndication               // A-E17: transport connection closed indication
	EvARTIMTimerExpired                       // A-E18: ARTIM timer expired
	EvInvalidPDUReceived                      // unrecognized or malformed PDU
)

// Action is what the state machine tells its caller to do in response to an
// event: send a specific PDU, deliver a primitive to the application, open
// or close the transport, or start/stop the ARTIM timer. The caller (assoc
// package) is responsible for actually performing the action; this package
// only decides which one applies.
type Action int

const (
	ActionNone Action = iota
	ActionIssueTransportConnect
	ActionSendAAssociateRQ
	ActionIndicateAAssociateRQToUser   // AE-6 variant where upper layer must decide accept/reject
	ActionSendAAssociateAC
	ActionSendAAssociateRJ
	ActionIndicateAAssociateACToUser
	ActionIndicateAAssociateRJToUser
	ActionSendPDataTF
	ActionIndicatePDataToUser
	ActionSendAReleaseRQ
	ActionSendAReleaseRP
	ActionIndicateAReleaseRQToUser
	ActionIndicateAReleaseACToUser
	ActionSendAAbort
	ActionIndicateAAbortToUser
	ActionIndicateTransportClosedToUser
	ActionCloseTransport
	ActionStartARTIMTimer
	ActionStopARTIMTimer
)

// transition is one entry of the state table: given State and Event, what
// Action fires and which State follows.
type transition struct {
	next   types.AssocState
	action Action
}

// table[state][event] mirrors PS3.8 Table 9-10. Entries not present are
// protocol errors in that state: Fire returns a ProtocolViolationError for
// them and leaves the state unchanged.
var table = map[types.AssocState]map[Event]transition{
	types.Sta1: {
		EvTransportConnectLocal:         {types.Sta4, ActionIssueTransportConnect},
		EvTransportConnectionIndication: {types.Sta2, ActionNone},
	},
	types.Sta2: {
		EvAAssociateRQReceived: {types.Sta3, ActionIndicateAAssociateRQToUser},
		EvAAbortReceived:       {types.Sta1, ActionCloseTransport},
		EvTransportClosedIndication: {types.Sta1, ActionNone},
		EvInvalidPDUReceived:   {types.Sta1, ActionSendAAbort},
	},
	types.Sta3: {
		EvAAssociateResponseAcceptLocal: {types.Sta6, ActionSendAAssociateAC},
		EvAAssociateResponseRejectLocal: {types.Sta13, ActionSendAAssociateRJ},
		EvAAbortRequestLocal:            {types.Sta1, ActionSendAAbort},
		EvTransportClosedIndication:     {types.Sta1, ActionNone},
	},
	types.Sta4: {
		EvTransportConnected: {types.Sta5, ActionSendAAssociateRQ},
	},
	types.Sta5: {
		EvAAssociateACReceived: {types.Sta6, ActionIndicateAAssociateACToUser},
		EvAAssociateRJReceived: {types.Sta1, ActionIndicateAAssociateRJToUser},
		EvAAbortReceived:       {types.Sta1, ActionCloseTransport},
		EvTransportClosedIndication: {types.Sta1, ActionIndicateTransportClosedToUser},
		EvARTIMTimerExpired:    {types.Sta1, ActionCloseTransport},
	},
	types.Sta6: {
		EvPDataRequestLocal:      {types.Sta6, ActionSendPDataTF},
		EvPDataTFReceived:        {types.Sta6, ActionIndicatePDataToUser},
		EvAReleaseRequestLocal:   {types.Sta7, ActionSendAReleaseRQ},
		EvAReleaseRQReceived:     {types.Sta8, ActionIndicateAReleaseRQToUser},
		EvAAbortRequestLocal:     {types.Sta13, ActionSendAAbort},
		EvAAbortReceived:         {types.Sta1, ActionIndicateAAbortToUser},
		EvTransportClosedIndication: {types.Sta1, ActionIndicateTransportClosedToUser},
	},
	types.Sta7: {
		EvAReleaseRPReceived:   {types.Sta1, ActionIndicateAReleaseACToUser},
		EvAReleaseRQReceived:   {types.Sta9, ActionNone}, // release collision
		EvAAbortReceived:       {types.Sta1, ActionIndicateAAbortToUser},
		EvTransportClosedIndication: {types.Sta1, ActionIndicateTransportClosedToUser},
	},
	types.Sta8: {
		EvAReleaseResponseLocal: {types.Sta13, ActionSendAReleaseRP},
		EvAAbortRequestLocal:    {types.Sta13, ActionSendAAbort},
		EvTransportClosedIndication: {types.Sta1, ActionIndicateTransportClosedToUser},
	},
	types.Sta9: {
		EvAReleaseResponseLocal: {types.Sta11, ActionSendAReleaseRP},
	},
	types.Sta10: {
		EvAReleaseRPReceived: {types.Sta12, ActionNone},
	},
	types.Sta11: {
		EvAReleaseRPReceived: {types.Sta1, ActionIndicateAReleaseACToUser},
	},
	types.Sta12: {
		EvAReleaseResponseLocal: {types.Sta1, ActionSendAReleaseRP},
	},
	types.Sta13: {
		EvTransportClosedIndication: {types.Sta1, ActionNone},
		EvARTIMTimerExpired:         {types.Sta1, ActionCloseTransport},
		EvAAbortReceived:            {types.Sta1, ActionCloseTransport},
	},
}

// Machine is one association's state machine instance. It is safe for
// concurrent use: Fire serializes transitions under an internal mutex, the
// same way an Association guards its mutable fields.
type Machine struct {
	mu    sync.Mutex
	state types.AssocState
}

// New returns a Machine starting in Sta1 (Idle).
func New() *Machine {
	return &Machine{state: types.Sta1}
}

// State returns the current association state.
func (m *Machine) State() types.AssocState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fire applies ev to the machine's current state, returning the Action the
// caller must now perform. An event illegal in the current state returns
// ulperrors.ProtocolViolationError and leaves the state unchanged; per
// PS3.8's AA-8 action the caller should treat this as cause to abort.
func (m *Machine) Fire(ev Event) (Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stateTable, ok := table[m.state]
	if !ok {
		return ActionNone, fmt.Errorf("statemachine: no transition table for state %s", m.state)
	}
	t, ok := stateTable[ev]
	if !ok {
		return ActionNone, ulperrors.NewProtocolViolationError(m.state.String(), eventName(ev))
	}
	m.state = t.next
	return t.action, nil
}

// Reset forces the machine back to Sta1, for reuse across connections in a
// pooled acceptor.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = types.Sta1
}

func eventName(ev Event) string {
	names := map[Event]string{
		EvTransportConnectLocal:          "transport-connect(local)",
		EvTransportConnected:             "transport-connected",
		EvTransportConnectionIndication:  "transport-connection-indication",
		EvAAssociateRequestLocal:         "A-ASSOCIATE-request(local)",
		EvAAssociateRQReceived:           "A-ASSOCIATE-RQ",
		EvAAssociateACReceived:           "A-ASSOCIATE-AC",
		EvAAssociateRJReceived:           "A-ASSOCIATE-RJ",
		EvAAssociateResponseAcceptLocal:  "A-ASSOCIATE-response-accept(local)",
		EvAAssociateResponseRejectLocal:  "A-ASSOCIATE-response-reject(local)",
		EvPDataTFReceived:                "P-DATA-TF",
		EvPDataRequestLocal:              "P-DATA-request(local)",
		EvAReleaseRequestLocal:           "A-RELEASE-request(local)",
		EvAReleaseRQReceived:             "A-RELEASE-RQ",
		EvAReleaseRPReceived:             "A-RELEASE-RP",
		EvAReleaseResponseLocal:          "A-RELEASE-response(local)",
		EvAAbortRequestLocal:             "A-ABORT-request(local)",
		EvAAbortReceived:                 "A-ABORT",
		EvTransportClosedIndication:      "transport-closed-indication",
		EvARTIMTimerExpired:              "ARTIM-expired",
		EvInvalidPDUReceived:             "invalid-PDU",
	}
	if n, ok := names[ev]; ok {
		return n
	}
	return "unknown-event"
}
