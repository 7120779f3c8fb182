package worklist

import (
	"context"
	"fmt"
	"sync"

	"github.com/dicomkit/ulp/dataset"
	"github.com/dicomkit/ulp/dimse"
	"github.com/dicomkit/ulp/types"
	"github.com/dicomkit/ulp/uidgen"
)

// MPPS status values (PS3.3 C.4.19).
const (
	MPPSStatusInProgress   = "IN PROGRESS"
	MPPSStatusCompleted    = "COMPLETED"
	MPPSStatusDiscontinued = "DISCONTINUED"
)

// ErrTerminalState is returned when a caller attempts to N-SET an MPPS
// instance that has already reached a terminal status; PS3.4 Annex F
// permits exactly one terminal N-SET per instance.
var ErrTerminalState = fmt.Errorf("worklist: MPPS instance already in a terminal state")

// MPPSInstance is one Performed Procedure Step's lifecycle: created
// IN PROGRESS by N-CREATE (under the requester's SOP Instance UID, or one
// the acceptor mints when the request leaves it empty), ending with exactly
// one terminal N-SET.
type MPPSInstance struct {
	SOPInstanceUID string
	Status         string
	StartDate      string
	StartTime      string
	EndDate        string
	EndTime        string
	Description    string
}

func (i *MPPSInstance) isTerminal() bool {
	return i.Status == MPPSStatusCompleted || i.Status == MPPSStatusDiscontinued
}

// Manager tracks in-flight MPPS instances for one association.
type Manager struct {
	mu        sync.Mutex
	instances map[string]*MPPSInstance
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{instances: make(map[string]*MPPSInstance)}
}

// Create registers a new MPPS instance in IN PROGRESS status under the
// caller-assigned sopInstanceUID. Returns an error if the UID is already in
// use.
func (m *Manager) Create(sopInstanceUID, startDate, startTime, description string) (*MPPSInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.instances[sopInstanceUID]; exists {
		return nil, fmt.Errorf("worklist: MPPS instance %q already exists", sopInstanceUID)
	}
	inst := &MPPSInstance{
		SOPInstanceUID: sopInstanceUID,
		Status:         MPPSStatusInProgress,
		StartDate:      startDate,
		StartTime:      startTime,
		Description:    description,
	}
	m.instances[sopInstanceUID] = inst
	return inst, nil
}

// SetTerminalStatus transitions an MPPS instance to COMPLETED or
// DISCONTINUED. Returns ErrTerminalState if the instance has already
// reached a terminal status — only one terminal N-SET is permitted.
func (m *Manager) SetTerminalStatus(sopInstanceUID, status, endDate, endTime string) (*MPPSInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[sopInstanceUID]
	if !ok {
		return nil, fmt.Errorf("worklist: no MPPS instance %q", sopInstanceUID)
	}
	if inst.isTerminal() {
		return nil, ErrTerminalState
	}
	inst.Status = status
	inst.EndDate = endDate
	inst.EndTime = endTime
	return inst, nil
}

// Get returns the MPPS instance for sopInstanceUID.
func (m *Manager) Get(sopInstanceUID string) (*MPPSInstance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[sopInstanceUID]
	return inst, ok
}

// RegisterHandlers wires an MPPS Manager's N-CREATE and N-SET operations
// into registry.
func RegisterHandlers(registry *dimse.Registry, manager *Manager) {
	registry.RegisterHandler(types.NCreateRQ, &mppsCreateHandler{manager: manager})
	registry.RegisterHandler(types.NSetRQ, &mppsSetHandler{manager: manager})
}

type mppsCreateHandler struct{ manager *Manager }

func (h *mppsCreateHandler) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta dimse.MessageContext) (*types.Message, *dataset.Dataset, error) {
	b := dimse.NewResponseBuilder(msg)

	if msg.AffectedSOPClassUID != types.ModalityPerformedProcedureStepSOPClass {
		return dimse.CreateErrorResponse(msg, types.StatusRefused), nil, nil
	}
	sopInstanceUID := msg.AffectedSOPInstanceUID
	if sopInstanceUID == "" {
		sopInstanceUID = uidgen.New()
	}

	var startDate, startTime, description string
	if meta.Dataset != nil {
		startDate = meta.Dataset.GetString(TagPerformedProcedureStepStartDate)
		startTime = meta.Dataset.GetString(TagPerformedProcedureStepStartTime)
		description = meta.Dataset.GetString(TagPerformedProcedureStepDescription)
	}

	if _, err := h.manager.Create(sopInstanceUID, startDate, startTime, description); err != nil {
		return b.NCreateResponse(types.StatusRefused, sopInstanceUID), nil, nil
	}
	return b.NCreateResponse(types.StatusSuccess, sopInstanceUID), nil, nil
}

type mppsSetHandler struct{ manager *Manager }

func (h *mppsSetHandler) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta dimse.MessageContext) (*types.Message, *dataset.Dataset, error) {
	b := dimse.NewResponseBuilder(msg)

	if msg.RequestedSOPClassUID != types.ModalityPerformedProcedureStepSOPClass {
		return dimse.CreateErrorResponse(msg, types.StatusRefused), nil, nil
	}

	var status, endDate, endTime string
	if meta.Dataset != nil {
		status = meta.Dataset.GetString(TagPerformedProcedureStepStatus)
		endDate = meta.Dataset.GetString(TagPerformedProcedureStepEndDate)
		endTime = meta.Dataset.GetString(TagPerformedProcedureStepEndTime)
	}
	if status != MPPSStatusCompleted && status != MPPSStatusDiscontinued {
		return b.NSetResponse(types.StatusRefused), nil, nil
	}

	if _, err := h.manager.SetTerminalStatus(msg.RequestedSOPInstanceUID, status, endDate, endTime); err != nil {
		if err == ErrTerminalState {
			return b.NSetResponse(0x0110), nil, nil
		}
		return b.NSetResponse(types.StatusRefused), nil, nil
	}
	return b.NSetResponse(types.StatusSuccess), nil, nil
}
