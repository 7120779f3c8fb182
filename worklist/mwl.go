package worklist

import (
	"context"
	"sync"

	"github.com/dicomkit/ulp/dataset"
	"github.com/dicomkit/ulp/dimse"
	"github.com/dicomkit/ulp/types"
)

// ScheduledProcedureStep is one entry in a Store's worklist, matched against
// an incoming C-FIND identifier on its scalar attributes.
type ScheduledProcedureStep struct {
	ScheduledStationAETitle string
	StartDate               string
	StartTime               string
	PerformingPhysician     string
	Description             string
	StepID                  string
	RequestedProcedureID    string
}

// Store holds the scheduled procedure steps an MWL SCP answers C-FIND
// against. The core never persists this list itself (§3.10-style Non-goal);
// callers populate it from whatever RIS/HIS feed they have.
type Store struct {
	mu    sync.Mutex
	steps []ScheduledProcedureStep
}

// NewStore returns an empty Store.
func NewStore() *Store { return &Store{} }

// Add appends a scheduled procedure step to the worklist.
func (s *Store) Add(step ScheduledProcedureStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
}

// Query returns every step matching the non-empty scalar fields of
// identifier; an empty identifier field matches any value (DICOM "universal
// match"). The fields checked are Scheduled Station AE Title, start date,
// performing physician, step description, step ID, and requested procedure
// ID, so a worklist SCU can narrow by more than AE title and date; other
// identifier attributes (such as start time or step status) are not matched.
func (s *Store) Query(identifier *dataset.Dataset) []ScheduledProcedureStep {
	s.mu.Lock()
	defer s.mu.Unlock()

	criteria := stepCriteriaFrom(identifier)

	var matches []ScheduledProcedureStep
	for _, step := range s.steps {
		if criteria.matches(step) {
			matches = append(matches, step)
		}
	}
	return matches
}

// stepCriteria holds the non-empty scalar fields of a C-FIND identifier that
// this module knows how to match against a ScheduledProcedureStep.
type stepCriteria struct {
	aeTitle              string
	startDate            string
	performingPhysician  string
	description          string
	stepID               string
	requestedProcedureID string
}

func stepCriteriaFrom(identifier *dataset.Dataset) stepCriteria {
	if identifier == nil {
		return stepCriteria{}
	}
	return stepCriteria{
		aeTitle:              identifier.GetString(TagScheduledStationAETitle),
		startDate:            identifier.GetString(TagScheduledProcedureStepStartDate),
		performingPhysician:  identifier.GetString(TagScheduledPerformingPhysician),
		description:          identifier.GetString(TagScheduledProcedureStepDescription),
		stepID:               identifier.GetString(TagScheduledProcedureStepID),
		requestedProcedureID: identifier.GetString(TagRequestedProcedureID),
	}
}

func (c stepCriteria) matches(step ScheduledProcedureStep) bool {
	if c.aeTitle != "" && step.ScheduledStationAETitle != c.aeTitle {
		return false
	}
	if c.startDate != "" && step.StartDate != c.startDate {
		return false
	}
	if c.performingPhysician != "" && step.PerformingPhysician != c.performingPhysician {
		return false
	}
	if c.description != "" && step.Description != c.description {
		return false
	}
	if c.stepID != "" && step.StepID != c.stepID {
		return false
	}
	if c.requestedProcedureID != "" && step.RequestedProcedureID != c.requestedProcedureID {
		return false
	}
	return true
}

// toDataset renders one scheduled procedure step as a C-FIND match
// identifier.
func (step ScheduledProcedureStep) toDataset() *dataset.Dataset {
	ds := dataset.NewDataset()
	ds.AddElement(TagScheduledStationAETitle, dataset.VR_AE, step.ScheduledStationAETitle)
	ds.AddElement(TagScheduledProcedureStepStartDate, dataset.VR_DA, step.StartDate)
	ds.AddElement(TagScheduledProcedureStepStartTime, dataset.VR_TM, step.StartTime)
	ds.AddElement(TagScheduledPerformingPhysician, dataset.VR_PN, step.PerformingPhysician)
	ds.AddElement(TagScheduledProcedureStepDescription, dataset.VR_LO, step.Description)
	ds.AddElement(TagScheduledProcedureStepID, dataset.VR_SH, step.StepID)
	ds.AddElement(TagScheduledProcedureStepStatus, dataset.VR_CS, "SCHEDULED")
	ds.AddElement(TagRequestedProcedureID, dataset.VR_SH, step.RequestedProcedureID)
	return ds
}

// FindHandler answers Modality Worklist C-FIND requests from a Store,
// streaming one Pending response per match followed by a Success final
// response — the same shape as any other C-FIND SCP, grounded on the
// teacher's CFindRQ streaming handler shape.
type FindHandler struct {
	Store *Store
}

// HandleDIMSE satisfies dimse.ServiceHandler so a FindHandler can be
// registered directly; dimse.Registry always prefers HandleDIMSEStreaming
// for a CFindRQ handler, so this path only fires for callers that bypass
// the registry's streaming entry point.
func (h *FindHandler) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta dimse.MessageContext) (*types.Message, *dataset.Dataset, error) {
	if msg.AffectedSOPClassUID != types.ModalityWorklistInformationModelFind {
		return dimse.CreateErrorResponse(msg, types.StatusRefused), nil, nil
	}
	matches := h.Store.Query(meta.Dataset)
	if len(matches) == 0 {
		return dimse.NewResponseBuilder(msg).CFindResponse(types.StatusSuccess, false), nil, nil
	}
	return dimse.NewResponseBuilder(msg).CFindResponse(types.StatusPending, true), matches[0].toDataset(), nil
}

func (h *FindHandler) HandleDIMSEStreaming(ctx context.Context, msg *types.Message, data []byte, meta dimse.MessageContext, responder dimse.ResponseSender) error {
	b := dimse.NewResponseBuilder(msg)

	if msg.AffectedSOPClassUID != types.ModalityWorklistInformationModelFind {
		return responder.SendResponse(dimse.CreateErrorResponse(msg, types.StatusRefused), nil)
	}

	for _, step := range h.Store.Query(meta.Dataset) {
		select {
		case <-ctx.Done():
			return responder.SendResponse(b.CFindResponse(types.StatusCancel, false), nil)
		default:
		}
		if err := responder.SendResponse(b.CFindResponse(types.StatusPending, true), step.toDataset()); err != nil {
			return err
		}
	}

	return responder.SendResponse(b.CFindResponse(types.StatusSuccess, false), nil)
}
