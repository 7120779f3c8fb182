package worklist

import (
	"context"
	"testing"

	"github.com/dicomkit/ulp/dataset"
	"github.com/dicomkit/ulp/dimse"
	"github.com/dicomkit/ulp/types"
)

func TestMPPSLifecycle(t *testing.T) {
	m := NewManager()

	inst, err := m.Create("1.2.3.4", "20260730", "120000", "CT CHEST")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if inst.Status != MPPSStatusInProgress {
		t.Fatalf("Status = %q, want IN PROGRESS", inst.Status)
	}

	if _, err := m.SetTerminalStatus("1.2.3.4", MPPSStatusCompleted, "20260730", "123000"); err != nil {
		t.Fatalf("SetTerminalStatus: %v", err)
	}

	if _, err := m.SetTerminalStatus("1.2.3.4", MPPSStatusDiscontinued, "20260730", "123500"); err != ErrTerminalState {
		t.Fatalf("second terminal N-SET error = %v, want ErrTerminalState", err)
	}
}

func TestMPPSCreateDuplicateUID(t *testing.T) {
	m := NewManager()
	if _, err := m.Create("1.2.3.4", "", "", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Create("1.2.3.4", "", "", ""); err == nil {
		t.Fatal("expected error creating duplicate MPPS instance UID")
	}
}

func TestMPPSHandlersViaRegistry(t *testing.T) {
	registry := dimse.NewRegistry()
	manager := NewManager()
	RegisterHandlers(registry, manager)
	ctx := context.Background()

	createReq := &types.Message{
		CommandField:           types.NCreateRQ,
		MessageID:              1,
		AffectedSOPClassUID:    types.ModalityPerformedProcedureStepSOPClass,
		AffectedSOPInstanceUID: "1.2.840.mpps.1",
	}
	resp, _, err := registry.HandleDIMSE(ctx, createReq, nil, dimse.MessageContext{})
	if err != nil {
		t.Fatalf("N-CREATE: %v", err)
	}
	if resp.Status != types.StatusSuccess {
		t.Fatalf("N-CREATE response = %+v", resp)
	}

	setDS := dataset.NewDataset()
	setDS.AddElement(TagPerformedProcedureStepStatus, dataset.VR_CS, MPPSStatusCompleted)
	setReq := &types.Message{
		CommandField:            types.NSetRQ,
		MessageID:               2,
		RequestedSOPClassUID:    types.ModalityPerformedProcedureStepSOPClass,
		RequestedSOPInstanceUID: "1.2.840.mpps.1",
	}
	resp, _, err = registry.HandleDIMSE(ctx, setReq, nil, dimse.MessageContext{Dataset: setDS})
	if err != nil {
		t.Fatalf("N-SET: %v", err)
	}
	if resp.Status != types.StatusSuccess {
		t.Fatalf("terminal N-SET response = %+v", resp)
	}

	resp, _, err = registry.HandleDIMSE(ctx, setReq, nil, dimse.MessageContext{Dataset: setDS})
	if err != nil {
		t.Fatalf("N-SET: %v", err)
	}
	if resp.Status != 0x0110 {
		t.Fatalf("second terminal N-SET Status = 0x%04x, want 0x0110", resp.Status)
	}
}
