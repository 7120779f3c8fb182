package print

import (
	"context"
	"testing"

	"github.com/dicomkit/ulp/dataset"
	"github.com/dicomkit/ulp/dimse"
	"github.com/dicomkit/ulp/types"
)

func TestRegisterHandlersFullLifecycle(t *testing.T) {
	registry := dimse.NewRegistry()
	manager := NewManager()
	RegisterHandlers(registry, manager, Grayscale)
	ctx := context.Background()

	createSession := &types.Message{
		CommandField:        types.NCreateRQ,
		MessageID:           1,
		AffectedSOPClassUID: types.BasicFilmSessionSOPClass,
	}
	resp, _, err := registry.HandleDIMSE(ctx, createSession, nil, dimse.MessageContext{})
	if err != nil {
		t.Fatalf("N-CREATE film session: %v", err)
	}
	if resp.Status != types.StatusSuccess || resp.AffectedSOPInstanceUID == "" {
		t.Fatalf("N-CREATE film session response = %+v", resp)
	}
	sessionUID := resp.AffectedSOPInstanceUID

	boxDS := dataset.NewDataset()
	boxDS.AddElement(TagReferencedFilmSessionSeq, dataset.VR_UI, sessionUID)
	boxDS.AddElement(TagImageDisplayFormat, dataset.VR_CS, "STANDARD\\1,2")
	createBox := &types.Message{
		CommandField:        types.NCreateRQ,
		MessageID:           2,
		AffectedSOPClassUID: types.BasicFilmBoxSOPClass,
	}
	resp, respDS, err := registry.HandleDIMSE(ctx, createBox, nil, dimse.MessageContext{Dataset: boxDS})
	if err != nil {
		t.Fatalf("N-CREATE film box: %v", err)
	}
	if resp.Status != types.StatusSuccess || resp.AffectedSOPInstanceUID == "" {
		t.Fatalf("N-CREATE film box response = %+v", resp)
	}
	boxUID := resp.AffectedSOPInstanceUID
	if respDS == nil || respDS.GetString(TagReferencedImageBoxSeq) == "" {
		t.Fatalf("N-CREATE film box dataset = %+v", respDS)
	}

	actionReq := &types.Message{
		CommandField:            types.NActionRQ,
		MessageID:               3,
		RequestedSOPClassUID:    types.BasicFilmBoxSOPClass,
		RequestedSOPInstanceUID: boxUID,
		ActionTypeID:            uint16Ptr(ActionTypePrint),
	}
	resp, _, err = registry.HandleDIMSE(ctx, actionReq, nil, dimse.MessageContext{})
	if err != nil {
		t.Fatalf("N-ACTION print: %v", err)
	}
	if resp.Status != types.StatusSuccess || resp.AffectedSOPInstanceUID == "" {
		t.Fatalf("N-ACTION print response = %+v, want non-empty print job UID", resp)
	}

	deleteReq := &types.Message{
		CommandField:            types.NDeleteRQ,
		MessageID:               4,
		RequestedSOPClassUID:    types.BasicFilmSessionSOPClass,
		RequestedSOPInstanceUID: sessionUID,
	}
	resp, _, err = registry.HandleDIMSE(ctx, deleteReq, nil, dimse.MessageContext{})
	if err != nil {
		t.Fatalf("N-DELETE film session: %v", err)
	}
	if resp.Status != types.StatusSuccess {
		t.Fatalf("N-DELETE film session response = %+v", resp)
	}
}

func TestNActionPrintRejectsWrongSOPClass(t *testing.T) {
	registry := dimse.NewRegistry()
	manager := NewManager()
	RegisterHandlers(registry, manager, Grayscale)

	req := &types.Message{
		CommandField:            types.NActionRQ,
		RequestedSOPClassUID:    types.BasicFilmSessionSOPClass,
		RequestedSOPInstanceUID: "1.2.3",
		ActionTypeID:            uint16Ptr(ActionTypePrint),
	}
	resp, _, err := registry.HandleDIMSE(context.Background(), req, nil, dimse.MessageContext{})
	if err != nil {
		t.Fatalf("HandleDIMSE: %v", err)
	}
	if resp.Status == types.StatusSuccess {
		t.Fatal("expected non-success status for N-ACTION on a film session")
	}
}

func uint16Ptr(v uint16) *uint16 { return &v }
