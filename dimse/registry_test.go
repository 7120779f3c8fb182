package dimse

import (
	"context"
	"testing"

	"github.com/dicomkit/ulp/dataset"
	"github.com/dicomkit/ulp/types"
)

type echoHandler struct{}

func (echoHandler) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta MessageContext) (*types.Message, *dataset.Dataset, error) {
	return NewResponseBuilder(msg).CEchoResponse(types.StatusSuccess), nil, nil
}

type recordingResponder struct {
	responses []*types.Message
}

func (r *recordingResponder) SendResponse(msg *types.Message, ds *dataset.Dataset) error {
	r.responses = append(r.responses, msg)
	return nil
}

func TestRegistryHandleDIMSE(t *testing.T) {
	r := NewRegistry()
	r.RegisterHandler(types.CEchoRQ, echoHandler{})

	if !r.HasHandler(types.CEchoRQ) {
		t.Fatal("expected handler registered for C-ECHO-RQ")
	}

	req := &types.Message{CommandField: types.CEchoRQ, MessageID: 5}
	resp, _, err := r.HandleDIMSE(context.Background(), req, nil, MessageContext{})
	if err != nil {
		t.Fatalf("HandleDIMSE: %v", err)
	}
	if resp.CommandField != types.CEchoRSP {
		t.Errorf("CommandField = 0x%04x, want C-ECHO-RSP", resp.CommandField)
	}
	if resp.MessageIDBeingRespondedTo != 5 {
		t.Errorf("MessageIDBeingRespondedTo = %d, want 5", resp.MessageIDBeingRespondedTo)
	}
}

func TestRegistryHandleDIMSEUnregistered(t *testing.T) {
	r := NewRegistry()
	req := &types.Message{CommandField: types.CFindRQ}
	if _, _, err := r.HandleDIMSE(context.Background(), req, nil, MessageContext{}); err == nil {
		t.Fatal("expected error for unregistered command")
	}
}

func TestRegistryHandleDIMSEStreamingFallsBackToSingleResponse(t *testing.T) {
	r := NewRegistry()
	r.RegisterHandler(types.CEchoRQ, echoHandler{})

	req := &types.Message{CommandField: types.CEchoRQ, MessageID: 9}
	responder := &recordingResponder{}
	if err := r.HandleDIMSEStreaming(context.Background(), req, nil, MessageContext{}, responder); err != nil {
		t.Fatalf("HandleDIMSEStreaming: %v", err)
	}
	if len(responder.responses) != 1 {
		t.Fatalf("got %d responses, want 1", len(responder.responses))
	}
	if responder.responses[0].CommandField != types.CEchoRSP {
		t.Errorf("CommandField = 0x%04x, want C-ECHO-RSP", responder.responses[0].CommandField)
	}
}

func TestCreateErrorResponse(t *testing.T) {
	req := &types.Message{CommandField: types.CFindRQ, MessageID: 3, AffectedSOPClassUID: "1.2.3"}
	resp := CreateErrorResponse(req, 0xA900)
	if resp.CommandField != types.CFindRSP {
		t.Errorf("CommandField = 0x%04x, want C-FIND-RSP", resp.CommandField)
	}
	if resp.Status != 0xA900 {
		t.Errorf("Status = 0x%04x, want 0xA900", resp.Status)
	}
	if resp.MessageIDBeingRespondedTo != 3 {
		t.Errorf("MessageIDBeingRespondedTo = %d, want 3", resp.MessageIDBeingRespondedTo)
	}
}
