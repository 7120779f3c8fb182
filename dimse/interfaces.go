package dimse

import (
	"context"

	"github.com/dicomkit/ulp/dataset"
	"github.com/dicomkit/ulp/types"
)

// MessageContext carries the metadata a service handler needs alongside the
// command and dataset: which presentation context the message arrived on,
// what transfer syntax it used, and the already-decoded dataset (if any).
// The teacher's interfaces package referenced an equivalent type from
// dimse/service.go without ever declaring it; this is the corrected,
// consistently-used version.
type MessageContext struct {
	PresentationContextID byte
	TransferSyntaxUID     string
	Dataset               *dataset.Dataset
}

// ServiceHandler handles a single-response DIMSE operation (C-ECHO, C-STORE,
// N-GET, N-SET, N-ACTION, N-CREATE, N-DELETE).
type ServiceHandler interface {
	HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta MessageContext) (*types.Message, *dataset.Dataset, error)
}

// ResponseSender lets a streaming handler emit intermediate responses
// before its final one.
type ResponseSender interface {
	SendResponse(msg *types.Message, data *dataset.Dataset) error
}

// CGetResponder extends ResponseSender with the ability to issue C-STORE
// sub-operations on the same association, as C-GET-RQ requires.
type CGetResponder interface {
	ResponseSender
	SendCStore(sopClassUID, sopInstanceUID string, data *dataset.Dataset) error
}

// StreamingServiceHandler handles a DIMSE operation that may produce
// multiple responses (C-FIND, C-MOVE, C-GET) before its final status.
type StreamingServiceHandler interface {
	HandleDIMSEStreaming(ctx context.Context, msg *types.Message, data []byte, meta MessageContext, responder ResponseSender) error
}
