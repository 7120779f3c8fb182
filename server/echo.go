package server

import (
	"context"

	"github.com/dicomkit/ulp/dataset"
	"github.com/dicomkit/ulp/dimse"
	"github.com/dicomkit/ulp/types"
)

// EchoHandler answers C-ECHO-RQ with an unconditional success, per PS3.7
// §9.1.5 — Verification has no semantics beyond confirming the association
// is alive. Grounded on the teacher's sampleHandler CEchoRQ branch.
type EchoHandler struct{}

func (EchoHandler) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta dimse.MessageContext) (*types.Message, *dataset.Dataset, error) {
	return dimse.NewResponseBuilder(msg).CEchoResponse(types.StatusSuccess), nil, nil
}
