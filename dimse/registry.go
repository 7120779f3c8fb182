package dimse

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dicomkit/ulp/dataset"
	"github.com/dicomkit/ulp/types"
)

// Registry routes incoming DIMSE command sets to the service handler
// registered for their command field. Grounded on the teacher's
// services.Registry, generalized to dispatch DIMSE-N commands as well as
// DIMSE-C.
type Registry struct {
	handlers map[uint16]ServiceHandler
}

// NewRegistry creates an empty registry. Use RegisterHandler to add service
// handlers before serving an association.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[uint16]ServiceHandler)}
}

// RegisterHandler registers handler for commandField (e.g. types.CEchoRQ).
// A second call for the same command field replaces the previous handler.
func (r *Registry) RegisterHandler(commandField uint16, handler ServiceHandler) {
	r.handlers[commandField] = handler
}

// HasHandler reports whether a handler is registered for commandField.
func (r *Registry) HasHandler(commandField uint16) bool {
	_, ok := r.handlers[commandField]
	return ok
}

// IsStreaming reports whether commandField's registered handler implements
// StreamingServiceHandler, so a caller like dimse.Serve can decide whether
// the operation needs to run concurrently with further reads (to observe an
// in-band C-CANCEL-RQ) rather than being handled inline.
func (r *Registry) IsStreaming(commandField uint16) bool {
	handler, ok := r.handlers[commandField]
	if !ok {
		return false
	}
	_, ok = handler.(StreamingServiceHandler)
	return ok
}

// HandleDIMSE routes msg to its registered handler's single-response path.
// If the handler also implements StreamingServiceHandler, HandleDIMSE still
// uses only its HandleDIMSE method — callers that want streaming must call
// HandleDIMSEStreaming explicitly.
func (r *Registry) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta MessageContext) (*types.Message, *dataset.Dataset, error) {
	handler, ok := r.handlers[msg.CommandField]
	if !ok {
		log.Warn().Uint16("command_field", msg.CommandField).Msg("no handler registered for DIMSE command")
		return nil, nil, fmt.Errorf("dimse: unsupported command 0x%04x", msg.CommandField)
	}
	return handler.HandleDIMSE(ctx, msg, data, meta)
}

// HandleDIMSEStreaming routes msg to its registered handler, preferring a
// StreamingServiceHandler implementation and falling back to a single
// HandleDIMSE call (reported through responder) otherwise.
func (r *Registry) HandleDIMSEStreaming(ctx context.Context, msg *types.Message, data []byte, meta MessageContext, responder ResponseSender) error {
	handler, ok := r.handlers[msg.CommandField]
	if !ok {
		log.Warn().Uint16("command_field", msg.CommandField).Msg("no handler registered for DIMSE command")
		return fmt.Errorf("dimse: unsupported command 0x%04x", msg.CommandField)
	}

	if streaming, ok := handler.(StreamingServiceHandler); ok {
		return streaming.HandleDIMSEStreaming(ctx, msg, data, meta, responder)
	}

	responseMsg, responseDataset, err := handler.HandleDIMSE(ctx, msg, data, meta)
	if err != nil {
		return err
	}
	return responder.SendResponse(responseMsg, responseDataset)
}

// CreateErrorResponse builds a generic error response to req with the given
// status, for use when dispatch itself fails (no handler registered, a
// panic recovered, etc).
func CreateErrorResponse(req *types.Message, status uint16) *types.Message {
	return &types.Message{
		CommandField:              types.ResponseCommandFor(req.CommandField),
		MessageIDBeingRespondedTo: req.MessageID,
		AffectedSOPClassUID:       req.AffectedSOPClassUID,
		CommandDataSetType:        NoDataSetPresent,
		Status:                    status,
	}
}
