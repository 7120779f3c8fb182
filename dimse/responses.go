package dimse

import "github.com/dicomkit/ulp/types"

// ResponseBuilder produces well-formed response command sets for a given
// request, filling in MessageIDBeingRespondedTo and AffectedSOPClassUID
// automatically. Grounded on the teacher's services.ResponseBuilder.
type ResponseBuilder struct {
	request *types.Message
}

// NewResponseBuilder returns a builder for responses to request.
func NewResponseBuilder(request *types.Message) *ResponseBuilder {
	return &ResponseBuilder{request: request}
}

// CEchoResponse builds a C-ECHO-RSP with the given status and no dataset.
func (b *ResponseBuilder) CEchoResponse(status uint16) *types.Message {
	return &types.Message{
		CommandField:              types.CEchoRSP,
		MessageIDBeingRespondedTo: b.request.MessageID,
		AffectedSOPClassUID:       types.VerificationSOPClass,
		CommandDataSetType:        NoDataSetPresent,
		Status:                    status,
	}
}

// CFindResponse builds a C-FIND-RSP. Set hasDataset true for a pending
// response carrying a match, false for the final response.
func (b *ResponseBuilder) CFindResponse(status uint16, hasDataset bool) *types.Message {
	datasetType := uint16(NoDataSetPresent)
	if hasDataset {
		datasetType = 0x0000
	}
	return &types.Message{
		CommandField:              types.CFindRSP,
		MessageIDBeingRespondedTo: b.request.MessageID,
		AffectedSOPClassUID:       b.request.AffectedSOPClassUID,
		CommandDataSetType:        datasetType,
		Status:                    status,
	}
}

// CMoveResponse builds a C-MOVE-RSP with sub-operation counters. Any
// counter may be nil where not applicable.
func (b *ResponseBuilder) CMoveResponse(status uint16, completed, failed, warning, remaining *uint16) *types.Message {
	return &types.Message{
		CommandField:                   types.CMoveRSP,
		MessageIDBeingRespondedTo:      b.request.MessageID,
		AffectedSOPClassUID:            b.request.AffectedSOPClassUID,
		CommandDataSetType:             NoDataSetPresent,
		Status:                         status,
		NumberOfCompletedSuboperations: completed,
		NumberOfFailedSuboperations:    failed,
		NumberOfWarningSuboperations:   warning,
		NumberOfRemainingSuboperations: remaining,
	}
}

// CGetResponse builds a C-GET-RSP with sub-operation counters, mirroring
// CMoveResponse (C-GET and C-MOVE share the same response shape per PS3.7).
func (b *ResponseBuilder) CGetResponse(status uint16, completed, failed, warning, remaining *uint16) *types.Message {
	return &types.Message{
		CommandField:                   types.CGetRSP,
		MessageIDBeingRespondedTo:      b.request.MessageID,
		AffectedSOPClassUID:            b.request.AffectedSOPClassUID,
		CommandDataSetType:             NoDataSetPresent,
		Status:                         status,
		NumberOfCompletedSuboperations: completed,
		NumberOfFailedSuboperations:    failed,
		NumberOfWarningSuboperations:   warning,
		NumberOfRemainingSuboperations: remaining,
	}
}

// CStoreResponse builds a C-STORE-RSP. If sopInstanceUID is empty, the
// request's AffectedSOPInstanceUID is echoed back.
func (b *ResponseBuilder) CStoreResponse(status uint16, sopInstanceUID string) *types.Message {
	if sopInstanceUID == "" {
		sopInstanceUID = b.request.AffectedSOPInstanceUID
	}
	return &types.Message{
		CommandField:              types.CStoreRSP,
		MessageIDBeingRespondedTo: b.request.MessageID,
		AffectedSOPClassUID:       b.request.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    sopInstanceUID,
		CommandDataSetType:        NoDataSetPresent,
		Status:                    status,
	}
}

// NCreateResponse builds an N-CREATE-RSP, optionally with an assigned SOP
// Instance UID (the print SCP fills this in for new film boxes/sessions).
func (b *ResponseBuilder) NCreateResponse(status uint16, sopInstanceUID string) *types.Message {
	return &types.Message{
		CommandField:              types.NCreateRSP,
		MessageIDBeingRespondedTo: b.request.MessageID,
		AffectedSOPClassUID:       b.request.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    sopInstanceUID,
		CommandDataSetType:        NoDataSetPresent,
		Status:                    status,
	}
}

// NSetResponse builds an N-SET-RSP.
func (b *ResponseBuilder) NSetResponse(status uint16) *types.Message {
	return &types.Message{
		CommandField:              types.NSetRSP,
		MessageIDBeingRespondedTo: b.request.MessageID,
		AffectedSOPClassUID:       b.request.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    b.request.RequestedSOPInstanceUID,
		CommandDataSetType:        NoDataSetPresent,
		Status:                    status,
	}
}

// NActionResponse builds an N-ACTION-RSP. affectedSOPInstanceUID is the
// instance the action created or acted on (e.g. a freshly minted Print Job
// UID for the "Print" action); pass the requested instance UID back when the
// action has no instance of its own to report.
func (b *ResponseBuilder) NActionResponse(status uint16, affectedSOPInstanceUID string) *types.Message {
	return &types.Message{
		CommandField:              types.NActionRSP,
		MessageIDBeingRespondedTo: b.request.MessageID,
		AffectedSOPClassUID:       b.request.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    affectedSOPInstanceUID,
		ActionTypeID:              b.request.ActionTypeID,
		CommandDataSetType:        NoDataSetPresent,
		Status:                    status,
	}
}

// NGetResponse builds an N-GET-RSP. Set hasDataset true when the handler is
// attaching the instance's current attribute set.
func (b *ResponseBuilder) NGetResponse(status uint16, hasDataset bool) *types.Message {
	datasetType := uint16(NoDataSetPresent)
	if hasDataset {
		datasetType = 0x0000
	}
	return &types.Message{
		CommandField:              types.NGetRSP,
		MessageIDBeingRespondedTo: b.request.MessageID,
		AffectedSOPClassUID:       b.request.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    b.request.RequestedSOPInstanceUID,
		CommandDataSetType:        datasetType,
		Status:                    status,
	}
}

// NDeleteResponse builds an N-DELETE-RSP.
func (b *ResponseBuilder) NDeleteResponse(status uint16) *types.Message {
	return &types.Message{
		CommandField:              types.NDeleteRSP,
		MessageIDBeingRespondedTo: b.request.MessageID,
		AffectedSOPClassUID:       b.request.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    b.request.RequestedSOPInstanceUID,
		CommandDataSetType:        NoDataSetPresent,
		Status:                    status,
	}
}
