package dimse

import (
	"fmt"

	"github.com/dicomkit/ulp/assoc"
	"github.com/dicomkit/ulp/dataset"
	"github.com/dicomkit/ulp/types"
)

// Client wraps an established association with the DIMSE-C request/response
// calls (C-ECHO/C-FIND/C-GET/C-MOVE/C-STORE/C-CANCEL). Grounded on the
// teacher's client.Association methods, adapted onto assoc.Association now
// that PDV fragmentation/reassembly lives there.
type Client struct {
	assoc *assoc.Association
}

// NewClient wraps an established association for DIMSE-C calls.
func NewClient(a *assoc.Association) *Client {
	return &Client{assoc: a}
}

func (c *Client) sendAndReceive(presContextID byte, command *types.Message, outDataset *dataset.Dataset) (*types.Message, *dataset.Dataset, error) {
	ts, err := c.assoc.TransferSyntax(presContextID)
	if err != nil {
		return nil, nil, err
	}
	command.TransferSyntaxUID = ts

	var datasetBytes []byte
	if outDataset != nil {
		datasetBytes, err = dataset.EncodeDatasetWithTransferSyntax(outDataset, ts)
		if err != nil {
			return nil, nil, fmt.Errorf("dimse: encode request dataset: %w", err)
		}
	}

	if err := c.assoc.SendMessage(presContextID, EncodeCommand(command), datasetBytes); err != nil {
		return nil, nil, err
	}

	_, respCommand, respDatasetBytes, err := c.assoc.ReceiveMessage()
	if err != nil {
		return nil, nil, err
	}

	respMsg, err := DecodeCommand(respCommand)
	if err != nil {
		return nil, nil, err
	}

	var respDataset *dataset.Dataset
	if len(respDatasetBytes) > 0 {
		respDataset, err = dataset.ParseDatasetWithTransferSyntax(respDatasetBytes, ts)
		if err != nil {
			return nil, nil, fmt.Errorf("dimse: parse response dataset: %w", err)
		}
	}

	return respMsg, respDataset, nil
}

// CEchoResponse is the result of a C-ECHO (verification) request.
type CEchoResponse struct {
	Status    uint16
	MessageID uint16
}

// Echo performs a C-ECHO request and returns the response status.
func (c *Client) Echo(messageID uint16) (*CEchoResponse, error) {
	if messageID == 0 {
		messageID = 1
	}

	presContextID, err := c.assoc.GetPresentationContextID(types.VerificationSOPClass)
	if err != nil {
		return nil, err
	}

	command := &types.Message{
		CommandField:        types.CEchoRQ,
		MessageID:           messageID,
		CommandDataSetType:  NoDataSetPresent,
		Priority:            0x0000,
		AffectedSOPClassUID: types.VerificationSOPClass,
	}

	respMsg, _, err := c.sendAndReceive(presContextID, command, nil)
	if err != nil {
		return nil, fmt.Errorf("dimse: C-ECHO failed: %w", err)
	}
	if respMsg.CommandField != types.CEchoRSP {
		return nil, fmt.Errorf("dimse: unexpected command 0x%04x (expected C-ECHO-RSP)", respMsg.CommandField)
	}

	return &CEchoResponse{Status: respMsg.Status, MessageID: respMsg.MessageIDBeingRespondedTo}, nil
}

// FindRequest encapsulates a C-FIND query.
type FindRequest struct {
	SOPClassUID string
	MessageID   uint16
	Priority    uint16
	Dataset     *dataset.Dataset
}

// FindResponse is one C-FIND-RSP, pending or final.
type FindResponse struct {
	Status    uint16
	MessageID uint16
	Dataset   *dataset.Dataset
}

// Find performs a C-FIND query and collects every response up to and
// including the final (non-Pending) one.
func (c *Client) Find(req *FindRequest) ([]*FindResponse, error) {
	if req == nil || req.Dataset == nil {
		return nil, fmt.Errorf("dimse: C-FIND requires a request with an identifier dataset")
	}

	sopClass := req.SOPClassUID
	if sopClass == "" {
		sopClass = types.StudyRootQueryRetrieveInformationModelFind
	}
	messageID := req.MessageID
	if messageID == 0 {
		messageID = 1
	}

	presContextID, err := c.assoc.GetPresentationContextID(sopClass)
	if err != nil {
		return nil, err
	}

	ts, err := c.assoc.TransferSyntax(presContextID)
	if err != nil {
		return nil, err
	}

	command := &types.Message{
		CommandField:        types.CFindRQ,
		MessageID:           messageID,
		CommandDataSetType:  0x0000,
		Priority:            req.Priority,
		AffectedSOPClassUID: sopClass,
	}
	datasetBytes, err := dataset.EncodeDatasetWithTransferSyntax(req.Dataset, ts)
	if err != nil {
		return nil, fmt.Errorf("dimse: encode C-FIND identifier: %w", err)
	}
	if err := c.assoc.SendMessage(presContextID, EncodeCommand(command), datasetBytes); err != nil {
		return nil, fmt.Errorf("dimse: send C-FIND-RQ: %w", err)
	}

	var responses []*FindResponse
	for {
		_, respCommand, respDatasetBytes, err := c.assoc.ReceiveMessage()
		if err != nil {
			return responses, fmt.Errorf("dimse: receive C-FIND-RSP: %w", err)
		}
		respMsg, err := DecodeCommand(respCommand)
		if err != nil {
			return responses, err
		}
		if respMsg.CommandField != types.CFindRSP {
			return responses, fmt.Errorf("dimse: unexpected command 0x%04x (expected C-FIND-RSP)", respMsg.CommandField)
		}

		var respDataset *dataset.Dataset
		if len(respDatasetBytes) > 0 {
			respDataset, _ = dataset.ParseDatasetWithTransferSyntax(respDatasetBytes, ts)
		}

		responses = append(responses, &FindResponse{
			Status:    respMsg.Status,
			MessageID: respMsg.MessageIDBeingRespondedTo,
			Dataset:   respDataset,
		})

		if ClassifyStatus(respMsg.Status) != StatusClassPending {
			break
		}
	}

	return responses, nil
}

// GetRequest encapsulates a C-GET retrieval query.
type GetRequest struct {
	SOPClassUID string
	MessageID   uint16
	Priority    uint16
	Dataset     *dataset.Dataset
}

// GetResponse is one C-GET-RSP, pending or final. The SCP sends matching
// instances as C-STORE sub-operations on the same association, delivered to
// whatever ServiceHandler is registered for types.CStoreRQ; Get only
// surfaces the progress/status responses.
type GetResponse struct {
	Status                         uint16
	MessageID                      uint16
	NumberOfRemainingSuboperations *uint16
	NumberOfCompletedSuboperations *uint16
	NumberOfFailedSuboperations    *uint16
	NumberOfWarningSuboperations   *uint16
}

// Get performs a C-GET retrieval.
func (c *Client) Get(req *GetRequest) ([]*GetResponse, error) {
	if req == nil || req.Dataset == nil {
		return nil, fmt.Errorf("dimse: C-GET requires a request with an identifier dataset")
	}

	sopClass := req.SOPClassUID
	if sopClass == "" {
		sopClass = types.StudyRootQueryRetrieveInformationModelGet
	}
	messageID := req.MessageID
	if messageID == 0 {
		messageID = 1
	}

	presContextID, err := c.assoc.GetPresentationContextID(sopClass)
	if err != nil {
		return nil, err
	}
	ts, err := c.assoc.TransferSyntax(presContextID)
	if err != nil {
		return nil, err
	}

	command := &types.Message{
		CommandField:        types.CGetRQ,
		MessageID:           messageID,
		CommandDataSetType:  0x0000,
		Priority:            req.Priority,
		AffectedSOPClassUID: sopClass,
	}
	datasetBytes, err := dataset.EncodeDatasetWithTransferSyntax(req.Dataset, ts)
	if err != nil {
		return nil, fmt.Errorf("dimse: encode C-GET identifier: %w", err)
	}
	if err := c.assoc.SendMessage(presContextID, EncodeCommand(command), datasetBytes); err != nil {
		return nil, fmt.Errorf("dimse: send C-GET-RQ: %w", err)
	}

	var responses []*GetResponse
	for {
		_, respCommand, _, err := c.assoc.ReceiveMessage()
		if err != nil {
			return responses, fmt.Errorf("dimse: receive C-GET-RSP: %w", err)
		}
		respMsg, err := DecodeCommand(respCommand)
		if err != nil {
			return responses, err
		}
		if respMsg.CommandField != types.CGetRSP {
			return responses, fmt.Errorf("dimse: unexpected command 0x%04x (expected C-GET-RSP)", respMsg.CommandField)
		}

		responses = append(responses, &GetResponse{
			Status:                         respMsg.Status,
			MessageID:                      respMsg.MessageIDBeingRespondedTo,
			NumberOfRemainingSuboperations: respMsg.NumberOfRemainingSuboperations,
			NumberOfCompletedSuboperations: respMsg.NumberOfCompletedSuboperations,
			NumberOfFailedSuboperations:    respMsg.NumberOfFailedSuboperations,
			NumberOfWarningSuboperations:   respMsg.NumberOfWarningSuboperations,
		})

		if ClassifyStatus(respMsg.Status) != StatusClassPending {
			break
		}
	}

	return responses, nil
}

// MoveRequest encapsulates a C-MOVE retrieval query, retrieved to
// destinationAE rather than the requestor's own association.
type MoveRequest struct {
	SOPClassUID   string
	MessageID     uint16
	Priority      uint16
	DestinationAE types.AET
	Dataset       *dataset.Dataset
}

// MoveResponse is one C-MOVE-RSP, pending or final.
type MoveResponse struct {
	Status                         uint16
	MessageID                      uint16
	NumberOfRemainingSuboperations *uint16
	NumberOfCompletedSuboperations *uint16
	NumberOfFailedSuboperations    *uint16
	NumberOfWarningSuboperations   *uint16
}

// Move performs a C-MOVE retrieval to req.DestinationAE.
func (c *Client) Move(req *MoveRequest) ([]*MoveResponse, error) {
	if req == nil || req.Dataset == nil {
		return nil, fmt.Errorf("dimse: C-MOVE requires a request with an identifier dataset")
	}
	if req.DestinationAE == "" {
		return nil, fmt.Errorf("dimse: C-MOVE requires a destination AE title")
	}

	sopClass := req.SOPClassUID
	if sopClass == "" {
		sopClass = types.StudyRootQueryRetrieveInformationModelMove
	}
	messageID := req.MessageID
	if messageID == 0 {
		messageID = 1
	}

	presContextID, err := c.assoc.GetPresentationContextID(sopClass)
	if err != nil {
		return nil, err
	}
	ts, err := c.assoc.TransferSyntax(presContextID)
	if err != nil {
		return nil, err
	}

	command := &types.Message{
		CommandField:        types.CMoveRQ,
		MessageID:           messageID,
		CommandDataSetType:  0x0000,
		Priority:            req.Priority,
		AffectedSOPClassUID: sopClass,
		MoveDestination:     string(req.DestinationAE),
	}
	datasetBytes, err := dataset.EncodeDatasetWithTransferSyntax(req.Dataset, ts)
	if err != nil {
		return nil, fmt.Errorf("dimse: encode C-MOVE identifier: %w", err)
	}
	if err := c.assoc.SendMessage(presContextID, EncodeCommand(command), datasetBytes); err != nil {
		return nil, fmt.Errorf("dimse: send C-MOVE-RQ: %w", err)
	}

	var responses []*MoveResponse
	for {
		_, respCommand, _, err := c.assoc.ReceiveMessage()
		if err != nil {
			return responses, fmt.Errorf("dimse: receive C-MOVE-RSP: %w", err)
		}
		respMsg, err := DecodeCommand(respCommand)
		if err != nil {
			return responses, err
		}
		if respMsg.CommandField != types.CMoveRSP {
			return responses, fmt.Errorf("dimse: unexpected command 0x%04x (expected C-MOVE-RSP)", respMsg.CommandField)
		}

		responses = append(responses, &MoveResponse{
			Status:                         respMsg.Status,
			MessageID:                      respMsg.MessageIDBeingRespondedTo,
			NumberOfRemainingSuboperations: respMsg.NumberOfRemainingSuboperations,
			NumberOfCompletedSuboperations: respMsg.NumberOfCompletedSuboperations,
			NumberOfFailedSuboperations:    respMsg.NumberOfFailedSuboperations,
			NumberOfWarningSuboperations:   respMsg.NumberOfWarningSuboperations,
		})

		if ClassifyStatus(respMsg.Status) != StatusClassPending {
			break
		}
	}

	return responses, nil
}

// StoreRequest encapsulates a C-STORE request.
type StoreRequest struct {
	SOPClassUID    string
	SOPInstanceUID string
	MessageID      uint16
	Dataset        *dataset.Dataset
}

// StoreResponse is the result of a C-STORE request.
type StoreResponse struct {
	Status         uint16
	MessageID      uint16
	SOPClassUID    string
	SOPInstanceUID string
}

// Store performs a C-STORE request.
func (c *Client) Store(req *StoreRequest) (*StoreResponse, error) {
	presContextID, err := c.assoc.GetPresentationContextID(req.SOPClassUID)
	if err != nil {
		return nil, fmt.Errorf("dimse: no presentation context for SOP class %s: %w", req.SOPClassUID, err)
	}

	command := &types.Message{
		CommandField:           types.CStoreRQ,
		MessageID:              req.MessageID,
		Priority:               0x0000,
		CommandDataSetType:     0x0000,
		AffectedSOPClassUID:    req.SOPClassUID,
		AffectedSOPInstanceUID: req.SOPInstanceUID,
	}

	respMsg, _, err := c.sendAndReceive(presContextID, command, req.Dataset)
	if err != nil {
		return nil, fmt.Errorf("dimse: C-STORE failed: %w", err)
	}
	if respMsg.CommandField != types.CStoreRSP {
		return nil, fmt.Errorf("dimse: unexpected command 0x%04x (expected C-STORE-RSP)", respMsg.CommandField)
	}

	return &StoreResponse{
		Status:         respMsg.Status,
		MessageID:      respMsg.MessageIDBeingRespondedTo,
		SOPClassUID:    respMsg.AffectedSOPClassUID,
		SOPInstanceUID: respMsg.AffectedSOPInstanceUID,
	}, nil
}

// Cancel sends a C-CANCEL-RQ for the pending C-FIND/C-GET/C-MOVE operation
// identified by messageID. C-CANCEL has no response: it is a one-way
// notification telling the SCP to stop sending further pending responses.
func (c *Client) Cancel(messageID uint16, sopClassUID string) error {
	if messageID == 0 {
		return fmt.Errorf("dimse: C-CANCEL requires a non-zero messageID")
	}
	if sopClassUID == "" {
		return fmt.Errorf("dimse: C-CANCEL requires the SOP class of the operation being canceled")
	}

	presContextID, err := c.assoc.GetPresentationContextID(sopClassUID)
	if err != nil {
		return err
	}

	command := &types.Message{
		CommandField:              types.CCancelRQ,
		MessageIDBeingRespondedTo: messageID,
		CommandDataSetType:        NoDataSetPresent,
	}

	return c.assoc.SendMessage(presContextID, EncodeCommand(command), nil)
}
