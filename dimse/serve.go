package dimse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dicomkit/ulp/assoc"
	"github.com/dicomkit/ulp/dataset"
	"github.com/dicomkit/ulp/metrics"
	"github.com/dicomkit/ulp/types"
	"github.com/dicomkit/ulp/ulperrors"
)

// responder implements ResponseSender (and CGetResponder) by sending each
// response directly out on the association, fragmenting as needed. It
// replaces the teacher's stateful responseHandler/cGetResponder pair now
// that fragmentation lives in assoc rather than dimse.
type responder struct {
	a                 *assoc.Association
	presContextID     byte
	defaultTransferTS string
	messageIDCounter  uint16
	metrics           *metrics.Metrics
}

func (r *responder) SendResponse(msg *types.Message, ds *dataset.Dataset) error {
	ts := msg.TransferSyntaxUID
	if ts == "" {
		ts = r.defaultTransferTS
	}

	var datasetBytes []byte
	if ds != nil {
		var err error
		datasetBytes, err = dataset.EncodeDatasetWithTransferSyntax(ds, ts)
		if err != nil {
			return fmt.Errorf("dimse: encode response dataset with transfer syntax %s: %w", ts, err)
		}
	}

	commandData := EncodeCommand(msg)
	r.metrics.AddBytesSent(len(commandData) + len(datasetBytes))
	return r.a.SendMessage(r.presContextID, commandData, datasetBytes)
}

// SendCStore issues a C-STORE sub-operation on the same association, as
// required by C-GET (PS3.7 §C.4.3).
func (r *responder) SendCStore(sopClassUID, sopInstanceUID string, ds *dataset.Dataset) error {
	r.messageIDCounter++

	command := &types.Message{
		CommandField:           types.CStoreRQ,
		MessageID:              r.messageIDCounter,
		Priority:               0x0000,
		AffectedSOPClassUID:    sopClassUID,
		AffectedSOPInstanceUID: sopInstanceUID,
		CommandDataSetType:     0x0000,
	}

	datasetBytes, err := dataset.EncodeDatasetWithTransferSyntax(ds, r.defaultTransferTS)
	if err != nil {
		return fmt.Errorf("dimse: encode C-STORE sub-operation dataset: %w", err)
	}

	return r.a.SendMessage(r.presContextID, EncodeCommand(command), datasetBytes)
}

var _ CGetResponder = (*responder)(nil)

// cancelTracker maps the Message ID of an in-flight streaming operation to
// the cancel function of the context it's running under, so an in-band
// C-CANCEL-RQ (PS3.7 §9.3.2.3) arriving while that operation is still
// producing responses can terminate it (see the streaming handler's own
// ctx.Done() check, e.g. worklist.FindHandler.HandleDIMSEStreaming).
type cancelTracker struct {
	mu      sync.Mutex
	cancels map[uint16]context.CancelFunc
}

func (t *cancelTracker) track(messageID uint16, cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancels == nil {
		t.cancels = make(map[uint16]context.CancelFunc)
	}
	t.cancels[messageID] = cancel
}

func (t *cancelTracker) untrack(messageID uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cancels, messageID)
}

// cancel fires the cancel function tracked for messageID, if any, and
// reports whether one was found.
func (t *cancelTracker) cancel(messageID uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cancel, ok := t.cancels[messageID]
	if ok {
		cancel()
	}
	return ok
}

// Serve drives a (server-side) association until it is released, aborted,
// or the connection drops: it repeatedly receives one complete DIMSE
// message, decodes its command set and dataset, dispatches it through
// registry, and sends back whatever response the handler produced. It
// replaces the teacher's stateful dimse.Service, since assoc already owns
// PDV reassembly. m may be nil to disable instrumentation.
//
// Streaming operations (C-FIND/C-MOVE/C-GET) run in their own goroutine so
// Serve's read loop keeps consuming PDUs while one is in flight: that's
// what lets a peer's in-band C-CANCEL-RQ, sent on the same association
// while a multi-response stream is still being sent, reach the handler's
// context instead of blocking behind it. Single-response operations still
// run inline, since nothing needs to race them.
func Serve(ctx context.Context, a *assoc.Association, registry *Registry, logger zerolog.Logger, m *metrics.Metrics) error {
	var wg sync.WaitGroup
	var cancels cancelTracker
	defer wg.Wait()

	for {
		presContextID, commandData, datasetData, err := a.ReceiveMessage()
		if err != nil {
			var abortErr *ulperrors.AbortError
			if errors.As(err, &abortErr) || errors.Is(err, io.EOF) {
				logger.Info().Msg("association ended")
				return nil
			}
			if errors.Is(err, ulperrors.ErrReleaseRequested) {
				logger.Info().Msg("peer requested release")
				return a.CompleteRelease()
			}
			return err
		}

		msg, err := DecodeCommand(commandData)
		if err != nil {
			logger.Error().Err(err).Msg("failed to decode DIMSE command")
			continue
		}

		if msg.CommandField == types.CCancelRQ {
			found := cancels.cancel(msg.MessageIDBeingRespondedTo)
			logger.Debug().
				Uint16("message_id_being_responded_to", msg.MessageIDBeingRespondedTo).
				Bool("found", found).
				Msg("received C-CANCEL-RQ")
			continue
		}

		ts, _ := a.TransferSyntax(presContextID)
		msg.TransferSyntaxUID = ts

		var ds *dataset.Dataset
		if len(datasetData) > 0 {
			ds, err = dataset.ParseDatasetWithTransferSyntax(datasetData, ts)
			if err != nil {
				logger.Warn().Err(err).Str("transfer_syntax", ts).Msg("failed to parse request dataset")
			}
		}

		m.AddBytesReceived(len(commandData) + len(datasetData))

		meta := MessageContext{PresentationContextID: presContextID, TransferSyntaxUID: ts, Dataset: ds}
		resp := &responder{a: a, presContextID: presContextID, defaultTransferTS: ts, metrics: m}

		logger.Debug().
			Uint16("command_field", msg.CommandField).
			Uint16("message_id", msg.MessageID).
			Msg("dispatching DIMSE command")

		dispatch := func(ctx context.Context) error {
			start := time.Now()
			err := registry.HandleDIMSEStreaming(ctx, msg, datasetData, meta, resp)
			m.RecordDIMSEDuration(fmt.Sprintf("0x%04x", msg.CommandField), time.Since(start).Seconds())
			return err
		}

		if !registry.IsStreaming(msg.CommandField) {
			if err := dispatch(ctx); err != nil {
				logger.Error().Err(err).Msg("service handler failed")
				errResp := CreateErrorResponse(msg, 0xA900)
				if sendErr := resp.SendResponse(errResp, nil); sendErr != nil {
					return sendErr
				}
			}
			continue
		}

		opCtx, cancel := context.WithCancel(ctx)
		cancels.track(msg.MessageID, cancel)
		wg.Add(1)
		go func(msg *types.Message) {
			defer wg.Done()
			defer cancels.untrack(msg.MessageID)
			defer cancel()
			if err := dispatch(opCtx); err != nil {
				logger.Error().Err(err).Msg("streaming service handler failed")
				errResp := CreateErrorResponse(msg, 0xA900)
				resp.SendResponse(errResp, nil)
			}
		}(msg)
	}
}
