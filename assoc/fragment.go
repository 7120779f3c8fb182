package assoc

import (
	"encoding/binary"
	"time"

	"github.com/dicomkit/ulp/pdu"
	"github.com/dicomkit/ulp/statemachine"
	"github.com/dicomkit/ulp/ulperrors"
)

// SendMessage fragments a DIMSE command (and optional dataset) into PDVs no
// larger than the peer's advertised max PDU length and sends them as one or
// more P-DATA-TF PDUs on presContextID. Per PS3.8 §9.3.1, the command
// fragments are sent before the dataset fragments, and only the very last
// fragment of each sets the "last fragment" bit.
func (a *Association) SendMessage(presContextID byte, command []byte, dataset []byte) error {
	if _, err := a.machine.Fire(statemachine.EvPDataRequestLocal); err != nil {
		return err
	}

	payloadLimit := pdu.MaxPDVPayload(a.peerMaxPDULength)

	if err := a.sendFragments(presContextID, command, pdu.MsgHeaderCommand, payloadLimit); err != nil {
		return err
	}
	if len(dataset) > 0 {
		if err := a.sendFragments(presContextID, dataset, 0, payloadLimit); err != nil {
			return err
		}
	}
	return nil
}

func (a *Association) sendFragments(presContextID byte, data []byte, kindBit byte, payloadLimit int) error {
	if len(data) == 0 {
		return a.writePDV(pdu.PresentationDataValue{
			PresentationContextID: presContextID,
			MessageControlHeader:  kindBit | pdu.MsgHeaderLast,
		})
	}

	if payloadLimit <= 0 {
		return a.writePDV(pdu.PresentationDataValue{
			PresentationContextID: presContextID,
			MessageControlHeader:  kindBit | pdu.MsgHeaderLast,
			Data:                  data,
		})
	}

	for offset := 0; offset < len(data); offset += payloadLimit {
		end := offset + payloadLimit
		last := end >= len(data)
		if last {
			end = len(data)
		}
		header := kindBit
		if last {
			header |= pdu.MsgHeaderLast
		}
		if err := a.writePDV(pdu.PresentationDataValue{
			PresentationContextID: presContextID,
			MessageControlHeader:  header,
			Data:                  data[offset:end],
		}); err != nil {
			return err
		}
	}
	return nil
}

func (a *Association) writePDV(pdv pdu.PresentationDataValue) error {
	a.transport.SetWriteDeadline(time.Now().Add(a.writeTimeout))
	body := pdu.EncodePDataTF([]pdu.PresentationDataValue{pdv})
	if err := pdu.WriteHeaderAndBody(a.transport, pdu.TypePDataTF, body); err != nil {
		return ulperrors.NewNetworkError("send P-DATA-TF", err)
	}
	return nil
}

// assembler accumulates PDV fragments for the command and dataset streams
// of a single in-flight DIMSE message on one presentation context.
type assembler struct {
	presContextID byte
	command       []byte
	dataset       []byte
	commandDone   bool
	datasetDone   bool
}

func (asm *assembler) addPDV(pdv pdu.PresentationDataValue) {
	if pdv.IsCommand() {
		asm.command = append(asm.command, pdv.Data...)
		if pdv.IsLast() {
			asm.commandDone = true
		}
	} else {
		asm.dataset = append(asm.dataset, pdv.Data...)
		if pdv.IsLast() {
			asm.datasetDone = true
		}
	}
}

// commandDataSetTypeTag is (0000,0800) CommandDataSetType, PS3.7 §E.1. The
// command set is always Implicit VR Little Endian (PS3.7 §9.1), so the tag
// can be found by walking group-0000 elements without the dimse package's
// full command codec (which assoc can't import: dimse imports assoc).
const commandDataSetTypeTag = 0x0800

// noDataSetPresent is the CommandDataSetType value meaning the message
// carries no dataset (PS3.7 §9.3.1). Mirrors dimse.NoDataSetPresent.
const noDataSetPresent = 0x0101

// commandExpectsDataset scans a complete, reassembled command set for
// CommandDataSetType and reports whether a dataset stream should follow.
// It defaults to true (dataset expected) if the element is missing or the
// command is malformed, so reassembly fails safe by waiting rather than
// returning a truncated dataset.
func commandExpectsDataset(command []byte) bool {
	offset := 0
	for offset+8 <= len(command) {
		group := binary.LittleEndian.Uint16(command[offset : offset+2])
		element := binary.LittleEndian.Uint16(command[offset+2 : offset+4])
		length := binary.LittleEndian.Uint32(command[offset+4 : offset+8])
		if group != 0x0000 {
			break
		}
		if offset+8+int(length) > len(command) {
			break
		}
		if element == commandDataSetTypeTag && length >= 2 {
			value := binary.LittleEndian.Uint16(command[offset+8 : offset+10])
			return value != noDataSetPresent
		}
		offset += 8 + int(length)
	}
	return true
}

// complete reports whether the message is fully reassembled: the command
// stream has always been sent, so it's always required; the dataset stream
// is only required when the command itself says one follows.
func (asm *assembler) complete() bool {
	if !asm.commandDone {
		return false
	}
	if asm.datasetDone {
		return true
	}
	return !commandExpectsDataset(asm.command)
}

// ReceiveMessage blocks reading P-DATA-TF PDUs on the association's
// transport until one complete DIMSE message (command, plus dataset if the
// command's CommandDataSetType indicates one follows) has been assembled,
// and returns the reassembled command and dataset byte streams along with
// the presentation context ID they arrived on.
//
// A message that carries no dataset completes as soon as its command
// stream's last fragment arrives; commandExpectsDataset peeks the
// reassembled command's CommandDataSetType to tell the two cases apart,
// since nothing else distinguishes "no dataset" from "dataset not here yet".
func (a *Association) ReceiveMessage() (presContextID byte, command []byte, dataset []byte, err error) {
	var asm *assembler

	for {
		header, body, err := a.NextPDU()
		if err != nil {
			return 0, nil, nil, err
		}
		if header.Type == pdu.TypeReleaseRQ {
			return 0, nil, nil, ulperrors.ErrReleaseRequested
		}
		if header.Type != pdu.TypePDataTF {
			return 0, nil, nil, ulperrors.NewPDUError(header.Type, "expected P-DATA-TF while assembling DIMSE message")
		}

		pdvs, err := pdu.DecodePDataTF(body)
		if err != nil {
			return 0, nil, nil, err
		}

		for _, pdv := range pdvs {
			if asm == nil {
				asm = &assembler{presContextID: pdv.PresentationContextID}
			}
			asm.addPDV(pdv)
		}

		if asm != nil && asm.complete() {
			return asm.presContextID, asm.command, asm.dataset, nil
		}
	}
}
