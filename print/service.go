package print

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dicomkit/ulp/dataset"
	"github.com/dicomkit/ulp/dimse"
	"github.com/dicomkit/ulp/types"
)

// RegisterHandlers wires a Manager's N-service operations into registry
// under the abstract syntax mode, so C-ECHO/storage/query handlers
// registered elsewhere on the same registry are undisturbed — one registry
// serves every command field on an association, and print only claims the
// N-service ones.
func RegisterHandlers(registry *dimse.Registry, manager *Manager, mode ColorMode) {
	registry.RegisterHandler(types.NCreateRQ, &createHandler{manager: manager, mode: mode})
	registry.RegisterHandler(types.NSetRQ, &setHandler{manager: manager})
	registry.RegisterHandler(types.NGetRQ, &getHandler{manager: manager})
	registry.RegisterHandler(types.NActionRQ, &actionHandler{manager: manager})
	registry.RegisterHandler(types.NDeleteRQ, &deleteHandler{manager: manager})
}

type createHandler struct {
	manager *Manager
	mode    ColorMode
}

func (h *createHandler) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta dimse.MessageContext) (*types.Message, *dataset.Dataset, error) {
	b := dimse.NewResponseBuilder(msg)

	switch msg.AffectedSOPClassUID {
	case types.BasicFilmSessionSOPClass:
		copies := 1
		priority := ""
		medium := ""
		if meta.Dataset != nil {
			if v := meta.Dataset.GetString(TagNumberOfCopies); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					copies = n
				}
			}
			priority = meta.Dataset.GetString(TagPrintPriority)
			medium = meta.Dataset.GetString(TagMediumType)
		}
		fs := h.manager.CreateFilmSession(copies, priority, medium)
		return b.NCreateResponse(types.StatusSuccess, fs.SOPInstanceUID), nil, nil

	case types.BasicFilmBoxSOPClass:
		if meta.Dataset == nil {
			return b.NCreateResponse(types.StatusOutOfResources, ""), nil, nil
		}
		sessionUID := meta.Dataset.GetString(TagReferencedFilmSessionSeq)
		format := meta.Dataset.GetString(TagImageDisplayFormat)
		imageBoxCount := countFromDisplayFormat(format)
		box, err := h.manager.CreateFilmBox(sessionUID, format, imageBoxCount, h.mode)
		if err != nil {
			return b.NCreateResponse(types.StatusRefused, ""), nil, nil
		}

		resp := b.NCreateResponse(types.StatusSuccess, box.SOPInstanceUID)
		respDS := dataset.NewDataset()
		var imageBoxUIDs []string
		for _, img := range box.ImageBoxes {
			imageBoxUIDs = append(imageBoxUIDs, img.SOPInstanceUID)
		}
		respDS.AddElement(TagReferencedImageBoxSeq, dataset.VR_UI, joinUIDs(imageBoxUIDs))
		resp.CommandDataSetType = 0x0000
		return resp, respDS, nil

	default:
		return dimse.CreateErrorResponse(msg, types.StatusRefused), nil, nil
	}
}

// countFromDisplayFormat parses the trailing "rows,cols" of an Image
// Display Format value like "STANDARD\2,3" into a total image box count,
// defaulting to 1 when the format can't be parsed.
func countFromDisplayFormat(format string) int {
	idx := strings.LastIndexByte(format, '\\')
	if idx < 0 {
		return 1
	}
	var rows, cols int
	if _, err := fmt.Sscanf(format[idx+1:], "%d,%d", &rows, &cols); err != nil || rows <= 0 || cols <= 0 {
		return 1
	}
	return rows * cols
}

type setHandler struct{ manager *Manager }

func (h *setHandler) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta dimse.MessageContext) (*types.Message, *dataset.Dataset, error) {
	b := dimse.NewResponseBuilder(msg)

	switch msg.RequestedSOPClassUID {
	case types.BasicFilmBoxSOPClass:
		var polarity, magnification string
		if meta.Dataset != nil {
			polarity = meta.Dataset.GetString(TagPolarity)
			magnification = meta.Dataset.GetString(TagMagnification)
		}
		if err := h.manager.SetFilmBox(msg.RequestedSOPInstanceUID, polarity, magnification); err != nil {
			return b.NSetResponse(types.StatusRefused), nil, nil
		}
		return b.NSetResponse(types.StatusSuccess), nil, nil

	case types.BasicGrayscaleImageBoxSOPClass, types.BasicColorImageBoxSOPClass:
		var referencedImage string
		if meta.Dataset != nil {
			referencedImage = meta.Dataset.GetString(TagReferencedImageUID)
		}
		if err := h.manager.SetImageBox(msg.RequestedSOPInstanceUID, referencedImage); err != nil {
			return b.NSetResponse(types.StatusRefused), nil, nil
		}
		return b.NSetResponse(types.StatusSuccess), nil, nil

	default:
		return dimse.CreateErrorResponse(msg, types.StatusRefused), nil, nil
	}
}

type getHandler struct{ manager *Manager }

func (h *getHandler) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta dimse.MessageContext) (*types.Message, *dataset.Dataset, error) {
	b := dimse.NewResponseBuilder(msg)

	switch msg.RequestedSOPClassUID {
	case types.PrinterSOPClass:
		status := h.manager.PrinterStatus()
		ds := dataset.NewDataset()
		ds.AddElement(TagPrinterStatus, dataset.VR_CS, status.Status)
		ds.AddElement(TagPrinterStatusInfo, dataset.VR_CS, status.StatusInfo)
		return b.NGetResponse(types.StatusSuccess, true), ds, nil

	case types.BasicFilmSessionSOPClass:
		fs, ok := h.manager.FilmSession(msg.RequestedSOPInstanceUID)
		if !ok {
			return b.NGetResponse(types.StatusRefused, false), nil, nil
		}
		ds := dataset.NewDataset()
		ds.AddElement(TagNumberOfCopies, dataset.VR_IS, strconv.Itoa(fs.NumberOfCopies))
		ds.AddElement(TagPrintPriority, dataset.VR_CS, fs.PrintPriority)
		ds.AddElement(TagMediumType, dataset.VR_CS, fs.MediumType)
		return b.NGetResponse(types.StatusSuccess, true), ds, nil

	case types.BasicFilmBoxSOPClass:
		box, ok := h.manager.FilmBox(msg.RequestedSOPInstanceUID)
		if !ok {
			return b.NGetResponse(types.StatusRefused, false), nil, nil
		}
		ds := dataset.NewDataset()
		ds.AddElement(TagImageDisplayFormat, dataset.VR_CS, box.ImageDisplayFormat)
		ds.AddElement(TagPolarity, dataset.VR_CS, box.Polarity)
		ds.AddElement(TagMagnification, dataset.VR_CS, box.Magnification)
		return b.NGetResponse(types.StatusSuccess, true), ds, nil

	default:
		return dimse.CreateErrorResponse(msg, types.StatusRefused), nil, nil
	}
}

type actionHandler struct{ manager *Manager }

func (h *actionHandler) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta dimse.MessageContext) (*types.Message, *dataset.Dataset, error) {
	b := dimse.NewResponseBuilder(msg)

	if msg.RequestedSOPClassUID != types.BasicFilmBoxSOPClass || msg.ActionTypeID == nil || *msg.ActionTypeID != ActionTypePrint {
		return dimse.CreateErrorResponse(msg, types.StatusRefused), nil, nil
	}

	job, err := h.manager.Print(msg.RequestedSOPInstanceUID)
	if err != nil {
		return b.NActionResponse(types.StatusRefused, ""), nil, nil
	}
	return b.NActionResponse(types.StatusSuccess, job.SOPInstanceUID), nil, nil
}

type deleteHandler struct{ manager *Manager }

func (h *deleteHandler) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta dimse.MessageContext) (*types.Message, *dataset.Dataset, error) {
	b := dimse.NewResponseBuilder(msg)

	switch msg.RequestedSOPClassUID {
	case types.BasicFilmSessionSOPClass:
		h.manager.DeleteFilmSession(msg.RequestedSOPInstanceUID)
	case types.BasicFilmBoxSOPClass:
		h.manager.DeleteFilmBox(msg.RequestedSOPInstanceUID)
	case types.BasicGrayscaleImageBoxSOPClass, types.BasicColorImageBoxSOPClass:
		h.manager.DeleteImageBox(msg.RequestedSOPInstanceUID)
	default:
		return dimse.CreateErrorResponse(msg, types.StatusRefused), nil, nil
	}
	return b.NDeleteResponse(types.StatusSuccess), nil, nil
}

func joinUIDs(uids []string) string {
	out := ""
	for i, u := range uids {
		if i > 0 {
			out += "\\"
		}
		out += u
	}
	return out
}
