package types

// Print Management Service SOP Classes (PS3.4 Annex H). Query/Retrieve,
// Worklist, and Verification SOP Classes already live in sopclass.go.
const (
	BasicGrayscalePrintManagementMetaSOPClass = "1.2.840.10008.5.1.1.9"
	BasicColorPrintManagementMetaSOPClass     = "1.2.840.10008.5.1.1.18"
	BasicFilmSessionSOPClass                  = "1.2.840.10008.5.1.1.1"
	BasicFilmBoxSOPClass                      = "1.2.840.10008.5.1.1.2"
	BasicGrayscaleImageBoxSOPClass            = "1.2.840.10008.5.1.1.4"
	BasicColorImageBoxSOPClass                = "1.2.840.10008.5.1.1.4.1"
	PrinterSOPClass                           = "1.2.840.10008.5.1.1.16"
	PrintJobSOPClass                          = "1.2.840.10008.5.1.1.14"
)

// PrinterSOPInstanceUID is the single well-known instance UID of the
// Printer SOP Class (PS3.4 Annex H) — every acceptor has exactly one.
const PrinterSOPInstanceUID = "1.2.840.10008.5.1.1.17"
