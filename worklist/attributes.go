// Package worklist implements the Modality Worklist (MWL) query service and
// the Modality Performed Procedure Step (MPPS) instance state machine, both
// driven through the dimse package's DIMSE-C/N primitives.
package worklist

import "github.com/dicomkit/ulp/dataset"

// AttributeKind distinguishes a scalar group-0x0040 element from a sequence
// one, resolving the Open Question of how to encode Modality Worklist
// identifiers through a dataset codec that otherwise treats every element
// as a flat, possibly multi-valued string (see package dataset's doc on SQ
// handling): unlike a plain C-FIND identifier, the worklist's group 0x0040
// mixes both kinds, so a lookup keyed by tag is required rather than
// assuming the whole group is sequence-shaped.
type AttributeKind int

const (
	Scalar AttributeKind = iota
	Sequence
)

// attributeDictionary classifies every group-0x0040 tag this module reads
// or writes. Tags not listed default to Scalar.
var attributeDictionary = map[dataset.Tag]AttributeKind{
	{Group: 0x0040, Element: 0x0100}: Sequence, // Scheduled Procedure Step Sequence
	{Group: 0x0040, Element: 0x0260}: Sequence, // Performed Protocol Code Sequence
	{Group: 0x0040, Element: 0x0340}: Sequence, // Performed Series Sequence

	{Group: 0x0040, Element: 0x0001}: Scalar, // Scheduled Station AE Title
	{Group: 0x0040, Element: 0x0002}: Scalar, // Scheduled Procedure Step Start Date
	{Group: 0x0040, Element: 0x0003}: Scalar, // Scheduled Procedure Step Start Time
	{Group: 0x0040, Element: 0x0006}: Scalar, // Scheduled Performing Physician's Name
	{Group: 0x0040, Element: 0x0007}: Scalar, // Scheduled Procedure Step Description
	{Group: 0x0040, Element: 0x0009}: Scalar, // Scheduled Procedure Step ID
	{Group: 0x0040, Element: 0x0020}: Scalar, // Scheduled Procedure Step Status
	{Group: 0x0040, Element: 0x1001}: Scalar, // Requested Procedure ID
	{Group: 0x0040, Element: 0x1002}: Scalar, // Requested Procedure Description
	{Group: 0x0040, Element: 0x0244}: Scalar, // Performed Procedure Step Start Date
	{Group: 0x0040, Element: 0x0245}: Scalar, // Performed Procedure Step Start Time
	{Group: 0x0040, Element: 0x0250}: Scalar, // Performed Procedure Step End Date
	{Group: 0x0040, Element: 0x0251}: Scalar, // Performed Procedure Step End Time
	{Group: 0x0040, Element: 0x0252}: Scalar, // Performed Procedure Step Status
	{Group: 0x0040, Element: 0x0253}: Scalar, // Performed Procedure Step ID
	{Group: 0x0040, Element: 0x0254}: Scalar, // Performed Procedure Step Description
}

// KindOf returns tag's attribute kind, defaulting to Scalar for any
// group-0x0040 tag this dictionary doesn't list.
func KindOf(tag dataset.Tag) AttributeKind {
	if kind, ok := attributeDictionary[tag]; ok {
		return kind
	}
	return Scalar
}

// Well-known group-0x0040 tags this package reads and writes directly.
var (
	TagScheduledStationAETitle           = dataset.Tag{Group: 0x0040, Element: 0x0001}
	TagScheduledProcedureStepStartDate   = dataset.Tag{Group: 0x0040, Element: 0x0002}
	TagScheduledProcedureStepStartTime   = dataset.Tag{Group: 0x0040, Element: 0x0003}
	TagScheduledPerformingPhysician      = dataset.Tag{Group: 0x0040, Element: 0x0006}
	TagScheduledProcedureStepDescription = dataset.Tag{Group: 0x0040, Element: 0x0007}
	TagScheduledProcedureStepID          = dataset.Tag{Group: 0x0040, Element: 0x0009}
	TagScheduledProcedureStepStatus      = dataset.Tag{Group: 0x0040, Element: 0x0020}
	TagRequestedProcedureID              = dataset.Tag{Group: 0x0040, Element: 0x1001}
	TagRequestedProcedureDescription     = dataset.Tag{Group: 0x0040, Element: 0x1002}

	TagPerformedProcedureStepStartDate   = dataset.Tag{Group: 0x0040, Element: 0x0244}
	TagPerformedProcedureStepStartTime   = dataset.Tag{Group: 0x0040, Element: 0x0245}
	TagPerformedProcedureStepEndDate     = dataset.Tag{Group: 0x0040, Element: 0x0250}
	TagPerformedProcedureStepEndTime     = dataset.Tag{Group: 0x0040, Element: 0x0251}
	TagPerformedProcedureStepStatus      = dataset.Tag{Group: 0x0040, Element: 0x0252}
	TagPerformedProcedureStepID          = dataset.Tag{Group: 0x0040, Element: 0x0253}
	TagPerformedProcedureStepDescription = dataset.Tag{Group: 0x0040, Element: 0x0254}
)
