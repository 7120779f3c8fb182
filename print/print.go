// Package print implements the DICOM Basic Grayscale/Color Print Management
// service class: the film session/film box/image box/print job instance
// hierarchy and the printer status singleton, driven entirely through
// DIMSE-N operations dispatched by dimse.Registry.
//
// The dataset codec this module builds on (package dataset) only round-trips
// flat, single-valued or backslash-multi-valued elements; it does not parse
// nested Sequence (SQ) items. Rather than reimplement a general SQ codec,
// the referenced-instance sequences PS3.4 Annex H defines (Referenced Film
// Session Sequence, Referenced Image Box Sequence) are flattened to their
// constituent SOP Instance UIDs on the real sequence tag, one level deep —
// enough to carry the parent/child links this service needs.
package print

import (
	"fmt"
	"sync"

	"github.com/dicomkit/ulp/dataset"
	"github.com/dicomkit/ulp/types"
	"github.com/dicomkit/ulp/uidgen"
)

// ColorMode selects which Print Management Meta SOP Class an association
// negotiated, since the same film session/box/image-box instance model is
// shared by both the grayscale and color meta SOP classes.
type ColorMode int

const (
	Grayscale ColorMode = iota
	Color
)

// SelectMetaSOPClassUID returns the Print Management Meta SOP Class UID to
// mint new instances against for the given color mode, so every instance
// created within one association is consistent with the abstract syntax it
// was negotiated under.
func SelectMetaSOPClassUID(mode ColorMode) string {
	if mode == Color {
		return types.BasicColorPrintManagementMetaSOPClass
	}
	return types.BasicGrayscalePrintManagementMetaSOPClass
}

// Print Job status values (PS3.3 C.13.9).
const (
	JobStatusPending  = "PENDING"
	JobStatusPrinting = "PRINTING"
	JobStatusDone     = "DONE"
	JobStatusFailure  = "FAILURE"
)

// Printer status values (PS3.3 C.13.9).
const (
	PrinterStatusNormal    = "NORMAL"
	PrinterStatusWarmingUp = "WARMING UP"
	PrinterStatusFailure   = "FAILURE"
)

// FilmSession is the root of one print job's instance tree.
type FilmSession struct {
	SOPInstanceUID string
	NumberOfCopies int
	PrintPriority  string
	MediumType     string
	FilmBoxes      []*FilmBox
}

// FilmBox is a child of a FilmSession, owning a grid of ImageBoxes laid out
// per ImageDisplayFormat (e.g. "STANDARD\\2,3").
type FilmBox struct {
	SOPInstanceUID     string
	FilmSessionUID     string
	ImageDisplayFormat string
	Polarity           string
	Magnification      string
	ColorMode          ColorMode
	ImageBoxes         []*ImageBox
}

// ImageBox is a leaf instance holding (a reference to) one image's pixel
// data within a FilmBox's grid.
type ImageBox struct {
	SOPInstanceUID     string
	FilmBoxUID         string
	ImageBoxPosition   int
	ReferencedImageUID string
}

// PrintJob is created as a side effect of an N-ACTION "Print" on a FilmBox.
type PrintJob struct {
	SOPInstanceUID  string
	FilmBoxUID      string
	ExecutionStatus string
}

// Printer is the single well-known Printer SOP Instance every acceptor
// exposes (PS3.4 Annex H); its status is read via N-GET, never created or
// deleted.
type Printer struct {
	Status     string
	StatusInfo string
}

// Manager owns one acceptor's print instance tree for the lifetime of an
// association — per §3.10, the tree is in-memory only and never persisted
// across restarts.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*FilmSession
	boxes    map[string]*FilmBox
	images   map[string]*ImageBox
	jobs     map[string]*PrintJob
	printer  Printer
}

// NewManager returns a Manager with its Printer instance in NORMAL status.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*FilmSession),
		boxes:    make(map[string]*FilmBox),
		images:   make(map[string]*ImageBox),
		jobs:     make(map[string]*PrintJob),
		printer:  Printer{Status: PrinterStatusNormal},
	}
}

// CreateFilmSession mints a new film session and returns it; its instance
// UID is in SOPInstanceUID.
func (m *Manager) CreateFilmSession(numberOfCopies int, printPriority, mediumType string) *FilmSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	fs := &FilmSession{
		SOPInstanceUID: uidgen.New(),
		NumberOfCopies: numberOfCopies,
		PrintPriority:  printPriority,
		MediumType:     mediumType,
	}
	m.sessions[fs.SOPInstanceUID] = fs
	return fs
}

// CreateFilmBox mints a film box under filmSessionUID along with the
// imageBoxCount child image boxes imageDisplayFormat implies, returning the
// film box and its freshly minted image boxes in display order.
func (m *Manager) CreateFilmBox(filmSessionUID, imageDisplayFormat string, imageBoxCount int, mode ColorMode) (*FilmBox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[filmSessionUID]
	if !ok {
		return nil, fmt.Errorf("print: no film session with instance UID %q", filmSessionUID)
	}

	box := &FilmBox{
		SOPInstanceUID:     uidgen.New(),
		FilmSessionUID:     filmSessionUID,
		ImageDisplayFormat: imageDisplayFormat,
		ColorMode:          mode,
	}
	for i := 0; i < imageBoxCount; i++ {
		img := &ImageBox{
			SOPInstanceUID:   uidgen.New(),
			FilmBoxUID:       box.SOPInstanceUID,
			ImageBoxPosition: i + 1,
		}
		box.ImageBoxes = append(box.ImageBoxes, img)
		m.images[img.SOPInstanceUID] = img
	}

	session.FilmBoxes = append(session.FilmBoxes, box)
	m.boxes[box.SOPInstanceUID] = box
	return box, nil
}

// SetFilmBox updates mutable attributes of an existing film box.
func (m *Manager) SetFilmBox(sopInstanceUID string, polarity, magnification string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	box, ok := m.boxes[sopInstanceUID]
	if !ok {
		return fmt.Errorf("print: no film box with instance UID %q", sopInstanceUID)
	}
	if polarity != "" {
		box.Polarity = polarity
	}
	if magnification != "" {
		box.Magnification = magnification
	}
	return nil
}

// SetImageBox updates the referenced image of an existing image box.
func (m *Manager) SetImageBox(sopInstanceUID, referencedImageUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	img, ok := m.images[sopInstanceUID]
	if !ok {
		return fmt.Errorf("print: no image box with instance UID %q", sopInstanceUID)
	}
	img.ReferencedImageUID = referencedImageUID
	return nil
}

// Print creates a Print Job for filmBoxUID in PENDING status, as the side
// effect of an N-ACTION "Print" request.
func (m *Manager) Print(filmBoxUID string) (*PrintJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.boxes[filmBoxUID]; !ok {
		return nil, fmt.Errorf("print: no film box with instance UID %q", filmBoxUID)
	}
	job := &PrintJob{
		SOPInstanceUID:  uidgen.New(),
		FilmBoxUID:      filmBoxUID,
		ExecutionStatus: JobStatusPending,
	}
	m.jobs[job.SOPInstanceUID] = job
	return job, nil
}

// PrinterStatus returns the current status of the singleton Printer SOP
// Instance.
func (m *Manager) PrinterStatus() Printer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.printer
}

// DeleteFilmSession removes a film session and cascades to every film box
// and image box it owns. Deleting an instance that doesn't exist is still
// Success (idempotent per §4.7).
func (m *Manager) DeleteFilmSession(sopInstanceUID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sopInstanceUID]
	if !ok {
		return
	}
	for _, box := range session.FilmBoxes {
		m.deleteFilmBoxLocked(box.SOPInstanceUID)
	}
	delete(m.sessions, sopInstanceUID)
}

// DeleteFilmBox removes a film box and cascades to its image boxes.
func (m *Manager) DeleteFilmBox(sopInstanceUID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteFilmBoxLocked(sopInstanceUID)
}

func (m *Manager) deleteFilmBoxLocked(sopInstanceUID string) {
	box, ok := m.boxes[sopInstanceUID]
	if !ok {
		return
	}
	for _, img := range box.ImageBoxes {
		delete(m.images, img.SOPInstanceUID)
	}
	delete(m.boxes, sopInstanceUID)

	if session, ok := m.sessions[box.FilmSessionUID]; ok {
		remaining := session.FilmBoxes[:0]
		for _, b := range session.FilmBoxes {
			if b.SOPInstanceUID != sopInstanceUID {
				remaining = append(remaining, b)
			}
		}
		session.FilmBoxes = remaining
	}
}

// DeleteImageBox removes a single leaf image box.
func (m *Manager) DeleteImageBox(sopInstanceUID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	box, ok := m.images[sopInstanceUID]
	if !ok {
		return
	}
	delete(m.images, sopInstanceUID)
	if parent, ok := m.boxes[box.FilmBoxUID]; ok {
		remaining := parent.ImageBoxes[:0]
		for _, b := range parent.ImageBoxes {
			if b.SOPInstanceUID != sopInstanceUID {
				remaining = append(remaining, b)
			}
		}
		parent.ImageBoxes = remaining
	}
}

// FilmSession, FilmBox, and ImageBox lookups, used by N-GET handlers.

func (m *Manager) FilmSession(uid string) (*FilmSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[uid]
	return s, ok
}

func (m *Manager) FilmBox(uid string) (*FilmBox, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boxes[uid]
	return b, ok
}

func (m *Manager) ImageBox(uid string) (*ImageBox, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.images[uid]
	return i, ok
}

func (m *Manager) PrintJob(uid string) (*PrintJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[uid]
	return j, ok
}

// Tags used to flatten referenced-instance sequences and scalar attributes
// to and from dataset.Dataset, per the package doc's SQ-flattening note.
var (
	TagNumberOfCopies           = dataset.Tag{Group: 0x2000, Element: 0x0010}
	TagPrintPriority            = dataset.Tag{Group: 0x2000, Element: 0x0020}
	TagMediumType               = dataset.Tag{Group: 0x2000, Element: 0x0030}
	TagImageDisplayFormat       = dataset.Tag{Group: 0x2010, Element: 0x0010}
	TagReferencedFilmSessionSeq = dataset.Tag{Group: 0x2010, Element: 0x0500}
	TagReferencedImageBoxSeq    = dataset.Tag{Group: 0x2010, Element: 0x0510}
	TagPolarity                 = dataset.Tag{Group: 0x2020, Element: 0x0020}
	TagMagnification            = dataset.Tag{Group: 0x2020, Element: 0x0030}
	TagReferencedImageUID       = dataset.Tag{Group: 0x0008, Element: 0x1155}
	TagPrinterStatus            = dataset.Tag{Group: 0x2110, Element: 0x0010}
	TagPrinterStatusInfo        = dataset.Tag{Group: 0x2110, Element: 0x0020}
	TagExecutionStatus          = dataset.Tag{Group: 0x2100, Element: 0x0020}
)

// ActionTypePrint is the N-ACTION Action Type ID for "Print" on a Basic
// Film Box (PS3.3 C.13.2).
const ActionTypePrint uint16 = 1
