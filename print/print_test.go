package print

import "testing"

func TestSelectMetaSOPClassUID(t *testing.T) {
	if got := SelectMetaSOPClassUID(Grayscale); got == "" {
		t.Fatal("SelectMetaSOPClassUID(Grayscale) returned empty")
	}
	if got := SelectMetaSOPClassUID(Color); got == SelectMetaSOPClassUID(Grayscale) {
		t.Fatalf("SelectMetaSOPClassUID(Color) = %q, want different from grayscale", got)
	}
}

func TestFilmSessionLifecycle(t *testing.T) {
	m := NewManager()
	fs := m.CreateFilmSession(2, "HIGH", "PAPER")
	if fs.SOPInstanceUID == "" {
		t.Fatal("CreateFilmSession returned empty instance UID")
	}

	box, err := m.CreateFilmBox(fs.SOPInstanceUID, "STANDARD\\2,2", 4, Grayscale)
	if err != nil {
		t.Fatalf("CreateFilmBox: %v", err)
	}
	if len(box.ImageBoxes) != 4 {
		t.Fatalf("len(ImageBoxes) = %d, want 4", len(box.ImageBoxes))
	}

	if err := m.SetFilmBox(box.SOPInstanceUID, "NORMAL", "NONE"); err != nil {
		t.Fatalf("SetFilmBox: %v", err)
	}
	got, ok := m.FilmBox(box.SOPInstanceUID)
	if !ok || got.Polarity != "NORMAL" {
		t.Fatalf("FilmBox after SetFilmBox = %+v", got)
	}

	job, err := m.Print(box.SOPInstanceUID)
	if err != nil {
		t.Fatalf("Print: %v", err)
	}
	if job.SOPInstanceUID == "" || job.ExecutionStatus != JobStatusPending {
		t.Fatalf("Print job = %+v", job)
	}

	m.DeleteFilmSession(fs.SOPInstanceUID)
	if _, ok := m.FilmBox(box.SOPInstanceUID); ok {
		t.Fatal("film box still present after cascading delete of its session")
	}
	for _, img := range box.ImageBoxes {
		if _, ok := m.ImageBox(img.SOPInstanceUID); ok {
			t.Fatalf("image box %s still present after cascading delete", img.SOPInstanceUID)
		}
	}
}

func TestDeleteAbsentInstanceIsIdempotent(t *testing.T) {
	m := NewManager()
	m.DeleteFilmSession("1.2.3.nonexistent")
	m.DeleteFilmBox("1.2.3.nonexistent")
	m.DeleteImageBox("1.2.3.nonexistent")
}

func TestCreateFilmBoxUnknownSessionErrors(t *testing.T) {
	m := NewManager()
	if _, err := m.CreateFilmBox("1.2.3.nonexistent", "STANDARD\\1,1", 1, Grayscale); err == nil {
		t.Fatal("expected error for unknown film session")
	}
}

func TestPrinterStatusDefaultsToNormal(t *testing.T) {
	m := NewManager()
	if got := m.PrinterStatus(); got.Status != PrinterStatusNormal {
		t.Errorf("PrinterStatus().Status = %q, want NORMAL", got.Status)
	}
}
