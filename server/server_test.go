package server

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dicomkit/ulp/assoc"
	"github.com/dicomkit/ulp/dimse"
	"github.com/dicomkit/ulp/metrics"
	"github.com/dicomkit/ulp/types"
	"github.com/dicomkit/ulp/worklist"

	"github.com/prometheus/client_golang/prometheus"
)

func discardLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

const (
	testVerificationSOPClass = "1.2.840.10008.1.1"
	testImplicitVRLE         = "1.2.840.10008.1.2"
)

func acceptImplicitVRLE(abstractSyntax string, proposed []string) (string, bool) {
	for _, ts := range proposed {
		if ts == testImplicitVRLE {
			return ts, true
		}
	}
	return "", false
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ln
}

func TestServeHandlesEcho(t *testing.T) {
	ln := listen(t)

	registry := dimse.NewRegistry()
	registry.RegisterHandler(types.CEchoRQ, EchoHandler{})

	m := metrics.New(prometheus.NewRegistry())
	srv := New(types.AET("CALLED_AE"), registry, assoc.NegotiatorFunc(acceptImplicitVRLE),
		WithLogger(discardLogger()), WithMetrics(m))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx, ln) }()

	cfg := assoc.Config{
		CallingAETitle: types.AET("CALLING_AE"),
		CalledAETitle:  types.AET("CALLED_AE"),
		Proposals: []assoc.Proposal{
			{AbstractSyntax: testVerificationSOPClass, TransferSyntaxes: []string{testImplicitVRLE}},
		},
	}
	connectCtx, connectCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer connectCancel()
	client, err := assoc.Connect(connectCtx, ln.Addr().String(), cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	resp, err := dimse.NewClient(client).Echo(1)
	if err != nil {
		t.Fatalf("Echo: %v", err)
	}
	if resp.Status != types.StatusSuccess {
		t.Errorf("Echo status = 0x%04x, want Success", resp.Status)
	}

	if err := client.Release(connectCtx); err != nil {
		t.Fatalf("Release: %v", err)
	}

	cancel()
	ln.Close()
	<-serveErr
}

func TestFindDispatcherRoutesBySOPClass(t *testing.T) {
	store := worklist.NewStore()
	store.Add(worklist.ScheduledProcedureStep{ScheduledStationAETitle: "CT1", StepID: "SPS1"})

	dispatcher := NewFindDispatcher()
	dispatcher.Register(types.ModalityWorklistInformationModelFind, &worklist.FindHandler{Store: store})

	registry := dimse.NewRegistry()
	registry.RegisterHandler(types.CFindRQ, dispatcher)

	req := &types.Message{
		CommandField:        types.CFindRQ,
		MessageID:           1,
		AffectedSOPClassUID: types.ModalityWorklistInformationModelFind,
	}
	resp, _, err := registry.HandleDIMSE(context.Background(), req, nil, dimse.MessageContext{})
	if err != nil {
		t.Fatalf("HandleDIMSE: %v", err)
	}
	if resp.Status != types.StatusRefused && resp.Status != types.StatusSuccess && resp.Status != types.StatusPending {
		t.Fatalf("unexpected status 0x%04x", resp.Status)
	}

	unknownReq := &types.Message{
		CommandField:        types.CFindRQ,
		MessageID:           2,
		AffectedSOPClassUID: types.StudyRootQueryRetrieveInformationModelFind,
	}
	resp, _, err = registry.HandleDIMSE(context.Background(), unknownReq, nil, dimse.MessageContext{})
	if err != nil {
		t.Fatalf("HandleDIMSE: %v", err)
	}
	if resp.Status != types.StatusRefused {
		t.Errorf("unregistered SOP class status = 0x%04x, want Refused", resp.Status)
	}
}
