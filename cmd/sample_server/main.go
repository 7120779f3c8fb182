// Command sample_server is a minimal DICOM acceptor illustrating how to
// wire server.Server to the Verification, Print Management, and Modality
// Worklist/MPPS services. Not a production SCP — no persistence beyond
// process memory, no CLI surface beyond the flags needed to point it at an
// address. Grounded on the teacher's cmd/sample_server/main.go.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dicomkit/ulp/assoc"
	"github.com/dicomkit/ulp/config"
	"github.com/dicomkit/ulp/dimse"
	"github.com/dicomkit/ulp/metrics"
	"github.com/dicomkit/ulp/print"
	"github.com/dicomkit/ulp/server"
	"github.com/dicomkit/ulp/types"
	"github.com/dicomkit/ulp/worklist"
)

func main() {
	address := flag.String("address", ":4242", "TCP address to listen on")
	aeTitle := flag.String("ae", "SAMPLE_SCP", "acceptor AE title")
	metricsAddress := flag.String("metrics-address", ":9090", "HTTP address for the Prometheus exposition endpoint")
	colorMode := flag.String("print-color-mode", "grayscale", "print color mode: grayscale or color")
	configPath := flag.String("config", "", "optional YAML config file (overrides the flags above; ULP_-prefixed env vars override the file)")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	logger := log.Logger

	mode := print.Grayscale
	if *colorMode == "color" {
		mode = print.Color
	}

	listenAddress := *address
	aeTitleValue := *aeTitle
	metricsAddr := *metricsAddress
	var maxPDULength uint32
	var readTimeout, writeTimeout time.Duration

	if *configPath != "" {
		cfg, err := config.LoadServer(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load server config")
		}
		listenAddress = cfg.ListenAddress
		aeTitleValue = cfg.CalledAETitle
		maxPDULength = cfg.MaxPDULength
		readTimeout = cfg.ReadTimeout
		writeTimeout = cfg.WriteTimeout
		if cfg.MetricsAddr != "" {
			metricsAddr = cfg.MetricsAddr
		}
	}

	calledAETitle, err := types.NewAET(aeTitleValue)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid AE title")
	}

	registry := dimse.NewRegistry()
	registry.RegisterHandler(types.CEchoRQ, server.EchoHandler{})

	printManager := print.NewManager()
	print.RegisterHandlers(registry, printManager, mode)

	mppsManager := worklist.NewManager()
	worklist.RegisterHandlers(registry, mppsManager)

	mwlStore := worklist.NewStore()
	findDispatcher := server.NewFindDispatcher()
	findDispatcher.Register(types.ModalityWorklistInformationModelFind, &worklist.FindHandler{Store: mwlStore})
	registry.RegisterHandler(types.CFindRQ, findDispatcher)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go serveMetrics(ctx, metricsAddr, reg, logger)

	negotiator := assoc.NegotiatorFunc(func(abstractSyntax string, proposed []string) (string, bool) {
		for _, ts := range proposed {
			if ts == types.ImplicitVRLittleEndian || ts == types.ExplicitVRLittleEndian {
				return ts, true
			}
		}
		return "", false
	})

	opts := []server.Option{server.WithLogger(logger), server.WithMetrics(m)}
	if maxPDULength != 0 {
		opts = append(opts, server.WithMaxPDULength(maxPDULength))
	}
	if readTimeout != 0 {
		opts = append(opts, server.WithReadTimeout(readTimeout))
	}
	if writeTimeout != 0 {
		opts = append(opts, server.WithWriteTimeout(writeTimeout))
	}

	err = server.ListenAndServe(ctx, listenAddress, calledAETitle, registry, negotiator, opts...)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logger.Info().Msg("sample server stopped")
	default:
		logger.Fatal().Err(err).Msg("sample server terminated unexpectedly")
	}
}

func serveMetrics(ctx context.Context, address string, reg *prometheus.Registry, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: address, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn().Err(err).Str("address", address).Msg("metrics server stopped")
	}
}
