// Command sample_client associates to a DICOM acceptor, issues a C-ECHO,
// then a Modality Worklist C-FIND, then releases — illustrating the
// requestor side of assoc/dimse. Grounded on the teacher's
// cmd/sample_server/main.go wiring style, adapted to a requestor.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dicomkit/ulp/assoc"
	"github.com/dicomkit/ulp/config"
	"github.com/dicomkit/ulp/dataset"
	"github.com/dicomkit/ulp/dimse"
	"github.com/dicomkit/ulp/types"
	"github.com/dicomkit/ulp/worklist"
)

func main() {
	address := flag.String("address", "127.0.0.1:4242", "TCP address of the acceptor")
	callingAETitle := flag.String("calling-ae", "SAMPLE_SCU", "requestor AE title")
	calledAETitle := flag.String("called-ae", "SAMPLE_SCP", "acceptor AE title")
	stationAETitle := flag.String("station-ae", "", "Scheduled Station AE Title to query for (empty matches any)")
	configPath := flag.String("config", "", "optional YAML config file (overrides the flags above; ULP_-prefixed env vars override the file)")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	logger := log.Logger

	var assocCfg assoc.Config
	if *configPath != "" {
		fileCfg, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load association config")
		}
		assocCfg = fileCfg.ToAssocConfig()
	} else {
		assocCfg = assoc.Config{
			CallingAETitle: types.AET(*callingAETitle),
			CalledAETitle:  types.AET(*calledAETitle),
			Proposals: []assoc.Proposal{
				{
					AbstractSyntax:   types.VerificationSOPClass,
					TransferSyntaxes: []string{types.ImplicitVRLittleEndian},
				},
				{
					AbstractSyntax:   types.ModalityWorklistInformationModelFind,
					TransferSyntaxes: []string{types.ImplicitVRLittleEndian},
				},
			},
		}
	}
	assocCfg.Logger = &logger

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	association, err := assoc.Connect(ctx, *address, assocCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("association failed")
	}

	client := dimse.NewClient(association)

	echoResp, err := client.Echo(1)
	if err != nil {
		logger.Fatal().Err(err).Msg("C-ECHO failed")
	}
	logger.Info().Uint16("status", echoResp.Status).Msg("C-ECHO succeeded")

	identifier := dataset.NewDataset()
	if *stationAETitle != "" {
		identifier.AddElement(worklist.TagScheduledStationAETitle, dataset.VR_AE, *stationAETitle)
	}

	findResp, err := client.Find(&dimse.FindRequest{
		SOPClassUID: types.ModalityWorklistInformationModelFind,
		MessageID:   2,
		Dataset:     identifier,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("C-FIND failed")
	}
	for _, r := range findResp {
		if r.Dataset != nil {
			logger.Info().Str("step_id", r.Dataset.GetString(worklist.TagScheduledProcedureStepID)).Msg("worklist match")
		}
	}

	if err := association.Release(ctx); err != nil {
		logger.Fatal().Err(err).Msg("release failed")
	}
}
