package types

// AssocState is one of the thirteen association states of the DICOM Upper
// Layer state machine (PS3.8 §9.2, Table 9-10).
type AssocState int

const (
	Sta1  AssocState = iota + 1 // Idle
	Sta2                        // Transport connection open, awaiting A-ASSOCIATE-RQ PDU
	Sta3                        // Awaiting local A-ASSOCIATE response primitive
	Sta4                        // Awaiting transport connection opening to complete
	Sta5                        // Awaiting A-ASSOCIATE-AC or A-ASSOCIATE-RJ PDU
	Sta6                        // Association established, ready for data transfer
	Sta7                        // Awaiting A-RELEASE-RP PDU
	Sta8                        // Awaiting local A-RELEASE response primitive
	Sta9                        // Release collision, awaiting A-RELEASE response primitive
	Sta10                       // Release collision, awaiting A-RELEASE-RP PDU
	Sta11                       // Release collision, awaiting A-RELEASE-RP PDU
	Sta12                       // Release collision, awaiting local A-RELEASE response primitive
	Sta13                       // Awaiting transport connection close
)

func (s AssocState) String() string {
	names := map[AssocState]string{
		Sta1: "Sta1", Sta2: "Sta2", Sta3: "Sta3", Sta4: "Sta4",
		Sta5: "Sta5", Sta6: "Sta6", Sta7: "Sta7", Sta8: "Sta8",
		Sta9: "Sta9", Sta10: "Sta10", Sta11: "Sta11", Sta12: "Sta12",
		Sta13: "Sta13",
	}
	if n, ok := names[s]; ok {
		return n
	}
	return "StaUnknown"
}
