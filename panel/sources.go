package panel

// Named constructors for the standard supplementary surveillance feeds. Each
// pins the source name the rest of the pipeline keys on and the namespacing
// rule for its location codes.

// NewILINet returns the outpatient ILINet feed. Territories without stable
// reporting are dropped.
func NewILINet(path string) *SupplementaryCSV {
	return &SupplementaryCSV{
		SourceName:    "ilinet",
		Path:          path,
		DropLocations: []string{"vi", "pr", "dc"},
	}
}

// NewFluSurv returns the FluSurv-NET hospitalization surveillance feed.
func NewFluSurv(path string) *SupplementaryCSV {
	return &SupplementaryCSV{
		SourceName: "flusurv",
		Path:       path,
	}
}

// NewNHSN returns the NHSN hospital admissions feed.
func NewNHSN(path string) *SupplementaryCSV {
	return &SupplementaryCSV{
		SourceName: "nhsn",
		Path:       path,
	}
}

// NewNSSP returns the NSSP emergency department feed. NSSP reports several
// geography types whose raw codes overlap, so its location keys include the
// aggregation level.
func NewNSSP(path string) *SupplementaryCSV {
	return &SupplementaryCSV{
		SourceName: "nssp",
		Path:       path,
		MultiGeo:   true,
	}
}
