package config

const (
	// InsertChunkSize bounds one multi-row INSERT during batch persistence.
	InsertChunkSize = 50

	// DedupWindowDays pads the statement period on both sides when fetching
	// existing account history for cross-batch duplicate checks.
	DedupWindowDays = 7

	// SequenceRenumberCutoff is the account transaction count above which the
	// dense per-account renumber is skipped to bound request latency.
	SequenceRenumberCutoff = 10000

	// DescriptionKeyLen is how much of the description participates in the
	// cross-batch duplicate lookup key.
	DescriptionKeyLen = 50

	// ClassifierSampleRows is how many leading data rows the column
	// classifier inspects per column.
	ClassifierSampleRows = 20

	// StaleBatchMaxAgeMinutes before a batch still in `processing` is swept
	// to `failed` by the maintenance job.
	StaleBatchMaxAgeMinutes = 60

	DefaultStaleSweepSchedule = "*/15 * * * *"
	DefaultRenumberSchedule   = "30 2 * * *"
)
