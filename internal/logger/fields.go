package logger

// Standard field keys used across fsguard log lines. Using the same key
// for the same concept everywhere keeps the JSON output greppable.
const (
	KeyTxnID      = "txn_id"
	KeyCapability = "capability"
	KeyOp         = "op"
	KeyPath       = "path"
	KeySource     = "source"
	KeyDest       = "dest"
	KeyOutcome    = "outcome"
	KeySequence   = "seq"
	KeyError      = "error"
	KeyDurationMs = "duration_ms"
)
