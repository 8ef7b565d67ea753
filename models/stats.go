package models

import "time"

// LedgerStatus is the summary served on /status.
type LedgerStatus struct {
	BlockCount          int  `json:"blockCount"`
	PendingTransactions int  `json:"pendingTransactions"`
	IsValid             bool `json:"isValid"`
	Difficulty          int  `json:"difficulty"`
}

// Stats tracks orchestrator activity since start.
type Stats struct {
	TransactionsRecorded int64     `json:"transactions_recorded"`
	BlocksMined          int64     `json:"blocks_mined"`
	LastMinedAt          time.Time `json:"last_mined_at"`
	LastValidatedAt      time.Time `json:"last_validated_at"`
	LastValidationOK     bool      `json:"last_validation_ok"`
	StartTime            time.Time `json:"start_time"`
}
