package models

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Kind is the library event a transaction records.
type Kind string

const (
	KindLoan             Kind = "LOAN"
	KindReturn           Kind = "RETURN"
	KindFinePayment      Kind = "FINE_PAYMENT"
	KindLoanModification Kind = "LOAN_MODIFICATION"
	// KindMiningReward marks the coinbase transaction added while mining.
	KindMiningReward Kind = "MINING_REWARD"
)

var ErrUnknownKind = errors.New("unknown transaction kind")

var kinds = []Kind{KindLoan, KindReturn, KindFinePayment, KindLoanModification, KindMiningReward}

// ParseKind maps a kind name, in any case, to its Kind.
func ParseKind(s string) (Kind, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for _, k := range kinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", ErrUnknownKind
}

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

func (k Kind) String() string { return string(k) }

// Transaction is one library event recorded in the ledger. Fields are not
// changed after construction; Sign only fills Signature.
type Transaction struct {
	Kind        Kind   `json:"kind"`
	ActorID     int64  `json:"actorId"`
	ActorName   string `json:"actorName"`
	SubjectID   int64  `json:"subjectId"`
	SubjectName string `json:"subjectName"`
	Detail      string `json:"detail"`
	Timestamp   int64  `json:"timestamp"` // unix milliseconds
	Signature   string `json:"signature"`
}

// NewTransaction returns an unsigned transaction stamped with the current time.
// Text fields are cleaned so they survive a JSON round trip unchanged.
func NewTransaction(kind Kind, actorID int64, actorName string, subjectID int64, subjectName, detail string) Transaction {
	return Transaction{
		Kind:        kind,
		ActorID:     actorID,
		ActorName:   cleanText(actorName),
		SubjectID:   subjectID,
		SubjectName: cleanText(subjectName),
		Detail:      cleanText(detail),
		Timestamp:   time.Now().UnixMilli(),
	}
}

// cleanText replaces invalid UTF-8 and drops NUL, which Postgres JSONB rejects.
func cleanText(s string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(s, "\uFFFD"), "\x00", "")
}

// Sign stores the signature of tx under secret. Signing again with the same
// secret yields the same value.
func (tx *Transaction) Sign(secret string) {
	tx.Signature = Signature(*tx, secret)
}

// Verify reports whether tx carries the signature produced by secret.
func (tx Transaction) Verify(secret string) bool {
	return tx.Signature != "" && tx.Signature == Signature(tx, secret)
}

// IsSigned reports whether a signature is present.
func (tx Transaction) IsSigned() bool { return tx.Signature != "" }

// Signature computes the hex SHA-256 digest of the signed fields of tx
// followed by secret. The existing Signature field is ignored. Every field is
// length prefixed so no two distinct transactions share an encoding.
func Signature(tx Transaction, secret string) string {
	var b strings.Builder
	for _, field := range []string{
		string(tx.Kind),
		strconv.FormatInt(tx.ActorID, 10),
		strconv.FormatInt(tx.SubjectID, 10),
		tx.Detail,
		strconv.FormatInt(tx.Timestamp, 10),
		secret,
	} {
		b.WriteString(strconv.Itoa(len(field)))
		b.WriteByte(':')
		b.WriteString(field)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
