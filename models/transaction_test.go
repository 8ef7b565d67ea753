package models

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransaction(t *testing.T) {
	before := time.Now().UnixMilli()
	tx := NewTransaction(KindLoan, 42, "alice", 7, "Dune", "borrowed, due in 14 days")

	assert.Equal(t, KindLoan, tx.Kind)
	assert.Equal(t, int64(42), tx.ActorID)
	assert.Equal(t, "alice", tx.ActorName)
	assert.Equal(t, int64(7), tx.SubjectID)
	assert.Equal(t, "Dune", tx.SubjectName)
	assert.Equal(t, "borrowed, due in 14 days", tx.Detail)
	assert.GreaterOrEqual(t, tx.Timestamp, before)
	assert.Empty(t, tx.Signature)
	assert.False(t, tx.IsSigned())
}

func TestSign(t *testing.T) {
	tx := NewTransaction(KindFinePayment, 1, "bob", 2, "Emma", "paid 3.00")

	t.Run("Signing is idempotent", func(t *testing.T) {
		tx.Sign("secret")
		first := tx.Signature
		tx.Sign("secret")
		assert.Equal(t, first, tx.Signature)
		assert.Len(t, first, 64)
	})

	t.Run("Signing only touches the signature", func(t *testing.T) {
		before := tx
		tx.Sign("other")
		before.Signature = tx.Signature
		assert.Equal(t, before, tx)
	})

	t.Run("Signature is a pure function of fields and secret", func(t *testing.T) {
		tx.Sign("secret")
		assert.Equal(t, Signature(tx, "secret"), tx.Signature)
		assert.NotEqual(t, Signature(tx, "secret"), Signature(tx, "other"))
	})
}

func TestVerify(t *testing.T) {
	signed := NewTransaction(KindReturn, 5, "carol", 9, "Ulysses", "returned 2026-10-01")
	signed.Sign("secret")

	tests := []struct {
		name   string
		mutate func(tx *Transaction)
		secret string
		valid  bool
	}{
		{name: "Untouched", mutate: func(*Transaction) {}, secret: "secret", valid: true},
		{name: "Wrong secret", mutate: func(*Transaction) {}, secret: "guess", valid: false},
		{name: "Detail forged", mutate: func(tx *Transaction) { tx.Detail = "never borrowed" }, secret: "secret", valid: false},
		{name: "Actor swapped", mutate: func(tx *Transaction) { tx.ActorID = 6 }, secret: "secret", valid: false},
		{name: "Kind changed", mutate: func(tx *Transaction) { tx.Kind = KindLoan }, secret: "secret", valid: false},
		{name: "Timestamp moved", mutate: func(tx *Transaction) { tx.Timestamp++ }, secret: "secret", valid: false},
		{name: "Signature removed", mutate: func(tx *Transaction) { tx.Signature = "" }, secret: "secret", valid: false},
		{name: "Digits shifted from timestamp to detail", mutate: func(tx *Transaction) {
			ts := strconv.FormatInt(tx.Timestamp, 10)
			tx.Detail += ts[:1]
			tx.Timestamp, _ = strconv.ParseInt(ts[1:], 10, 64)
		}, secret: "secret", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := signed
			tt.mutate(&tx)
			assert.Equal(t, tt.valid, tx.Verify(tt.secret))
		})
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		input    string
		expected Kind
		wantErr  bool
	}{
		{input: "LOAN", expected: KindLoan},
		{input: "return", expected: KindReturn},
		{input: " Fine_Payment ", expected: KindFinePayment},
		{input: "LOAN_MODIFICATION", expected: KindLoanModification},
		{input: "MINING_REWARD", expected: KindMiningReward},
		{input: "RENEWAL", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			kind, err := ParseKind(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, kind)
		})
	}
}

func TestKinds(t *testing.T) {
	all := Kinds()
	require.Len(t, all, 5)
	for _, k := range all {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	all[0] = "MUTATED"
	assert.Equal(t, KindLoan, Kinds()[0])
}

func TestNewTransactionCleansText(t *testing.T) {
	tx := NewTransaction(KindLoan, 1, "al\x00ice", 2, "Du\xffne", "borrowed\x00 \xc3")
	assert.Equal(t, "alice", tx.ActorName)
	assert.Equal(t, "Du\uFFFDne", tx.SubjectName)
	assert.Equal(t, "borrowed \uFFFD", tx.Detail)

	tx.Sign("secret")
	encoded, err := json.Marshal(tx)
	require.NoError(t, err)
	var restored Transaction
	require.NoError(t, json.Unmarshal(encoded, &restored))
	assert.Equal(t, tx, restored)
	assert.True(t, restored.Verify("secret"))
}

func TestSignatureFieldBoundaries(t *testing.T) {
	tx := NewTransaction(KindLoan, 1, "alice", 23, "Dune", "borrowed")
	tx.Sign("secret")

	forged := tx
	forged.ActorID, forged.SubjectID = 12, 3
	assert.False(t, forged.Verify("secret"))
	assert.NotEqual(t, Signature(tx, "secret"), Signature(forged, "secret"))
}
