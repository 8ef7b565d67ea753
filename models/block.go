package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// GenesisPreviousHash is the previous hash carried by block 0.
const GenesisPreviousHash = "0"

// MaxDifficulty bounds the proof of work. Each extra digit multiplies the
// expected search by 16.
const MaxDifficulty = 8

// Block is an ordered batch of transactions linked to its predecessor by hash.
type Block struct {
	Index        int64         `json:"index"`
	Timestamp    int64         `json:"timestamp"` // unix milliseconds
	Transactions []Transaction `json:"transactions"`
	PreviousHash string        `json:"previousHash"`
	Nonce        int64         `json:"nonce"`
	Hash         string        `json:"hash"`
}

// NewBlock builds an unmined block with nonce 0 and its hash computed once.
func NewBlock(index int64, transactions []Transaction, previousHash string) Block {
	txs := make([]Transaction, len(transactions))
	copy(txs, transactions)
	b := Block{
		Index:        index,
		Timestamp:    time.Now().UnixMilli(),
		Transactions: txs,
		PreviousHash: previousHash,
	}
	b.Hash = b.ComputeHash()
	return b
}

// NewGenesisBlock returns block 0: no transactions, previous hash "0".
func NewGenesisBlock() Block {
	return NewBlock(0, []Transaction{}, GenesisPreviousHash)
}

// ComputeHash returns the hex SHA-256 digest of index, timestamp, the JSON
// encoded transactions, previous hash and nonce.
func (b Block) ComputeHash() string {
	return digest(b.header(), b.Nonce)
}

// Mine searches nonces until the block hash has difficulty leading zero hex
// digits. There is no upper bound on the search.
func (b *Block) Mine(difficulty int) {
	header := b.header()
	prefix := strings.Repeat("0", difficulty)
	for {
		b.Hash = digest(header, b.Nonce)
		if strings.HasPrefix(b.Hash, prefix) {
			return
		}
		b.Nonce++
	}
}

// MeetsDifficulty reports whether hash starts with difficulty '0' characters.
func MeetsDifficulty(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if len(hash) < difficulty {
		return false
	}
	return strings.Count(hash[:difficulty], "0") == difficulty
}

// IsGenesis reports whether b is a well formed genesis block.
func (b Block) IsGenesis() bool {
	return b.Index == 0 &&
		b.PreviousHash == GenesisPreviousHash &&
		len(b.Transactions) == 0 &&
		b.Hash == b.ComputeHash()
}

// Clone returns a copy of b whose transaction slice is not shared.
func (b Block) Clone() Block {
	c := b
	c.Transactions = make([]Transaction, len(b.Transactions))
	copy(c.Transactions, b.Transactions)
	return c
}

// header is the nonce independent part of the hashed payload.
func (b Block) header() string {
	txs := b.Transactions
	if txs == nil {
		txs = []Transaction{}
	}
	// Marshal of a slice of plain structs cannot fail.
	encoded, _ := json.Marshal(txs)

	var sb strings.Builder
	sb.WriteString(strconv.FormatInt(b.Index, 10))
	sb.WriteString(strconv.FormatInt(b.Timestamp, 10))
	sb.Write(encoded)
	sb.WriteString(b.PreviousHash)
	return sb.String()
}

func digest(header string, nonce int64) string {
	sum := sha256.Sum256([]byte(header + strconv.FormatInt(nonce, 10)))
	return hex.EncodeToString(sum[:])
}
