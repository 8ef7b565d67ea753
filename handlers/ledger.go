package handlers

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/daccred/library-ledger/models"
)

var (
	ErrUnsignedTransaction = errors.New("transaction is not signed")
	ErrBlockNotFound       = errors.New("block not found")
	ErrChainInvalid        = errors.New("chain is invalid")
)

// LedgerConfig holds the parameters fixed at ledger construction.
type LedgerConfig struct {
	Difficulty        int
	MiningRewardLabel string
	// SigningSecret signs coinbase transactions.
	SigningSecret string
}

// normalized clamps Difficulty into [0, models.MaxDifficulty].
func (c LedgerConfig) normalized() LedgerConfig {
	if c.Difficulty < 0 {
		c.Difficulty = 0
	}
	if c.Difficulty > models.MaxDifficulty {
		c.Difficulty = models.MaxDifficulty
	}
	return c
}

// Ledger owns the chain of mined blocks and the pool of pending transactions.
type Ledger struct {
	config  LedgerConfig
	mu      sync.RWMutex
	chain   []models.Block
	pending []models.Transaction
	logger  *logrus.Entry
}

// NewLedger creates a ledger holding only the genesis block.
func NewLedger(cfg LedgerConfig, logger *logrus.Entry) *Ledger {
	cfg = cfg.normalized()
	genesis := models.NewGenesisBlock()
	logger.WithField("hash", genesis.Hash).Debug("Created genesis block")
	return &Ledger{
		config:  cfg,
		chain:   []models.Block{genesis},
		pending: make([]models.Transaction, 0),
		logger:  logger,
	}
}

// RestoreLedger rebuilds a ledger from previously mined blocks. The blocks
// must form a valid chain under cfg.Difficulty.
func RestoreLedger(cfg LedgerConfig, blocks []models.Block, logger *logrus.Entry) (*Ledger, error) {
	cfg = cfg.normalized()
	if len(blocks) == 0 {
		return nil, fmt.Errorf("restore: no blocks: %w", ErrChainInvalid)
	}
	chain := make([]models.Block, len(blocks))
	for i, b := range blocks {
		chain[i] = b.Clone()
	}
	if err := validateChain(chain, cfg.Difficulty); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	logger.Infof("Restored ledger with %d blocks", len(chain))
	return &Ledger{
		config:  cfg,
		chain:   chain,
		pending: make([]models.Transaction, 0),
		logger:  logger,
	}, nil
}

// AddTransaction queues a signed transaction for the next block.
func (l *Ledger) AddTransaction(tx models.Transaction) error {
	if !tx.IsSigned() {
		return ErrUnsignedTransaction
	}
	l.mu.Lock()
	l.pending = append(l.pending, tx)
	l.mu.Unlock()
	return nil
}

// MinePendingTransactions mines every pending transaction plus a coinbase
// transaction into a new block. It returns false when the pool is empty.
//
// The proof-of-work search runs without holding the lock. If another block
// was appended in the meantime the result is discarded and mining restarts
// on the new tail.
func (l *Ledger) MinePendingTransactions(rewardAddress string) (models.Block, bool) {
	for attempt := 1; ; attempt++ {
		l.mu.RLock()
		if len(l.pending) == 0 {
			l.mu.RUnlock()
			return models.Block{}, false
		}
		snapshot := make([]models.Transaction, len(l.pending), len(l.pending)+1)
		copy(snapshot, l.pending)
		tail := l.chain[len(l.chain)-1]
		l.mu.RUnlock()

		reward := models.NewTransaction(models.KindMiningReward, 0, "", 0, rewardAddress, l.config.MiningRewardLabel)
		reward.Sign(l.config.SigningSecret)

		block := models.NewBlock(tail.Index+1, append(snapshot, reward), tail.Hash)
		started := time.Now()
		block.Mine(l.config.Difficulty)
		elapsed := time.Since(started)

		l.mu.Lock()
		current := l.chain[len(l.chain)-1]
		if current.Hash != tail.Hash {
			l.mu.Unlock()
			l.logger.Warnf("Chain tail moved while mining block %d (attempt %d), retrying", block.Index, attempt)
			continue
		}
		l.chain = append(l.chain, block)
		// Only mining removes from the pool, so with an unchanged tail the
		// snapshot is still a prefix of pending.
		remaining := make([]models.Transaction, len(l.pending)-len(snapshot))
		copy(remaining, l.pending[len(snapshot):])
		l.pending = remaining
		l.mu.Unlock()

		l.logger.WithFields(logrus.Fields{
			"index":        block.Index,
			"hash":         block.Hash,
			"nonce":        block.Nonce,
			"transactions": len(block.Transactions),
			"elapsed":      elapsed,
		}).Info("Mined block")
		return block.Clone(), true
	}
}

// IsChainValid reports whether every block matches its hash, links to its
// predecessor and satisfies the proof-of-work difficulty.
func (l *Ledger) IsChainValid() bool {
	return l.Validate() == nil
}

// Validate returns the first integrity violation found in the chain.
func (l *Ledger) Validate() error {
	l.mu.RLock()
	// Blocks are never mutated in place, so the slice header is a
	// consistent snapshot even after the lock is released.
	chain := l.chain[:len(l.chain):len(l.chain)]
	l.mu.RUnlock()
	return validateChain(chain, l.config.Difficulty)
}

func validateChain(chain []models.Block, difficulty int) error {
	if len(chain) == 0 {
		return fmt.Errorf("empty chain: %w", ErrChainInvalid)
	}
	if !chain[0].IsGenesis() {
		return fmt.Errorf("block 0: malformed genesis: %w", ErrChainInvalid)
	}
	for i := 1; i < len(chain); i++ {
		current, previous := chain[i], chain[i-1]
		if current.Index != previous.Index+1 {
			return fmt.Errorf("block %d: index %d does not follow %d: %w", i, current.Index, previous.Index, ErrChainInvalid)
		}
		if expected := current.ComputeHash(); current.Hash != expected {
			return fmt.Errorf("block %d: hash %s does not match contents %s: %w", i, current.Hash, expected, ErrChainInvalid)
		}
		if current.PreviousHash != previous.Hash {
			return fmt.Errorf("block %d: previous hash %s does not link to %s: %w", i, current.PreviousHash, previous.Hash, ErrChainInvalid)
		}
		if !models.MeetsDifficulty(current.Hash, difficulty) {
			return fmt.Errorf("block %d: hash %s misses difficulty %d: %w", i, current.Hash, difficulty, ErrChainInvalid)
		}
	}
	return nil
}

// Chain returns a copy of every mined block, genesis first.
func (l *Ledger) Chain() []models.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Block, len(l.chain))
	for i, b := range l.chain {
		out[i] = b.Clone()
	}
	return out
}

// Block returns the block at index.
func (l *Ledger) Block(index int64) (models.Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= int64(len(l.chain)) {
		return models.Block{}, fmt.Errorf("block %d: %w", index, ErrBlockNotFound)
	}
	return l.chain[index].Clone(), nil
}

// LatestBlock returns the chain tail.
func (l *Ledger) LatestBlock() models.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chain[len(l.chain)-1].Clone()
}

// PendingTransactions returns a copy of the pool.
func (l *Ledger) PendingTransactions() []models.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Transaction, len(l.pending))
	copy(out, l.pending)
	return out
}

func (l *Ledger) PendingCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pending)
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.chain)
}

func (l *Ledger) Difficulty() int { return l.config.Difficulty }

// TransactionsForUser returns mined transactions whose actor is userID.
func (l *Ledger) TransactionsForUser(userID int64) []models.Transaction {
	return l.filter(func(tx models.Transaction) bool {
		return tx.Kind != models.KindMiningReward && tx.ActorID == userID
	})
}

// TransactionsForBook returns mined transactions whose subject is bookID.
func (l *Ledger) TransactionsForBook(bookID int64) []models.Transaction {
	return l.filter(func(tx models.Transaction) bool {
		return tx.Kind != models.KindMiningReward && tx.SubjectID == bookID
	})
}

// TransactionsByType returns mined transactions of the given kind.
func (l *Ledger) TransactionsByType(kind models.Kind) []models.Transaction {
	return l.filter(func(tx models.Transaction) bool { return tx.Kind == kind })
}

func (l *Ledger) filter(keep func(models.Transaction) bool) []models.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Transaction, 0)
	for _, b := range l.chain {
		for _, tx := range b.Transactions {
			if keep(tx) {
				out = append(out, tx)
			}
		}
	}
	return out
}
