package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/daccred/library-ledger/models"
)

// BlockSink receives every block the orchestrator mines.
type BlockSink interface {
	SaveBlock(ctx context.Context, block models.Block) error
}

// OrchestratorConfig holds the recording and mining policy.
type OrchestratorConfig struct {
	SigningSecret      string
	RewardAddress      string
	MiningInterval     time.Duration // 0 disables scheduled mining
	ValidationInterval time.Duration // 0 disables scheduled validation
	Threshold          int
	ThresholdKinds     []models.Kind
	SinkTimeout        time.Duration
}

// Orchestrator turns library events into signed transactions and decides
// when the ledger mines.
type Orchestrator struct {
	ledger         *Ledger
	config         OrchestratorConfig
	thresholdKinds map[models.Kind]bool
	metrics        *Metrics
	sink           BlockSink
	logger         *logrus.Entry

	mu    sync.RWMutex
	stats *models.Stats
	wg    sync.WaitGroup

	archiveMu sync.Mutex
	// archived is the highest block index the sink has accepted.
	archived int64
}

// NewOrchestrator wires an orchestrator around ledger. metrics and sink may be
// nil. A sink is expected to already hold every block of ledger.
func NewOrchestrator(ledger *Ledger, cfg OrchestratorConfig, metrics *Metrics, sink BlockSink, logger *logrus.Entry) *Orchestrator {
	if cfg.RewardAddress == "" {
		cfg.RewardAddress = "SYSTEM"
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 5 * time.Second
	}
	kinds := make(map[models.Kind]bool, len(cfg.ThresholdKinds))
	for _, k := range cfg.ThresholdKinds {
		kinds[k] = true
	}
	o := &Orchestrator{
		ledger:         ledger,
		config:         cfg,
		thresholdKinds: kinds,
		metrics:        metrics,
		sink:           sink,
		logger:         logger,
		stats:          &models.Stats{StartTime: time.Now(), LastValidationOK: true},
		archived:       int64(ledger.Len() - 1),
	}
	if metrics != nil {
		metrics.chainLength.Set(float64(ledger.Len()))
		metrics.validated(true)
	}
	return o
}

// Record signs a transaction for the event and adds it to the pending pool.
// Kinds subject to the threshold policy mine synchronously once the pool
// reaches the configured size.
func (o *Orchestrator) Record(kind models.Kind, actorID int64, actorName string, subjectID int64, subjectName, detail string) (models.Transaction, error) {
	tx := models.NewTransaction(kind, actorID, actorName, subjectID, subjectName, detail)
	tx.Sign(o.config.SigningSecret)
	if err := o.ledger.AddTransaction(tx); err != nil {
		return models.Transaction{}, fmt.Errorf("failed to record %s transaction: %w", kind, err)
	}

	pending := o.ledger.PendingCount()
	o.metrics.recorded(kind, pending)
	o.mu.Lock()
	o.stats.TransactionsRecorded++
	o.mu.Unlock()
	o.logger.WithFields(logrus.Fields{
		"kind":    kind,
		"actor":   actorID,
		"subject": subjectID,
		"pending": pending,
	}).Debug("Recorded transaction")

	if o.thresholdKinds[kind] && o.config.Threshold > 0 && pending >= o.config.Threshold {
		o.logger.Infof("Pending pool reached %d after %s, mining", pending, kind)
		o.MinePending()
	}
	return tx, nil
}

func (o *Orchestrator) RecordLoan(e models.LoanEvent) (models.Transaction, error) {
	return o.Record(models.KindLoan, e.UserID, e.UserName, e.BookID, e.BookTitle, e.Detail())
}

func (o *Orchestrator) RecordReturn(e models.ReturnEvent) (models.Transaction, error) {
	return o.Record(models.KindReturn, e.UserID, e.UserName, e.BookID, e.BookTitle, e.Detail())
}

func (o *Orchestrator) RecordFinePayment(e models.FinePaymentEvent) (models.Transaction, error) {
	return o.Record(models.KindFinePayment, e.UserID, e.UserName, e.BookID, e.BookTitle, e.Detail())
}

func (o *Orchestrator) RecordLoanModification(e models.LoanModificationEvent) (models.Transaction, error) {
	return o.Record(models.KindLoanModification, e.UserID, e.UserName, e.BookID, e.BookTitle, e.Detail())
}

// MinePending runs one mining pass. Every trigger goes through here.
func (o *Orchestrator) MinePending() (models.Block, bool) {
	started := time.Now()
	block, ok := o.ledger.MinePendingTransactions(o.config.RewardAddress)
	if !ok {
		o.logger.Debug("No pending transactions to mine")
		o.archive()
		return models.Block{}, false
	}
	o.metrics.mined(time.Since(started), o.ledger.Len(), o.ledger.PendingCount())
	o.mu.Lock()
	o.stats.BlocksMined++
	o.stats.LastMinedAt = time.Now()
	o.mu.Unlock()

	o.archive()
	return block, true
}

// archive hands the sink every block after the last one it accepted, in
// index order, stopping at the first failure. Blocks left behind are retried
// on the next pass so the archive never has gaps.
func (o *Orchestrator) archive() {
	if o.sink == nil {
		return
	}
	o.archiveMu.Lock()
	defer o.archiveMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), o.config.SinkTimeout)
	defer cancel()
	tail := int64(o.ledger.Len() - 1)
	for index := o.archived + 1; index <= tail; index++ {
		block, err := o.ledger.Block(index)
		if err != nil {
			o.logger.Errorf("Failed to read block %d for archiving: %v", index, err)
			return
		}
		if err := o.sink.SaveBlock(ctx, block); err != nil {
			o.logger.Errorf("Failed to archive block %d, %d blocks behind: %v", index, tail-index+1, err)
			return
		}
		o.archived = index
	}
}

// Validate checks the chain and records the outcome.
func (o *Orchestrator) Validate() bool {
	err := o.ledger.Validate()
	ok := err == nil
	if !ok {
		o.logger.Errorf("Ledger validation failed: %v", err)
	}
	o.metrics.validated(ok)
	o.mu.Lock()
	o.stats.LastValidatedAt = time.Now()
	o.stats.LastValidationOK = ok
	o.mu.Unlock()
	return ok
}

// Start launches the scheduled mining and validation loops. They stop when
// ctx is cancelled; Wait blocks until they have returned.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.config.MiningInterval < 0 || o.config.ValidationInterval < 0 {
		return fmt.Errorf("negative schedule: mining %s, validation %s", o.config.MiningInterval, o.config.ValidationInterval)
	}
	if o.config.Threshold > 0 && len(o.thresholdKinds) == 0 {
		return fmt.Errorf("threshold %d set without threshold kinds", o.config.Threshold)
	}
	if o.config.MiningInterval > 0 {
		o.logger.Infof("Scheduling mining every %s", o.config.MiningInterval)
		o.every(ctx, o.config.MiningInterval, func() { o.MinePending() })
	} else {
		o.logger.Warn("Scheduled mining disabled")
	}
	if o.config.ValidationInterval > 0 {
		o.logger.Infof("Scheduling validation every %s", o.config.ValidationInterval)
		o.every(ctx, o.config.ValidationInterval, func() { o.Validate() })
	}
	return nil
}

func (o *Orchestrator) Wait() { o.wg.Wait() }

func (o *Orchestrator) every(ctx context.Context, interval time.Duration, job func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				job()
			}
		}
	}()
}

func (o *Orchestrator) Stats() models.Stats {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return *o.stats
}

func (o *Orchestrator) Status() models.LedgerStatus {
	return models.LedgerStatus{
		BlockCount:          o.ledger.Len(),
		PendingTransactions: o.ledger.PendingCount(),
		IsValid:             o.ledger.IsChainValid(),
		Difficulty:          o.ledger.Difficulty(),
	}
}

func (o *Orchestrator) Chain() []models.Block { return o.ledger.Chain() }

func (o *Orchestrator) Block(index int64) (models.Block, error) { return o.ledger.Block(index) }

func (o *Orchestrator) BlockCount() int { return o.ledger.Len() }

func (o *Orchestrator) IsChainValid() bool { return o.ledger.IsChainValid() }

func (o *Orchestrator) PendingTransactions() []models.Transaction {
	return o.ledger.PendingTransactions()
}

func (o *Orchestrator) TransactionsForUser(userID int64) []models.Transaction {
	return o.ledger.TransactionsForUser(userID)
}

func (o *Orchestrator) TransactionsForBook(bookID int64) []models.Transaction {
	return o.ledger.TransactionsForBook(bookID)
}

func (o *Orchestrator) TransactionsByType(kind models.Kind) []models.Transaction {
	return o.ledger.TransactionsByType(kind)
}
