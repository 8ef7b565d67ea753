package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/sirupsen/logrus"

	"github.com/daccred/library-ledger/models"
)

const blocksTable = "ledger_blocks"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Archive mirrors mined blocks into Postgres so the chain survives restarts.
// The in-memory ledger stays authoritative; the archive is append only.
type Archive struct {
	db     *sql.DB
	logger *logrus.Entry
}

func NewArchive(db *sql.DB, logger *logrus.Entry) *Archive {
	return &Archive{db: db, logger: logger}
}

// SaveBlock inserts block. Saving an index that is already archived is a no-op.
func (a *Archive) SaveBlock(ctx context.Context, block models.Block) error {
	txJSON, err := json.Marshal(block.Transactions)
	if err != nil {
		return fmt.Errorf("failed to encode transactions of block %d: %w", block.Index, err)
	}
	query, args, err := psql.Insert(blocksTable).
		Columns("block_index", "block_timestamp", "previous_hash", "nonce", "hash", "transaction_count", "transactions").
		Values(block.Index, block.Timestamp, block.PreviousHash, block.Nonce, block.Hash, len(block.Transactions), txJSON).
		Suffix("ON CONFLICT (block_index) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert for block %d: %w", block.Index, err)
	}
	if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to store block %d: %w", block.Index, err)
	}
	a.logger.WithField("index", block.Index).Debug("Archived block")
	return nil
}

// LoadBlocks returns every archived block in index order.
func (a *Archive) LoadBlocks(ctx context.Context) ([]models.Block, error) {
	query, args, err := psql.Select("block_index", "block_timestamp", "previous_hash", "nonce", "hash", "transactions").
		From(blocksTable).
		OrderBy("block_index ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build block query: %w", err)
	}
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch blocks: %w", err)
	}
	defer rows.Close()

	blocks := make([]models.Block, 0)
	for rows.Next() {
		var block models.Block
		var txJSON []byte
		if err := rows.Scan(&block.Index, &block.Timestamp, &block.PreviousHash, &block.Nonce, &block.Hash, &txJSON); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		if err := json.Unmarshal(txJSON, &block.Transactions); err != nil {
			return nil, fmt.Errorf("failed to decode transactions of block %d: %w", block.Index, err)
		}
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read blocks: %w", err)
	}
	return blocks, nil
}

// Count returns the number of archived blocks.
func (a *Archive) Count(ctx context.Context) (int64, error) {
	query, args, err := psql.Select("COUNT(*)").From(blocksTable).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var count int64
	if err := a.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count blocks: %w", err)
	}
	return count, nil
}
