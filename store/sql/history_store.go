package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/beaconwallet/go-sdk/types"
	"github.com/ccoveille/go-safecast"
	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const (
	historyDBFile = "history.sqlite"
	driverName    = "sqlite"
)

//go:embed migration/*
var migrations embed.FS

// OpenDB opens the history database at dir and applies pending migrations.
// An empty dir opens an in-memory database.
func OpenDB(dir string) (*sql.DB, error) {
	dsn := "file::memory:?cache=shared"
	if dir != "" {
		dsn = filepath.Join(dir, historyDBFile)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %s", err)
	}

	if err := migrateUp(db); err != nil {
		// nolint
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrateUp(db *sql.DB) error {
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to init migration driver: %s", err)
	}
	source, err := iofs.New(migrations, "migration")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %s", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, driverName, driver)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %s", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %s", err)
	}
	return nil
}

type historyStore struct {
	db      *sql.DB
	lock    *sync.Mutex
	eventCh chan types.HistoryEvent
}

func NewHistoryStore(db *sql.DB) types.HistoryStore {
	return &historyStore{
		db:      db,
		lock:    &sync.Mutex{},
		eventCh: make(chan types.HistoryEvent, 100),
	}
}

func (s *historyStore) AddRecords(
	ctx context.Context, records []types.HistoryRecord,
) (int, error) {
	added := make([]types.HistoryRecord, 0, len(records))
	for _, record := range records {
		// amount column is a signed sqlite INTEGER
		amount, err := safecast.ToInt64(record.Amount)
		if err != nil {
			return -1, fmt.Errorf("invalid amount for tx %s: %s", record.TxHash, err)
		}
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO history
				(tx_hash, chain_id, address, amount, type, external, confirmed, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (tx_hash, chain_id) DO NOTHING`,
			record.TxHash, record.ChainID, record.Address, amount,
			string(record.Type), record.External, record.Confirmed,
			record.CreatedAt.Unix(),
		)
		if err != nil {
			return -1, err
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			added = append(added, record)
		}
	}

	if len(added) > 0 {
		go s.sendEvent(types.HistoryEvent{Type: types.HistoryAdded, Records: added})
	}
	return len(added), nil
}

func (s *historyStore) ConfirmRecords(
	ctx context.Context, txHashes []string,
) (int, error) {
	confirmed := make([]types.HistoryRecord, 0, len(txHashes))
	for _, hash := range txHashes {
		res, err := s.db.ExecContext(ctx,
			`UPDATE history SET confirmed = 1 WHERE tx_hash = ? AND confirmed = 0`,
			hash,
		)
		if err != nil {
			return -1, err
		}
		n, err := res.RowsAffected()
		if err != nil || n == 0 {
			continue
		}
		records, err := s.recordsByHash(ctx, hash)
		if err != nil {
			return -1, err
		}
		confirmed = append(confirmed, records...)
	}

	if len(confirmed) > 0 {
		go s.sendEvent(types.HistoryEvent{
			Type: types.HistoryConfirmed, Records: confirmed,
		})
	}
	return len(confirmed), nil
}

func (s *historyStore) GetRecords(
	ctx context.Context, chainID, address string,
) ([]types.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tx_hash, chain_id, address, amount, type, external, confirmed, created_at
		FROM history WHERE chain_id = ? AND address = ?
		ORDER BY created_at DESC`,
		chainID, address,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *historyStore) GetKnownTxHashes(
	ctx context.Context, chainID, address string,
) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tx_hash FROM history
		WHERE chain_id = ? AND address = ? AND external = 0`,
		chainID, address,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hashes := make(map[string]struct{})
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, err
		}
		hashes[hash] = struct{}{}
	}
	return hashes, rows.Err()
}

func (s *historyStore) Clean(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("failed to clean the history db: %s", err)
	}
	return nil
}

func (s *historyStore) GetEventChannel() <-chan types.HistoryEvent {
	return s.eventCh
}

func (s *historyStore) Close() {
	if err := s.db.Close(); err != nil {
		log.Debugf("error on closing db: %s", err)
	}
}

func (s *historyStore) recordsByHash(
	ctx context.Context, hash string,
) ([]types.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tx_hash, chain_id, address, amount, type, external, confirmed, created_at
		FROM history WHERE tx_hash = ?`,
		hash,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *historyStore) sendEvent(event types.HistoryEvent) {
	s.lock.Lock()
	defer s.lock.Unlock()

	select {
	case s.eventCh <- event:
		return
	default:
		time.Sleep(100 * time.Millisecond)
	}
}

func scanRecords(rows *sql.Rows) ([]types.HistoryRecord, error) {
	records := make([]types.HistoryRecord, 0)
	for rows.Next() {
		var record types.HistoryRecord
		var txType string
		var amount, createdAt int64
		if err := rows.Scan(
			&record.TxHash, &record.ChainID, &record.Address, &amount,
			&txType, &record.External, &record.Confirmed, &createdAt,
		); err != nil {
			return nil, err
		}
		record.Amount, _ = safecast.ToUint64(amount)
		record.Type = types.TxType(txType)
		record.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, record)
	}
	return records, rows.Err()
}
