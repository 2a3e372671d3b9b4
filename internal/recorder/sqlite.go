package recorder

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"l2-order-book/internal/domain"
)

const createQuotesTable = `
CREATE TABLE IF NOT EXISTS quotes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	instrument  TEXT    NOT NULL,
	sequence    INTEGER NOT NULL,
	best_bid    REAL,
	best_ask    REAL,
	recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS quotes_instrument_time ON quotes (instrument, recorded_at);`

type SQLiteSink struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(createQuotesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create quotes table: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Record(ctx context.Context, quote domain.TopOfBook) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quotes (instrument, sequence, best_bid, best_ask, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		quote.Instrument,
		int64(quote.Sequence),
		sql.NullFloat64{Float64: quote.BestBid, Valid: quote.HasBid},
		sql.NullFloat64{Float64: quote.BestAsk, Valid: quote.HasAsk},
		quote.Timestamp,
	)
	return err
}

// Quotes returns the stored quotes for instrument, oldest first.
func (s *SQLiteSink) Quotes(ctx context.Context, instrument string) ([]domain.TopOfBook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence, best_bid, best_ask, recorded_at FROM quotes WHERE instrument = ? ORDER BY recorded_at, id`,
		instrument)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TopOfBook
	for rows.Next() {
		var (
			seq      int64
			bid, ask sql.NullFloat64
			ts       int64
		)
		if err := rows.Scan(&seq, &bid, &ask, &ts); err != nil {
			return nil, err
		}
		out = append(out, domain.TopOfBook{
			Instrument: instrument,
			BestBid:    bid.Float64,
			HasBid:     bid.Valid,
			BestAsk:    ask.Float64,
			HasAsk:     ask.Valid,
			Sequence:   uint64(seq),
			Timestamp:  ts,
		})
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
