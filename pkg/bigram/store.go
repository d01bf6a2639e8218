package bigram

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// SetupSchema initializes the tables used by Store in the provided database.
// It should be called once on a new database before any other operations are
// performed. It is idempotent and safe to call on an already-initialized
// database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaModels = `
CREATE TABLE IF NOT EXISTS bigram_models (
    model_id INTEGER PRIMARY KEY,
    model_name TEXT NOT NULL UNIQUE
);
`
		schemaWords = `
CREATE TABLE IF NOT EXISTS bigram_words (
    model_id INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    token_text TEXT NOT NULL,
    frequency INTEGER NOT NULL,
    PRIMARY KEY (model_id, token_text)
);
`
		schemaPairs = `
CREATE TABLE IF NOT EXISTS bigram_pairs (
    model_id INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    prev_text TEXT NOT NULL,
    next_text TEXT NOT NULL,
    frequency INTEGER NOT NULL,
    PRIMARY KEY (model_id, prev_text, next_text)
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	// If the transaction succeeds, tx.Commit() will be called first, and the rollback will do nothing. If it fails, this will clean up.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaModels); err != nil {
		return fmt.Errorf("could not create models schema: %w", err)
	}

	if _, err = tx.Exec(schemaWords); err != nil {
		return fmt.Errorf("could not create words schema: %w", err)
	}

	if _, err = tx.Exec(schemaPairs); err != nil {
		return fmt.Errorf("could not create pairs schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// Store keeps trained models in a SQLite database, one row per word and per
// pair. A seq column records insertion order, so loaded models rebuild
// exactly the distributions they were saved with.
type Store struct {
	db             *sql.DB
	stmtGetModelID *sql.Stmt
	stmtGetModels  *sql.Stmt
	stmtGetWords   *sql.Stmt
	stmtGetPairs   *sql.Stmt
	logger         *slog.Logger
}

// NewStore creates and returns a new Store. It pre-compiles the read
// statements, returning an error if any preparation fails.
func NewStore(db *sql.DB) (*Store, error) {
	stmtGetModelID, err := db.Prepare(`SELECT model_id FROM bigram_models WHERE model_name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtGetModels, err := db.Prepare(`SELECT model_name FROM bigram_models ORDER BY model_name;`)
	if err != nil {
		return nil, err
	}

	stmtGetWords, err := db.Prepare(`SELECT token_text, frequency FROM bigram_words WHERE model_id = ? ORDER BY seq;`)
	if err != nil {
		return nil, err
	}

	stmtGetPairs, err := db.Prepare(`SELECT prev_text, next_text, frequency FROM bigram_pairs WHERE model_id = ? ORDER BY seq;`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:             db,
		stmtGetModelID: stmtGetModelID,
		stmtGetModels:  stmtGetModels,
		stmtGetWords:   stmtGetWords,
		stmtGetPairs:   stmtGetPairs,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases all prepared SQL statements held by the Store.
func (s *Store) Close() {
	_ = s.stmtGetModelID.Close()
	_ = s.stmtGetModels.Close()
	_ = s.stmtGetWords.Close()
	_ = s.stmtGetPairs.Close()
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// ModelNames returns the names of all stored models in alphabetical order.
func (s *Store) ModelNames(ctx context.Context) ([]string, error) {
	rows, err := s.stmtGetModels.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

// SaveModel stores the counts of m under name, replacing any model previously
// saved with that name. The operation is performed within a transaction.
func (s *Store) SaveModel(ctx context.Context, name string, m *Model) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction for save: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var modelID int64
	err = tx.StmtContext(ctx, s.stmtGetModelID).QueryRowContext(ctx, name).Scan(&modelID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx, "INSERT INTO bigram_models (model_name) VALUES (?)", name)
		if err != nil {
			return fmt.Errorf("failed to insert model '%s': %w", name, err)
		}
		if modelID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get id of model '%s': %w", name, err)
		}
	case err != nil:
		return fmt.Errorf("failed to query for model '%s': %w", name, err)
	default:
		if err = deleteCounts(ctx, tx, modelID); err != nil {
			return err
		}
	}

	stmtInsertWord, err := tx.PrepareContext(ctx, `INSERT INTO bigram_words (model_id, seq, token_text, frequency) VALUES (?, ?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("failed to prepare word insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertWord)

	stmtInsertPair, err := tx.PrepareContext(ctx, `INSERT INTO bigram_pairs (model_id, seq, prev_text, next_text, frequency) VALUES (?, ?, ?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("failed to prepare pair insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertPair)

	var seq int
	for token, c := range m.words.All() {
		if _, err = stmtInsertWord.ExecContext(ctx, modelID, seq, token, c); err != nil {
			return fmt.Errorf("failed to insert word '%s': %w", token, err)
		}
		seq++
	}

	seq = 0
	for p, c := range m.bigrams.All() {
		if _, err = stmtInsertPair.ExecContext(ctx, modelID, seq, p.Prev, p.Next, c); err != nil {
			return fmt.Errorf("failed to insert pair (%s -> %s): %w", p.Prev, p.Next, err)
		}
		seq++
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit model '%s': %w", name, err)
	}

	s.logger.InfoContext(ctx, "Model saved",
		slog.String("model_name", name),
		slog.Int64("model_id", modelID),
		slog.Int("words_saved", m.words.Len()),
		slog.Int("pairs_saved", m.bigrams.Len()),
	)
	return nil
}

// LoadModel reads the counts stored under name and builds a model from them.
// It returns ErrModelNotFound if no model has that name.
func (s *Store) LoadModel(ctx context.Context, name string, opts ...ModelOption) (*Model, error) {
	var modelID int64
	err := s.stmtGetModelID.QueryRowContext(ctx, name).Scan(&modelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query for model '%s': %w", name, err)
	}

	words := NewWordCounts()
	wRows, err := s.stmtGetWords.QueryContext(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("could not query words of model '%s': %w", name, err)
	}
	for wRows.Next() {
		var token string
		var c int
		if err = wRows.Scan(&token, &c); err != nil {
			_ = wRows.Close()
			return nil, err
		}
		words.Add(token, c)
	}
	_ = wRows.Close()
	if err = wRows.Err(); err != nil {
		return nil, err
	}

	bigrams := NewBigramCounts()
	pRows, err := s.stmtGetPairs.QueryContext(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("could not query pairs of model '%s': %w", name, err)
	}
	for pRows.Next() {
		var p Pair
		var c int
		if err = pRows.Scan(&p.Prev, &p.Next, &c); err != nil {
			_ = pRows.Close()
			return nil, err
		}
		bigrams.Add(p, c)
	}
	_ = pRows.Close()
	if err = pRows.Err(); err != nil {
		return nil, err
	}

	m, err := FromCounts(words, bigrams, opts...)
	if err != nil {
		return nil, fmt.Errorf("stored model '%s': %w", name, err)
	}

	s.logger.DebugContext(ctx, "Model loaded",
		slog.String("model_name", name),
		slog.Int64("model_id", modelID),
		slog.Int("vocab_size", words.Len()),
		slog.Int("pair_count", bigrams.Len()),
	)
	return m, nil
}

// RemoveModel deletes a model and all of its counts from the database. The
// operation is performed within a transaction. It returns ErrModelNotFound if
// no model has that name.
func (s *Store) RemoveModel(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var modelID int64
	err = tx.StmtContext(ctx, s.stmtGetModelID).QueryRowContext(ctx, name).Scan(&modelID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("failed to query for model '%s': %w", name, err)
	}

	if err = deleteCounts(ctx, tx, modelID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM bigram_models WHERE model_id = ?", modelID); err != nil {
		return fmt.Errorf("failed to remove model %d: %w", modelID, err)
	}

	s.logger.InfoContext(ctx, "Model removed successfully",
		slog.String("model_name", name),
		slog.Int64("model_id", modelID),
	)

	return tx.Commit()
}

func deleteCounts(ctx context.Context, tx *sql.Tx, modelID int64) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM bigram_words WHERE model_id = ?", modelID); err != nil {
		return fmt.Errorf("failed to remove words for model %d: %w", modelID, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM bigram_pairs WHERE model_id = ?", modelID); err != nil {
		return fmt.Errorf("failed to remove pairs for model %d: %w", modelID, err)
	}
	return nil
}
