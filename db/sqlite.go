package db

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        app VARCHAR(20) NOT NULL,
        model_type VARCHAR(30) NOT NULL,
        r2 REAL,
        mae REAL,
        rmse REAL,
        data_points INTEGER,
        train_rows INTEGER,
        test_rows INTEGER,
        feature_count INTEGER,
        trained_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        request_id TEXT,
        app VARCHAR(20) NOT NULL,
        input TEXT,
        value REAL NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS data_quality (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        app VARCHAR(20) NOT NULL,
        rule TEXT NOT NULL,
        row_index INTEGER NOT NULL,
        message TEXT,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_training_log_app ON training_log(app, trained_at);
    CREATE INDEX IF NOT EXISTS idx_quality_app ON data_quality(app, created_at);
    CREATE INDEX IF NOT EXISTS idx_predictions_app ON predictions(app, created_at);
    `

var ErrClosed = errors.New("database not initialized")

// Store is the audit log of training runs and served predictions. Nothing in the
// inference path reads it back.
type Store struct {
	database *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// sqlite serialises writers anyway; one connection avoids SQLITE_BUSY.
	database.SetMaxOpenConns(1)

	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, err
	}
	return &Store{database: database}, nil
}

func (s *Store) Close() error {
	if s == nil || s.database == nil {
		return nil
	}
	return s.database.Close()
}

type TrainingLog struct {
	App          string    `json:"app"`
	ModelType    string    `json:"model_type"`
	R2           float64   `json:"r2"`
	MAE          float64   `json:"mae"`
	RMSE         float64   `json:"rmse"`
	DataPoints   int       `json:"data_points"`
	TrainRows    int       `json:"train_rows"`
	TestRows     int       `json:"test_rows"`
	FeatureCount int       `json:"feature_count"`
	TrainedAt    time.Time `json:"trained_at"`
}

func (s *Store) SaveTrainingLog(entry TrainingLog) error {
	if s == nil || s.database == nil {
		return ErrClosed
	}
	if entry.App == "" {
		return errors.New("app required")
	}
	if entry.TrainedAt.IsZero() {
		entry.TrainedAt = time.Now().UTC()
	}
	_, err := s.database.Exec(`
        INSERT INTO training_log (
            app, model_type, r2, mae, rmse, data_points, train_rows, test_rows, feature_count, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `,
		entry.App,
		entry.ModelType,
		entry.R2,
		entry.MAE,
		entry.RMSE,
		entry.DataPoints,
		entry.TrainRows,
		entry.TestRows,
		entry.FeatureCount,
		entry.TrainedAt.UTC(),
	)
	return err
}

// LoadTrainingLog returns the most recent runs for app, newest first. An empty
// app returns runs of every app.
func (s *Store) LoadTrainingLog(app string, limit int) ([]TrainingLog, error) {
	if s == nil || s.database == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.database.Query(`
        SELECT app, model_type, r2, mae, rmse, data_points, train_rows, test_rows, feature_count, trained_at
        FROM training_log
        WHERE (? = '' OR app = ?)
        ORDER BY trained_at DESC, id DESC
        LIMIT ?
    `, app, app, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		var r2, mae, rmse sql.NullFloat64
		if err := rows.Scan(&log.App, &log.ModelType, &r2, &mae, &rmse, &log.DataPoints,
			&log.TrainRows, &log.TestRows, &log.FeatureCount, &log.TrainedAt); err != nil {
			return nil, err
		}
		log.R2 = r2.Float64
		log.MAE = mae.Float64
		log.RMSE = rmse.Float64
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

type Prediction struct {
	RequestID string    `json:"request_id"`
	App       string    `json:"app"`
	Input     string    `json:"input"`
	Value     float64   `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) SavePrediction(p Prediction) error {
	if s == nil || s.database == nil {
		return ErrClosed
	}
	if p.App == "" {
		return errors.New("app required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.database.Exec(`
        INSERT INTO predictions (request_id, app, input, value, created_at)
        VALUES (?, ?, ?, ?, ?)
    `, p.RequestID, p.App, p.Input, p.Value, p.CreatedAt.UTC())
	return err
}

// RecentPredictions returns the latest predictions for app, newest first.
func (s *Store) RecentPredictions(app string, limit int) ([]Prediction, error) {
	if s == nil || s.database == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.database.Query(`
        SELECT request_id, app, input, value, created_at
        FROM predictions
        WHERE app = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?
    `, app, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Prediction, 0)
	for rows.Next() {
		var p Prediction
		var requestID, input sql.NullString
		if err := rows.Scan(&requestID, &p.App, &input, &p.Value, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.RequestID = requestID.String
		p.Input = input.String
		out = append(out, p)
	}
	return out, rows.Err()
}
