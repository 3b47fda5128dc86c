package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// TrendRepository реализует port.TrendSource для PostgreSQL.
// Хранит историю показаний мониторов; по ней обучаются модели.
type TrendRepository struct {
	db *sql.DB
}

// NewTrendRepository создает новый PostgreSQL repository
func NewTrendRepository(db *sql.DB) *TrendRepository {
	return &TrendRepository{
		db: db,
	}
}

// History возвращает показания монитора за период, старые первыми
func (r *TrendRepository) History(ctx context.Context, monitorID string, from, to time.Time) ([]*entity.Reading, error) {
	query := `
		SELECT monitor_id, observed_at, sensors
		FROM trend_readings
		WHERE monitor_id = $1 AND observed_at >= $2 AND observed_at < $3
		ORDER BY observed_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, monitorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query trend history: %w", err)
	}
	defer rows.Close()

	var readings []*entity.Reading
	for rows.Next() {
		var (
			id         string
			observedAt time.Time
			sensorsRaw []byte
		)
		if err := rows.Scan(&id, &observedAt, &sensorsRaw); err != nil {
			return nil, fmt.Errorf("failed to scan trend row: %w", err)
		}

		var sensors map[string]float64
		if err := json.Unmarshal(sensorsRaw, &sensors); err != nil {
			return nil, fmt.Errorf("failed to decode sensors for %s at %v: %w", id, observedAt, err)
		}

		reading, err := entity.NewReading(id, observedAt, sensors)
		if err != nil {
			// битая строка истории пропускается, обучение идет по остальным
			continue
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trend rows: %w", err)
	}

	return readings, nil
}

// SaveBatch сохраняет пачку показаний одной транзакцией
func (r *TrendRepository) SaveBatch(ctx context.Context, readings []*entity.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trend_readings (id, monitor_id, observed_at, sensors, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, reading := range readings {
		sensorsRaw, err := json.Marshal(reading.Sensors())
		if err != nil {
			return fmt.Errorf("failed to encode sensors: %w", err)
		}

		_, err = stmt.ExecContext(ctx,
			uuid.New().String(),
			reading.MonitorID(),
			reading.Timestamp().UTC(),
			sensorsRaw,
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert reading: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
