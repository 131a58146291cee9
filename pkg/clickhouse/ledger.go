package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"costscan/pkg/importer"
	"costscan/pkg/logger"

	"go.uber.org/zap"
)

const cleanExpensesTable = "clean_expenses"

// createCleanExpensesDDL defines the signed ledger. Rows are never mutated;
// corrections come in as paired sign rows and readers always aggregate
// SUM(cost * sign).
const createCleanExpensesDDL = `
CREATE TABLE IF NOT EXISTS clean_expenses (
    cloud_account_id String,
    resource_id      String,
    day              Date,
    cost             Float64,
    sign             Int8,
    created_at       DateTime DEFAULT now()
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(day)
ORDER BY (cloud_account_id, resource_id, day)`

// Ledger is the append-only signed clean expense store
type Ledger struct {
	client *Client
}

var _ importer.AggregateStore = (*Ledger)(nil)

func NewLedger(client *Client) *Ledger {
	return &Ledger{client: client}
}

// EnsureSchema creates the ledger table if it does not exist
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	if err := l.client.Exec(ctx, createCleanExpensesDDL); err != nil {
		return fmt.Errorf("failed to create clean_expenses table: %w", err)
	}
	return nil
}

// InsertSigned appends signed rows through a prepared batch
func (l *Ledger) InsertSigned(ctx context.Context, rows []importer.CleanExpenseRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := l.client.PrepareBatch(ctx,
		"INSERT INTO "+cleanExpensesTable+" (cloud_account_id, resource_id, day, cost, sign)")
	if err != nil {
		return fmt.Errorf("failed to prepare ledger batch: %w", err)
	}

	for _, row := range rows {
		if err := batch.Append(row.CloudAccountID, row.ResourceID, row.Day, row.Cost, row.Sign); err != nil {
			return fmt.Errorf("failed to append ledger row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send ledger batch: %w", err)
	}

	logger.Debug("ledger rows inserted", zap.Int("rows", len(rows)))
	return nil
}

// SumSigned returns SUM(cost*sign) per (resource, day). Zero time bounds
// leave that side of the interval open; nil resourceIDs means the whole
// account. Keys whose sum nets to zero are omitted.
func (l *Ledger) SumSigned(ctx context.Context, accountID string, resourceIDs []string, from, to time.Time) (map[importer.ResourceDay]float64, error) {
	var sb strings.Builder
	sb.WriteString("SELECT resource_id, day, SUM(cost * sign) AS total FROM ")
	sb.WriteString(cleanExpensesTable)
	sb.WriteString(" WHERE cloud_account_id = ?")
	args := []interface{}{accountID}

	if len(resourceIDs) > 0 {
		sb.WriteString(" AND resource_id IN (?)")
		args = append(args, resourceIDs)
	}
	if !from.IsZero() {
		sb.WriteString(" AND day >= ?")
		args = append(args, from)
	}
	if !to.IsZero() {
		sb.WriteString(" AND day <= ?")
		args = append(args, to)
	}
	sb.WriteString(" GROUP BY resource_id, day HAVING total != 0")

	rows, err := l.client.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signed sums: %w", err)
	}
	defer rows.Close()

	sums := make(map[importer.ResourceDay]float64)
	for rows.Next() {
		var resourceID string
		var day time.Time
		var total float64
		if err := rows.Scan(&resourceID, &day, &total); err != nil {
			return nil, fmt.Errorf("failed to scan signed sum: %w", err)
		}
		sums[importer.ResourceDay{ResourceID: resourceID, Day: day.UTC()}] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read signed sums: %w", err)
	}
	return sums, nil
}

// LatestExpenseDate returns the newest ledger date of an account, or nil
// when the account has no rows.
func (l *Ledger) LatestExpenseDate(ctx context.Context, accountID string) (*time.Time, error) {
	row := l.client.QueryRow(ctx,
		"SELECT MAX(day), COUNT() FROM "+cleanExpensesTable+" WHERE cloud_account_id = ?",
		accountID)

	var latest time.Time
	var count uint64
	if err := row.Scan(&latest, &count); err != nil {
		return nil, fmt.Errorf("failed to read latest expense date: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	latest = latest.UTC()
	return &latest, nil
}

// DeleteAccount tears down the full ledger of a cloud account. This is the
// only permitted delete; corrections always go through signed inserts.
func (l *Ledger) DeleteAccount(ctx context.Context, accountID string) error {
	err := l.client.Exec(ctx,
		"ALTER TABLE "+cleanExpensesTable+" DELETE WHERE cloud_account_id = ?",
		accountID)
	if err != nil {
		return fmt.Errorf("failed to delete account ledger: %w", err)
	}

	logger.Info("account ledger deleted", zap.String("cloud_account_id", accountID))
	return nil
}
