package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nivo-app/nivo-hub/internal/domain/shared"
	"github.com/nivo-app/nivo-hub/internal/domain/subscription"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBSCRIPTION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SubscriptionRepository implements subscription.Repository for PostgreSQL.
type SubscriptionRepository struct {
	conn *Connection
}

// NewSubscriptionRepository creates a new SubscriptionRepository.
func NewSubscriptionRepository(conn *Connection) *SubscriptionRepository {
	return &SubscriptionRepository{conn: conn}
}

const subscriptionColumns = `id, user_id, status, customer_id, subscription_id,
	   current_period_end, started_at, created_at, updated_at`

// Create creates a new subscription record.
func (r *SubscriptionRepository) Create(ctx context.Context, record *subscription.Record) error {
	query := `
		INSERT INTO subscriptions (
			id, user_id, status, customer_id, subscription_id,
			current_period_end, started_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.conn.Exec(ctx, query,
		record.ID,
		record.UserID,
		string(record.Status),
		nullString(record.CustomerID),
		nullString(record.SubscriptionID),
		record.CurrentPeriodEnd,
		record.StartedAt,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("subscription", "Create", shared.ErrAlreadyExists,
				"subscription record already exists", err)
		}
		return fmt.Errorf("failed to create subscription record: %w", err)
	}

	return nil
}

// GetByUserID returns a subscription record by user ID.
func (r *SubscriptionRepository) GetByUserID(ctx context.Context, userID string) (*subscription.Record, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1`

	row := r.conn.QueryRow(ctx, query, userID)
	return r.scanRecord(row, "GetByUserID")
}

// GetByCustomerID returns a subscription record by the billing provider's
// customer ID.
func (r *SubscriptionRepository) GetByCustomerID(ctx context.Context, customerID string) (*subscription.Record, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE customer_id = $1`

	row := r.conn.QueryRow(ctx, query, customerID)
	return r.scanRecord(row, "GetByCustomerID")
}

// Update persists a modified subscription record.
func (r *SubscriptionRepository) Update(ctx context.Context, record *subscription.Record) error {
	query := `
		UPDATE subscriptions
		SET status = $2,
		    customer_id = $3,
		    subscription_id = $4,
		    current_period_end = $5,
		    started_at = $6,
		    updated_at = $7
		WHERE id = $1
	`

	tag, err := r.conn.Exec(ctx, query,
		record.ID,
		string(record.Status),
		nullString(record.CustomerID),
		nullString(record.SubscriptionID),
		record.CurrentPeriodEnd,
		record.StartedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.WrapError("subscription", "Update", shared.ErrNotFound,
			"subscription record not found", subscription.ErrRecordNotFound)
	}

	return nil
}

// FindLapsed returns elevated records whose paid period ended before cutoff.
func (r *SubscriptionRepository) FindLapsed(ctx context.Context, cutoff time.Time) ([]*subscription.Record, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status IN ('pro', 'trialing')
		  AND current_period_end IS NOT NULL
		  AND current_period_end < $1
		ORDER BY current_period_end
	`

	rows, err := r.conn.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query lapsed subscriptions: %w", err)
	}
	defer rows.Close()

	var records []*subscription.Record
	for rows.Next() {
		record, err := r.scanRecord(rows, "FindLapsed")
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// scanRecord scans a single subscription row.
func (r *SubscriptionRepository) scanRecord(row pgx.Row, op string) (*subscription.Record, error) {
	var (
		record         subscription.Record
		status         string
		customerID     *string
		subscriptionID *string
	)

	err := row.Scan(
		&record.ID,
		&record.UserID,
		&status,
		&customerID,
		&subscriptionID,
		&record.CurrentPeriodEnd,
		&record.StartedAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.WrapError("subscription", op, shared.ErrNotFound,
				"subscription record not found", subscription.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to scan subscription record: %w", err)
	}

	record.Status = subscription.Status(status)
	if customerID != nil {
		record.CustomerID = *customerID
	}
	if subscriptionID != nil {
		record.SubscriptionID = *subscriptionID
	}

	return &record, nil
}

// nullString maps empty strings to SQL NULL so partial unique indexes
// on customer_id behave.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
