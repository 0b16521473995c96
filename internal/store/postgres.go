package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hookline/hookline/internal/delivery"
)

// Postgres implements Store on a pgx connection pool against the hookline
// schema (migrations/001_init.sql).
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Connect establishes a connection pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func wrapDB(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

func (p *Postgres) GetSubscription(ctx context.Context, id string) (Subscription, error) {
	var s Subscription
	var secret *string
	err := p.pool.QueryRow(ctx, `
		SELECT id, target_url, secret, created_at, updated_at
		FROM hookline.subscriptions WHERE id = $1`, id,
	).Scan(&s.ID, &s.TargetURL, &secret, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Subscription{}, wrapDB("get subscription", err)
	}
	if secret != nil {
		s.Secret = *secret
	}
	return s, nil
}

func (p *Postgres) CreateDelivery(ctx context.Context, d *Delivery) error {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO hookline.deliveries (id, subscription_id, payload, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		d.ID, d.SubscriptionID, d.Payload, string(d.Status),
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return wrapDB("create delivery", err)
	}
	return nil
}

const deliveryCols = `id, subscription_id, payload, status, created_at, updated_at, last_attempt_at`

func scanDelivery(row pgx.Row) (Delivery, error) {
	var d Delivery
	var status string
	if err := row.Scan(&d.ID, &d.SubscriptionID, &d.Payload, &status,
		&d.CreatedAt, &d.UpdatedAt, &d.LastAttemptAt); err != nil {
		return Delivery{}, err
	}
	d.Status = delivery.Status(status)
	return d, nil
}

func (p *Postgres) GetDelivery(ctx context.Context, id string) (Delivery, error) {
	d, err := scanDelivery(p.pool.QueryRow(ctx,
		`SELECT `+deliveryCols+` FROM hookline.deliveries WHERE id = $1`, id))
	if err != nil {
		return Delivery{}, wrapDB("get delivery", err)
	}
	return d, nil
}

// ClaimDelivery is a compare-and-set: the UPDATE only matches rows still in
// pending or retrying, so exactly one racing worker sees a row back.
func (p *Postgres) ClaimDelivery(ctx context.Context, id string) (Delivery, error) {
	d, err := scanDelivery(p.pool.QueryRow(ctx, `
		UPDATE hookline.deliveries
		SET status = 'processing', updated_at = now()
		WHERE id = $1 AND status IN ('pending','retrying')
		RETURNING `+deliveryCols, id))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Delivery{}, wrapDB("claim delivery", err)
	}

	// No row matched: distinguish missing / terminal / held by another worker.
	var status string
	err = p.pool.QueryRow(ctx,
		`SELECT status FROM hookline.deliveries WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return Delivery{}, wrapDB("claim delivery", err)
	}
	if delivery.Status(status).Terminal() {
		return Delivery{}, ErrTerminal
	}
	return Delivery{}, ErrAlreadyClaimed
}

func (p *Postgres) FinishDelivery(ctx context.Context, id string, to delivery.Status, at time.Time) error {
	if !delivery.CanTransition(delivery.StatusProcessing, to) {
		return fmt.Errorf("illegal transition processing -> %s", to)
	}
	ct, err := p.pool.Exec(ctx, `
		UPDATE hookline.deliveries
		SET status = $2, updated_at = now(), last_attempt_at = $3
		WHERE id = $1 AND status = 'processing'`,
		id, string(to), at)
	if err != nil {
		return wrapDB("finish delivery", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAlreadyClaimed
	}
	return nil
}

// AppendAttempt assigns the next attempt number inside the insert; the
// aggregate subquery runs in the same statement, and the claim being
// exclusive means no second writer for the same delivery exists.
func (p *Postgres) AppendAttempt(ctx context.Context, a *Attempt) error {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO hookline.delivery_attempts
			(delivery_id, number, outcome, status_code, response_body, error_message)
		SELECT $1, COALESCE(MAX(number), 0) + 1, $2, $3, $4, $5
		FROM hookline.delivery_attempts WHERE delivery_id = $1
		RETURNING id, number, at`,
		a.DeliveryID, a.Outcome, a.StatusCode, a.ResponseBody, a.ErrorMessage,
	).Scan(&a.ID, &a.Number, &a.At)
	if err != nil {
		return wrapDB("append attempt", err)
	}
	return nil
}

func (p *Postgres) NextAttemptNumber(ctx context.Context, deliveryID string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(number), 0) + 1
		FROM hookline.delivery_attempts WHERE delivery_id = $1`, deliveryID,
	).Scan(&n)
	if err != nil {
		return 0, wrapDB("next attempt number", err)
	}
	return n, nil
}

const attemptCols = `id, delivery_id, number, at, outcome, status_code, response_body, error_message`

func scanAttempts(rows pgx.Rows) ([]Attempt, error) {
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.DeliveryID, &a.Number, &a.At,
			&a.Outcome, &a.StatusCode, &a.ResponseBody, &a.ErrorMessage); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) Attempts(ctx context.Context, deliveryID string) ([]Attempt, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+attemptCols+`
		FROM hookline.delivery_attempts
		WHERE delivery_id = $1
		ORDER BY number ASC`, deliveryID)
	if err != nil {
		return nil, wrapDB("list attempts", err)
	}
	out, err := scanAttempts(rows)
	if err != nil {
		return nil, wrapDB("list attempts", err)
	}
	return out, nil
}

func (p *Postgres) RecentAttempts(ctx context.Context, subscriptionID string, limit int) ([]Attempt, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT a.id, a.delivery_id, a.number, a.at, a.outcome,
		       a.status_code, a.response_body, a.error_message
		FROM hookline.delivery_attempts a
		JOIN hookline.deliveries d ON d.id = a.delivery_id
		WHERE d.subscription_id = $1
		ORDER BY a.at DESC
		LIMIT $2`, subscriptionID, limit)
	if err != nil {
		return nil, wrapDB("recent attempts", err)
	}
	out, err := scanAttempts(rows)
	if err != nil {
		return nil, wrapDB("recent attempts", err)
	}
	return out, nil
}

func (p *Postgres) staleByStatus(ctx context.Context, status string, cutoff time.Time, limit int) ([]Delivery, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+deliveryCols+`
		FROM hookline.deliveries
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3`, status, cutoff, limit)
	if err != nil {
		return nil, wrapDB("stale scan", err)
	}
	defer rows.Close()
	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, wrapDB("stale scan", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) StaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]Delivery, error) {
	return p.staleByStatus(ctx, "processing", cutoff, limit)
}

func (p *Postgres) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]Delivery, error) {
	return p.staleByStatus(ctx, "pending", cutoff, limit)
}

func (p *Postgres) StaleRetrying(ctx context.Context, cutoff time.Time, limit int) ([]Delivery, error) {
	return p.staleByStatus(ctx, "retrying", cutoff, limit)
}

func (p *Postgres) PurgeAttempts(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := p.pool.Exec(ctx,
		`DELETE FROM hookline.delivery_attempts WHERE at < $1`, cutoff)
	if err != nil {
		return 0, wrapDB("purge attempts", err)
	}
	return ct.RowsAffected(), nil
}

func (p *Postgres) PurgeTerminalDeliveries(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := p.pool.Exec(ctx, `
		DELETE FROM hookline.deliveries
		WHERE status IN ('succeeded','failed') AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, wrapDB("purge deliveries", err)
	}
	return ct.RowsAffected(), nil
}

func (p *Postgres) Stats(ctx context.Context, since time.Time) (Stats, error) {
	var st Stats
	err := p.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM hookline.subscriptions),
			(SELECT COUNT(*) FROM hookline.deliveries
				WHERE status = 'succeeded' AND created_at >= $1),
			(SELECT COUNT(*) FROM hookline.deliveries
				WHERE status = 'failed' AND created_at >= $1)`,
		since,
	).Scan(&st.TotalSubscriptions, &st.RecentSucceeded, &st.RecentFailed)
	if err != nil {
		return Stats{}, wrapDB("stats", err)
	}
	return st, nil
}

func (p *Postgres) RecentActivity(ctx context.Context, limit int) ([]ActivityItem, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT type, id, at, details FROM (
			SELECT 'subscription_created' AS type, id::text,
			       created_at AS at,
			       'Subscribed: ' || left(target_url, 50) AS details
			FROM hookline.subscriptions
			UNION ALL
			SELECT 'delivery_attempt', a.id::text, a.at,
			       'Delivery ' || left(a.delivery_id::text, 8)
			       || ' attempt #' || a.number || ' - ' || a.outcome
			FROM hookline.delivery_attempts a
		) merged
		ORDER BY at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, wrapDB("recent activity", err)
	}
	defer rows.Close()
	var out []ActivityItem
	for rows.Next() {
		var item ActivityItem
		if err := rows.Scan(&item.Type, &item.ID, &item.At, &item.Details); err != nil {
			return nil, wrapDB("recent activity", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
