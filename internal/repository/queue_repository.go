package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qline/queue-service/internal/domain"
)

// ErrVersionConflict signals that the aggregate was modified by a
// concurrent writer between Load and Save. The caller must discard its
// in-memory copy and retry the whole load-mutate-save cycle.
var ErrVersionConflict = errors.New("queue version conflict")

// QueueRepository encapsulates queue aggregate persistence.
type QueueRepository interface {
	Create(ctx context.Context, queue *domain.Queue) error
	Load(ctx context.Context, id string) (*domain.Queue, error)
	LoadBySlug(ctx context.Context, slug string) (*domain.Queue, error)
	Save(ctx context.Context, queue *domain.Queue) error
	ListActiveIDs(ctx context.Context) ([]string, error)
	FindQueueIDByToken(ctx context.Context, token string) (string, error)
}

type queueRepository struct {
	pool *pgxpool.Pool
}

// NewQueueRepository instantiates the repository.
func NewQueueRepository(pool *pgxpool.Pool) QueueRepository {
	return &queueRepository{pool: pool}
}

const queueColumns = `id, name, slug, is_active, is_paused, created_at,
       max_queue_size, estimated_service_minutes, no_show_timeout_minutes,
       allow_join_when_paused, near_front_threshold, welcome_message, called_message, version`

const customerColumns = `id, queue_id, token, name, join_position, joined_at, phone, party_size, notes,
       status, called_at, completed_at, push_subscription, near_front_notified_at`

func (r *queueRepository) Create(ctx context.Context, queue *domain.Queue) error {
	const query = `
        INSERT INTO queues (id, name, slug, is_active, is_paused, created_at,
            max_queue_size, estimated_service_minutes, no_show_timeout_minutes,
            allow_join_when_paused, near_front_threshold, welcome_message, called_message, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	s := queue.Settings
	_, err := r.pool.Exec(ctx, query,
		queue.ID,
		queue.Name,
		queue.Slug,
		queue.IsActive,
		queue.IsPaused,
		queue.CreatedAt,
		s.MaxQueueSize,
		s.EstimatedServiceMinutes,
		s.NoShowTimeoutMinutes,
		s.AllowJoinWhenPaused,
		s.NearFrontThreshold,
		s.WelcomeMessage,
		s.CalledMessage,
		queue.Version,
	)
	return err
}

func (r *queueRepository) Load(ctx context.Context, id string) (*domain.Queue, error) {
	query := fmt.Sprintf(`SELECT %s FROM queues WHERE id=$1`, queueColumns)
	return r.fetchAggregate(ctx, query, id)
}

func (r *queueRepository) LoadBySlug(ctx context.Context, slug string) (*domain.Queue, error) {
	query := fmt.Sprintf(`SELECT %s FROM queues WHERE slug=$1`, queueColumns)
	return r.fetchAggregate(ctx, query, slug)
}

func (r *queueRepository) fetchAggregate(ctx context.Context, query string, arg any) (*domain.Queue, error) {
	var (
		id, name, slug string
		active, paused bool
		createdAt      time.Time
		settings       domain.QueueSettings
		version        int64
	)
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&id,
		&name,
		&slug,
		&active,
		&paused,
		&createdAt,
		&settings.MaxQueueSize,
		&settings.EstimatedServiceMinutes,
		&settings.NoShowTimeoutMinutes,
		&settings.AllowJoinWhenPaused,
		&settings.NearFrontThreshold,
		&settings.WelcomeMessage,
		&settings.CalledMessage,
		&version,
	); err != nil {
		return nil, err
	}

	customers, err := r.loadCustomers(ctx, id)
	if err != nil {
		return nil, err
	}

	return domain.RestoreQueue(id, name, slug, active, paused, createdAt, settings, domain.Version(version), customers), nil
}

func (r *queueRepository) loadCustomers(ctx context.Context, queueID string) ([]*domain.QueueCustomer, error) {
	query := fmt.Sprintf(`SELECT %s FROM queue_customers WHERE queue_id=$1 ORDER BY join_position`, customerColumns)
	rows, err := r.pool.Query(ctx, query, queueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []*domain.QueueCustomer
	for rows.Next() {
		var (
			c       domain.QueueCustomer
			ownerID string
		)
		if err := rows.Scan(
			&c.ID,
			&ownerID,
			&c.Token,
			&c.Name,
			&c.JoinPosition,
			&c.JoinedAt,
			&c.Phone,
			&c.PartySize,
			&c.Notes,
			&c.Status,
			&c.CalledAt,
			&c.CompletedAt,
			&c.PushSubscription,
			&c.NearFrontNotifiedAt,
		); err != nil {
			return nil, err
		}
		customers = append(customers, &c)
	}
	return customers, rows.Err()
}

// Save persists the aggregate with a conditional write on its version.
// The queue row and every customer row commit in one transaction; a
// version mismatch aborts with ErrVersionConflict and nothing is written.
func (r *queueRepository) Save(ctx context.Context, queue *domain.Queue) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const updateQueue = `
        UPDATE queues SET name=$1, slug=$2, is_active=$3, is_paused=$4,
            max_queue_size=$5, estimated_service_minutes=$6, no_show_timeout_minutes=$7,
            allow_join_when_paused=$8, near_front_threshold=$9, welcome_message=$10, called_message=$11,
            version=version+1
        WHERE id=$12 AND version=$13`
	s := queue.Settings
	cmd, err := tx.Exec(ctx, updateQueue,
		queue.Name,
		queue.Slug,
		queue.IsActive,
		queue.IsPaused,
		s.MaxQueueSize,
		s.EstimatedServiceMinutes,
		s.NoShowTimeoutMinutes,
		s.AllowJoinWhenPaused,
		s.NearFrontThreshold,
		s.WelcomeMessage,
		s.CalledMessage,
		queue.ID,
		int64(queue.Version),
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	const upsertCustomer = `
        INSERT INTO queue_customers (id, queue_id, token, name, join_position, joined_at, phone, party_size, notes,
            status, called_at, completed_at, push_subscription, near_front_notified_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        ON CONFLICT (id) DO UPDATE SET
            name=EXCLUDED.name, phone=EXCLUDED.phone, party_size=EXCLUDED.party_size, notes=EXCLUDED.notes,
            status=EXCLUDED.status, called_at=EXCLUDED.called_at, completed_at=EXCLUDED.completed_at,
            push_subscription=EXCLUDED.push_subscription, near_front_notified_at=EXCLUDED.near_front_notified_at`
	for _, c := range queue.Customers() {
		if _, err := tx.Exec(ctx, upsertCustomer,
			c.ID,
			queue.ID,
			c.Token,
			c.Name,
			c.JoinPosition,
			c.JoinedAt,
			c.Phone,
			c.PartySize,
			c.Notes,
			c.Status,
			c.CalledAt,
			c.CompletedAt,
			c.PushSubscription,
			c.NearFrontNotifiedAt,
		); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	queue.Version++
	return nil
}

func (r *queueRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM queues WHERE is_active = TRUE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *queueRepository) FindQueueIDByToken(ctx context.Context, token string) (string, error) {
	var queueID string
	err := r.pool.QueryRow(ctx, `SELECT queue_id FROM queue_customers WHERE token=$1`, token).Scan(&queueID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", pgx.ErrNoRows
		}
		return "", err
	}
	return queueID, nil
}
