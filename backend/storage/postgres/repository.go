package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/service"
)

// querier is satisfied by both the pool and a single acquired connection.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the pgx backed entity store.
type Repository struct {
	pool *pgxpool.Pool
	db   querier
}

var (
	_ service.Store    = (*Repository)(nil)
	_ service.Sessions = (*Repository)(nil)
)

// Open creates a connection pool and verifies connectivity.
func Open(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %w", service.ErrStoreUnavailable, err)
	}
	return pool, nil
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, db: pool}
}

// Session acquires one pooled connection and holds it until release.
func (r *Repository) Session(ctx context.Context) (service.Store, func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, classify(fmt.Errorf("acquire connection: %w", err))
	}
	return &Repository{pool: r.pool, db: conn}, conn.Release, nil
}

// Ping checks connectivity through the pool.
func (r *Repository) Ping(ctx context.Context) error {
	return classify(r.pool.Ping(ctx))
}

func (r *Repository) Close() {
	r.pool.Close()
}

// classify maps driver errors onto the store sentinels.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return service.ErrNotFound
	case unavailable(err):
		return fmt.Errorf("%w: %w", service.ErrStoreUnavailable, err)
	default:
		return err
	}
}

// unavailable reports whether err means the server could not be reached or
// dropped the connection, as opposed to rejecting one statement.
func unavailable(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exception; 57P01..57P03 are server shutdown states.
		return strings.HasPrefix(pgErr.Code, "08") ||
			pgErr.Code == "57P01" || pgErr.Code == "57P02" || pgErr.Code == "57P03"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// pgxpool does not export its closed pool error.
	return strings.Contains(err.Error(), "closed pool")
}

func affected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrNotFound
	}
	return nil
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// Contracts

const contractColumns = `id, contract_number, client_name, client_phone, client_email,
	property_address, property_type, rental_amount, deposit_amount,
	start_date, end_date, status, contract_file_path, created_by, created_at, updated_at`

func scanContract(row pgx.Row) (model.Contract, error) {
	var c model.Contract
	var status string
	err := row.Scan(
		&c.ID,
		&c.Number,
		&c.ClientName,
		&c.ClientPhone,
		&c.ClientEmail,
		&c.PropertyAddress,
		&c.PropertyType,
		&c.RentalAmount,
		&c.DepositAmount,
		&c.StartDate,
		&c.EndDate,
		&status,
		&c.FilePath,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	c.Status = model.ContractStatus(status)
	return c, err
}

func contractFilter(q service.ContractQuery) *filter {
	f := &filter{}
	if len(q.Statuses) > 0 {
		statuses := make([]string, 0, len(q.Statuses))
		for _, s := range q.Statuses {
			statuses = append(statuses, string(s))
		}
		f.add("status = ANY(?)", statuses)
	}
	if q.EndFrom != nil {
		f.add("end_date >= ?", *q.EndFrom)
	}
	if q.EndTo != nil {
		f.add("end_date <= ?", *q.EndTo)
	}
	if q.StartTo != nil {
		f.add("start_date <= ?", *q.StartTo)
	}
	return f
}

func (r *Repository) ListContracts(ctx context.Context, q service.ContractQuery) ([]model.Contract, error) {
	f := contractFilter(q)
	query := `SELECT ` + contractColumns + ` FROM contracts` + f.where() + ` ORDER BY id` + f.page(q.Limit, q.Offset)

	rows, err := r.db.Query(ctx, query, f.args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	contracts := make([]model.Contract, 0)
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, classify(err)
		}
		contracts = append(contracts, c)
	}
	return contracts, classify(rows.Err())
}

func (r *Repository) GetContract(ctx context.Context, id int64) (model.Contract, error) {
	c, err := scanContract(r.db.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id))
	if err != nil {
		return model.Contract{}, classify(err)
	}
	return c, nil
}

func (r *Repository) CreateContract(ctx context.Context, c *model.Contract) error {
	query := `
		INSERT INTO contracts (
			contract_number, client_name, client_phone, client_email,
			property_address, property_type, rental_amount, deposit_amount,
			start_date, end_date, status, contract_file_path, created_by,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $14
		)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		c.Number, c.ClientName, c.ClientPhone, c.ClientEmail,
		c.PropertyAddress, c.PropertyType, c.RentalAmount, c.DepositAmount,
		c.StartDate, c.EndDate, string(c.Status), c.FilePath, c.CreatedBy,
		createdAt(c.CreatedAt),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return classify(err)
}

func (r *Repository) UpdateContract(ctx context.Context, c *model.Contract) error {
	query := `
		UPDATE contracts SET
			contract_number = $2, client_name = $3, client_phone = $4, client_email = $5,
			property_address = $6, property_type = $7, rental_amount = $8, deposit_amount = $9,
			start_date = $10, end_date = $11, status = $12, contract_file_path = $13,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query, c.ID,
		c.Number, c.ClientName, c.ClientPhone, c.ClientEmail,
		c.PropertyAddress, c.PropertyType, c.RentalAmount, c.DepositAmount,
		c.StartDate, c.EndDate, string(c.Status), c.FilePath,
	).Scan(&c.UpdatedAt)
	return classify(err)
}

func (r *Repository) DeleteContract(ctx context.Context, id int64) error {
	return affected(r.db.Exec(ctx, `DELETE FROM contracts WHERE id = $1`, id))
}

// Documents

const documentColumns = `id, title, description, object_name, file_type, file_size,
	contract_id, uploaded_by, tags, expiry_date, created_at, updated_at`

func scanDocument(row pgx.Row) (model.Document, error) {
	var d model.Document
	err := row.Scan(
		&d.ID,
		&d.Title,
		&d.Description,
		&d.ObjectName,
		&d.FileType,
		&d.FileSize,
		&d.ContractID,
		&d.UploadedBy,
		&d.Tags,
		&d.ExpiryDate,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if d.Tags == nil {
		d.Tags = []string{}
	}
	return d, err
}

func documentFilter(q service.DocumentQuery) *filter {
	f := &filter{}
	if q.ExpiryFrom != nil || q.ExpiryTo != nil {
		f.add("expiry_date IS NOT NULL")
	}
	if q.ExpiryFrom != nil {
		f.add("expiry_date >= ?", *q.ExpiryFrom)
	}
	if q.ExpiryTo != nil {
		f.add("expiry_date <= ?", *q.ExpiryTo)
	}
	if q.ContractID != nil {
		f.add("contract_id = ?", *q.ContractID)
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		f.add("title ILIKE ?", "%"+s+"%")
	}
	for _, tag := range q.Tags {
		f.add("EXISTS (SELECT 1 FROM unnest(tags) t WHERE lower(t) = lower(?))", tag)
	}
	return f
}

func (r *Repository) ListDocuments(ctx context.Context, q service.DocumentQuery) ([]model.Document, error) {
	f := documentFilter(q)
	query := `SELECT ` + documentColumns + ` FROM documents` + f.where() + ` ORDER BY id` + f.page(q.Limit, q.Offset)

	rows, err := r.db.Query(ctx, query, f.args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	documents := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, classify(err)
		}
		documents = append(documents, d)
	}
	return documents, classify(rows.Err())
}

func (r *Repository) GetDocument(ctx context.Context, id int64) (model.Document, error) {
	d, err := scanDocument(r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		return model.Document{}, classify(err)
	}
	return d, nil
}

func (r *Repository) CreateDocument(ctx context.Context, d *model.Document) error {
	if d.Tags == nil {
		d.Tags = []string{}
	}
	query := `
		INSERT INTO documents (
			title, description, object_name, file_type, file_size,
			contract_id, uploaded_by, tags, expiry_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		d.Title, d.Description, d.ObjectName, d.FileType, d.FileSize,
		d.ContractID, d.UploadedBy, d.Tags, d.ExpiryDate, createdAt(d.CreatedAt),
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	return classify(err)
}

func (r *Repository) UpdateDocument(ctx context.Context, d *model.Document) error {
	if d.Tags == nil {
		d.Tags = []string{}
	}
	query := `
		UPDATE documents SET
			title = $2, description = $3, object_name = $4, file_type = $5, file_size = $6,
			contract_id = $7, tags = $8, expiry_date = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query, d.ID,
		d.Title, d.Description, d.ObjectName, d.FileType, d.FileSize,
		d.ContractID, d.Tags, d.ExpiryDate,
	).Scan(&d.UpdatedAt)
	return classify(err)
}

func (r *Repository) DeleteDocument(ctx context.Context, id int64) error {
	return affected(r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id))
}

// Users

const userColumns = `id, username, email, full_name, password_hash, role, is_active, created_at`

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt)
	return u, err
}

func (r *Repository) ListUsers(ctx context.Context, q service.UserQuery) ([]model.User, error) {
	f := &filter{}
	if q.ActiveOnly {
		f.add("is_active")
	}
	if q.Role != "" {
		f.add("role = ?", q.Role)
	}
	if len(q.IDs) > 0 {
		f.add("id = ANY(?)", q.IDs)
	}

	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users`+f.where()+` ORDER BY id`, f.args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, classify(err)
		}
		users = append(users, u)
	}
	return users, classify(rows.Err())
}

func (r *Repository) GetUser(ctx context.Context, id int64) (model.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return model.User{}, classify(err)
	}
	return u, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username))
	if err != nil {
		return model.User{}, classify(err)
	}
	return u, nil
}

func (r *Repository) CreateUser(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (username, email, full_name, password_hash, role, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		u.Username, u.Email, u.FullName, u.PasswordHash, u.Role, u.Active, createdAt(u.CreatedAt),
	).Scan(&u.ID, &u.CreatedAt)
	return classify(err)
}

// Notifications

const notificationColumns = `id, user_id, title, message, type,
	related_contract_id, related_document_id, is_read, created_at`

func scanNotification(row pgx.Row) (model.Notification, error) {
	var n model.Notification
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Title,
		&n.Message,
		&n.Type,
		&n.RelatedContractID,
		&n.RelatedDocumentID,
		&n.Read,
		&n.CreatedAt,
	)
	return n, err
}

func notificationFilter(q service.NotificationQuery) *filter {
	f := &filter{}
	if q.UserID != nil {
		f.add("user_id = ?", *q.UserID)
	}
	if q.Type != "" {
		f.add("type = ?", q.Type)
	}
	if q.RelatedContractID != nil {
		f.add("related_contract_id = ?", *q.RelatedContractID)
	}
	if q.RelatedDocumentID != nil {
		f.add("related_document_id = ?", *q.RelatedDocumentID)
	}
	if q.CreatedFrom != nil {
		f.add("created_at >= ?", *q.CreatedFrom)
	}
	if q.CreatedBefore != nil {
		f.add("created_at < ?", *q.CreatedBefore)
	}
	if q.Read != nil {
		f.add("is_read = ?", *q.Read)
	}
	return f
}

func (r *Repository) ListNotifications(ctx context.Context, q service.NotificationQuery) ([]model.Notification, error) {
	f := notificationFilter(q)
	query := `SELECT ` + notificationColumns + ` FROM notifications` + f.where() +
		` ORDER BY created_at DESC, id DESC` + f.page(q.Limit, q.Offset)

	rows, err := r.db.Query(ctx, query, f.args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	notifications := make([]model.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, classify(err)
		}
		notifications = append(notifications, n)
	}
	return notifications, classify(rows.Err())
}

func (r *Repository) GetNotification(ctx context.Context, id int64) (model.Notification, error) {
	n, err := scanNotification(r.db.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if err != nil {
		return model.Notification{}, classify(err)
	}
	return n, nil
}

func (r *Repository) ExistsNotification(ctx context.Context, q service.NotificationQuery) (bool, error) {
	f := notificationFilter(q)
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM notifications`+f.where()+`)`, f.args...).Scan(&exists)
	return exists, classify(err)
}

func (r *Repository) CreateNotification(ctx context.Context, n *model.Notification) error {
	query := `
		INSERT INTO notifications (
			user_id, title, message, type,
			related_contract_id, related_document_id, is_read, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		n.UserID, n.Title, n.Message, n.Type,
		n.RelatedContractID, n.RelatedDocumentID, n.Read, createdAt(n.CreatedAt),
	).Scan(&n.ID, &n.CreatedAt)
	return classify(err)
}

func (r *Repository) SetNotificationRead(ctx context.Context, id int64, read bool) error {
	return affected(r.db.Exec(ctx, `UPDATE notifications SET is_read = $2 WHERE id = $1`, id, read))
}

func (r *Repository) MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, classify(err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) DeleteNotification(ctx context.Context, id int64) error {
	return affected(r.db.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id))
}

func (r *Repository) DeleteNotifications(ctx context.Context, q service.NotificationQuery) (int64, error) {
	f := notificationFilter(q)
	if len(f.conds) == 0 {
		return 0, errors.New("refusing to delete notifications without a predicate")
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM notifications`+f.where(), f.args...)
	if err != nil {
		return 0, classify(err)
	}
	return tag.RowsAffected(), nil
}
