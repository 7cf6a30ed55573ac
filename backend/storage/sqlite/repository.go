package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/service"
)

// defaultPragmas apply to every connection unless the DSN sets them itself.
var defaultPragmas = []string{"foreign_keys(1)", "busy_timeout(5000)"}

// Repository is the gorm backed entity store.
type Repository struct {
	db *gorm.DB
}

var (
	_ service.Store    = (*Repository)(nil)
	_ service.Sessions = (*Repository)(nil)
)

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:  gormlogger.Discard,
		NowFunc: func() time.Time { return dbTime(time.Now()) },
	}
}

// Open opens the database file at dsn.
func Open(dsn string) (*gorm.DB, error) {
	dsn = withConnParams(dsn)
	db, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        dsn,
	}, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	return db, nil
}

// withConnParams adds the default pragmas and time format missing from dsn,
// keeping any query parameters it already has.
func withConnParams(dsn string) string {
	path, query, _ := strings.Cut(dsn, "?")
	values, _ := url.ParseQuery(query)

	var extra []string
	for _, pragma := range defaultPragmas {
		name, _, _ := strings.Cut(pragma, "(")
		if !hasPragma(values["_pragma"], name) {
			extra = append(extra, "_pragma="+pragma)
		}
	}
	if !values.Has("_time_format") {
		extra = append(extra, "_time_format=sqlite")
	}
	if len(extra) == 0 {
		return dsn
	}
	if query != "" {
		extra = append([]string{query}, extra...)
	}
	return path + "?" + strings.Join(extra, "&")
}

func hasPragma(pragmas []string, name string) bool {
	for _, p := range pragmas {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == name || strings.HasPrefix(p, name+"(") || strings.HasPrefix(p, name+"=") {
			return true
		}
	}
	return false
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Session pins one pooled connection for the caller until release.
func (r *Repository) Session(ctx context.Context) (service.Store, func(), error) {
	sqlDB, err := r.db.DB()
	if err != nil {
		return nil, nil, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, nil, classify(fmt.Errorf("acquire connection: %w", err))
	}
	pinned, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", Conn: conn}, gormConfig())
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open session: %w", err)
	}
	return NewRepository(pinned), func() { conn.Close() }, nil
}

// Ping checks that the database file is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return classify(sqlDB.PingContext(ctx))
}

// Close closes the underlying connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// classify maps driver errors onto the store sentinels.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return service.ErrNotFound
	case unavailable(err):
		return fmt.Errorf("%w: %w", service.ErrStoreUnavailable, err)
	default:
		return err
	}
}

// unavailable reports whether err means the database cannot be used at all,
// as opposed to a failure of one statement.
func unavailable(err error) bool {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_NOTADB:
			return true
		}
	}
	// database/sql does not export the closed pool error.
	return strings.Contains(err.Error(), "sql: database is closed")
}

func page(q *gorm.DB, limit, offset int) *gorm.DB {
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		if limit <= 0 {
			q = q.Limit(-1)
		}
		q = q.Offset(offset)
	}
	return q
}

// Contracts

func (r *Repository) contractQuery(ctx context.Context, q service.ContractQuery) *gorm.DB {
	tx := r.db.WithContext(ctx).Model(&ContractModel{})
	if len(q.Statuses) > 0 {
		statuses := make([]string, 0, len(q.Statuses))
		for _, s := range q.Statuses {
			statuses = append(statuses, string(s))
		}
		tx = tx.Where("status IN ?", statuses)
	}
	if q.EndFrom != nil {
		tx = tx.Where("end_date >= ?", dateString(*q.EndFrom))
	}
	if q.EndTo != nil {
		tx = tx.Where("end_date <= ?", dateString(*q.EndTo))
	}
	if q.StartTo != nil {
		tx = tx.Where("start_date <= ?", dateString(*q.StartTo))
	}
	return tx
}

func (r *Repository) ListContracts(ctx context.Context, q service.ContractQuery) ([]model.Contract, error) {
	rows := make([]ContractModel, 0)
	if err := page(r.contractQuery(ctx, q), q.Limit, q.Offset).Order("id").Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	result := make([]model.Contract, 0, len(rows))
	for _, m := range rows {
		result = append(result, contractFromModel(m))
	}
	return result, nil
}

func (r *Repository) GetContract(ctx context.Context, id int64) (model.Contract, error) {
	var m ContractModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return model.Contract{}, classify(err)
	}
	return contractFromModel(m), nil
}

func (r *Repository) CreateContract(ctx context.Context, c *model.Contract) error {
	m := contractToModel(c)
	m.ID = 0
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return classify(err)
	}
	*c = contractFromModel(m)
	return nil
}

func (r *Repository) UpdateContract(ctx context.Context, c *model.Contract) error {
	m := contractToModel(c)
	m.UpdatedAt = dbTime(time.Now())
	res := r.db.WithContext(ctx).Model(&ContractModel{ID: c.ID}).Select("*").Omit("id", "created_at").Updates(&m)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return service.ErrNotFound
	}
	c.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *Repository) DeleteContract(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&ContractModel{}, id)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return service.ErrNotFound
	}
	return nil
}

// Documents

func (r *Repository) documentQuery(ctx context.Context, q service.DocumentQuery) *gorm.DB {
	tx := r.db.WithContext(ctx).Model(&DocumentModel{})
	if q.ExpiryFrom != nil || q.ExpiryTo != nil {
		tx = tx.Where("expiry_date IS NOT NULL")
	}
	if q.ExpiryFrom != nil {
		tx = tx.Where("expiry_date >= ?", dateString(*q.ExpiryFrom))
	}
	if q.ExpiryTo != nil {
		tx = tx.Where("expiry_date <= ?", dateString(*q.ExpiryTo))
	}
	if q.ContractID != nil {
		tx = tx.Where("contract_id = ?", *q.ContractID)
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		tx = tx.Where("title LIKE ?", "%"+s+"%")
	}
	return tx
}

func (r *Repository) ListDocuments(ctx context.Context, q service.DocumentQuery) ([]model.Document, error) {
	tx := r.documentQuery(ctx, q).Order("id")
	// Tags live in a delimited column, so tag filters are applied after loading.
	if len(q.Tags) == 0 {
		tx = page(tx, q.Limit, q.Offset)
	}

	rows := make([]DocumentModel, 0)
	if err := tx.Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	result := make([]model.Document, 0, len(rows))
	for _, m := range rows {
		d := documentFromModel(m)
		if len(q.Tags) > 0 && !q.Matches(&d) {
			continue
		}
		result = append(result, d)
	}
	if len(q.Tags) > 0 {
		result = service.Window(result, q.Limit, q.Offset)
	}
	return result, nil
}

func (r *Repository) GetDocument(ctx context.Context, id int64) (model.Document, error) {
	var m DocumentModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return model.Document{}, classify(err)
	}
	return documentFromModel(m), nil
}

func (r *Repository) CreateDocument(ctx context.Context, d *model.Document) error {
	m := documentToModel(d)
	m.ID = 0
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return classify(err)
	}
	*d = documentFromModel(m)
	return nil
}

func (r *Repository) UpdateDocument(ctx context.Context, d *model.Document) error {
	m := documentToModel(d)
	m.UpdatedAt = dbTime(time.Now())
	res := r.db.WithContext(ctx).Model(&DocumentModel{ID: d.ID}).Select("*").Omit("id", "created_at").Updates(&m)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return service.ErrNotFound
	}
	d.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *Repository) DeleteDocument(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&DocumentModel{}, id)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return service.ErrNotFound
	}
	return nil
}

// Users

func (r *Repository) ListUsers(ctx context.Context, q service.UserQuery) ([]model.User, error) {
	tx := r.db.WithContext(ctx).Model(&UserModel{})
	if q.ActiveOnly {
		tx = tx.Where("is_active = ?", true)
	}
	if q.Role != "" {
		tx = tx.Where("role = ?", q.Role)
	}
	if len(q.IDs) > 0 {
		tx = tx.Where("id IN ?", q.IDs)
	}

	rows := make([]UserModel, 0)
	if err := tx.Order("id").Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	result := make([]model.User, 0, len(rows))
	for _, m := range rows {
		result = append(result, userFromModel(m))
	}
	return result, nil
}

func (r *Repository) GetUser(ctx context.Context, id int64) (model.User, error) {
	var m UserModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return model.User{}, classify(err)
	}
	return userFromModel(m), nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	var m UserModel
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&m).Error; err != nil {
		return model.User{}, classify(err)
	}
	return userFromModel(m), nil
}

func (r *Repository) CreateUser(ctx context.Context, u *model.User) error {
	m := userToModel(u)
	m.ID = 0
	// Select all fields so a false IsActive is written instead of the column default.
	if err := r.db.WithContext(ctx).Select("*").Omit("id").Create(&m).Error; err != nil {
		return classify(err)
	}
	*u = userFromModel(m)
	return nil
}

// Notifications

func (r *Repository) notificationQuery(ctx context.Context, q service.NotificationQuery) *gorm.DB {
	tx := r.db.WithContext(ctx).Model(&NotificationModel{})
	if q.UserID != nil {
		tx = tx.Where("user_id = ?", *q.UserID)
	}
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	if q.RelatedContractID != nil {
		tx = tx.Where("related_contract_id = ?", *q.RelatedContractID)
	}
	if q.RelatedDocumentID != nil {
		tx = tx.Where("related_document_id = ?", *q.RelatedDocumentID)
	}
	if q.CreatedFrom != nil {
		tx = tx.Where("created_at >= ?", dbTime(*q.CreatedFrom))
	}
	if q.CreatedBefore != nil {
		tx = tx.Where("created_at < ?", dbTime(*q.CreatedBefore))
	}
	if q.Read != nil {
		tx = tx.Where("is_read = ?", *q.Read)
	}
	return tx
}

func (r *Repository) ListNotifications(ctx context.Context, q service.NotificationQuery) ([]model.Notification, error) {
	rows := make([]NotificationModel, 0)
	tx := page(r.notificationQuery(ctx, q), q.Limit, q.Offset).Order("created_at DESC, id DESC")
	if err := tx.Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	result := make([]model.Notification, 0, len(rows))
	for _, m := range rows {
		result = append(result, notificationFromModel(m))
	}
	return result, nil
}

func (r *Repository) GetNotification(ctx context.Context, id int64) (model.Notification, error) {
	var m NotificationModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return model.Notification{}, classify(err)
	}
	return notificationFromModel(m), nil
}

func (r *Repository) ExistsNotification(ctx context.Context, q service.NotificationQuery) (bool, error) {
	var ids []int64
	if err := r.notificationQuery(ctx, q).Limit(1).Pluck("id", &ids).Error; err != nil {
		return false, classify(err)
	}
	return len(ids) > 0, nil
}

func (r *Repository) CreateNotification(ctx context.Context, n *model.Notification) error {
	m := notificationToModel(n)
	m.ID = 0
	if err := r.db.WithContext(ctx).Select("*").Omit("id").Create(&m).Error; err != nil {
		return classify(err)
	}
	*n = notificationFromModel(m)
	return nil
}

func (r *Repository) SetNotificationRead(ctx context.Context, id int64, read bool) error {
	res := r.db.WithContext(ctx).Model(&NotificationModel{}).Where("id = ?", id).Update("is_read", read)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		// SQLite counts matched rows, so zero means the id is unknown.
		return service.ErrNotFound
	}
	return nil
}

func (r *Repository) MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&NotificationModel{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return res.RowsAffected, classify(res.Error)
}

func (r *Repository) DeleteNotification(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&NotificationModel{}, id)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return service.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteNotifications(ctx context.Context, q service.NotificationQuery) (int64, error) {
	res := r.notificationQuery(ctx, q).Delete(&NotificationModel{})
	return res.RowsAffected, classify(res.Error)
}
