package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xiaot623/gogo/supportchat/internal/domain"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sessionRecord is the gorm row for a session.
type sessionRecord struct {
	SessionID string    `gorm:"primaryKey;size:36"`
	OwnerID   string    `gorm:"size:64;not null;index:idx_sessions_owner_state"`
	Title     string    `gorm:"size:100;not null"`
	State     string    `gorm:"size:16;not null;index:idx_sessions_owner_state"`
	Version   int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false;index"`
}

func (sessionRecord) TableName() string { return "sessions" }

// turnRecord is the gorm row for a turn.
type turnRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	SessionID string    `gorm:"size:36;not null;uniqueIndex:idx_turns_session_seq"`
	Seq       int       `gorm:"not null;uniqueIndex:idx_turns_session_seq"`
	Role      string    `gorm:"size:16;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
}

func (turnRecord) TableName() string { return "turns" }

// GormStore implements Store on gorm, for MySQL deployments.
type GormStore struct {
	db *gorm.DB
}

// Ensure GormStore implements Store interface.
var _ Store = (*GormStore)(nil)

// NewMySQLStore opens a gorm store on a MySQL-compatible server.
func NewMySQLStore(dsn string) (*GormStore, error) {
	return NewGormStore(mysql.Open(dsn), false)
}

// NewGormSQLiteStore opens a gorm store on SQLite.
func NewGormSQLiteStore(dsn string) (*GormStore, error) {
	single := dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
	return NewGormStore(sqlite.Open(dsn), single)
}

// NewGormStore opens dialector and migrates the schema.
func NewGormStore(dialector gorm.Dialector, singleConn bool) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: gorm open: %w", err)
	}
	if singleConn {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("store: gorm pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}
	if err := db.AutoMigrate(&sessionRecord{}, &turnRecord{}); err != nil {
		return nil, fmt.Errorf("store: gorm migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateSession creates a new session.
func (s *GormStore) CreateSession(ctx context.Context, session *domain.Session) error {
	if session.State == "" {
		session.State = domain.SessionStateActive
	}
	session.Version = 1
	rec := sessionRecord{
		SessionID: session.SessionID,
		OwnerID:   session.OwnerID,
		Title:     session.Title,
		State:     string(session.State),
		Version:   session.Version,
		CreatedAt: session.CreatedAt.UTC(),
		UpdatedAt: session.UpdatedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return &domain.StoreError{Op: "create session", Err: err}
	}
	return nil
}

// GetSession retrieves an active session owned by ownerID.
func (s *GormStore) GetSession(ctx context.Context, sessionID, ownerID string) (*domain.Session, error) {
	var rec sessionRecord
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND owner_id = ? AND state = ?", sessionID, ownerID, string(domain.SessionStateActive)).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.SessionNotFound(sessionID)
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "get session", Err: err}
	}
	return s.withTurns(s.db.WithContext(ctx), rec)
}

// FindSessions returns a page of the owner's active sessions, most recently updated first.
func (s *GormStore) FindSessions(ctx context.Context, ownerID string, page, limit int) ([]domain.Session, int, error) {
	db := s.db.WithContext(ctx)
	scope := db.Model(&sessionRecord{}).Where("owner_id = ? AND state = ?", ownerID, string(domain.SessionStateActive))

	var total int64
	if err := scope.Count(&total).Error; err != nil {
		return nil, 0, &domain.StoreError{Op: "count sessions", Err: err}
	}

	var recs []sessionRecord
	if err := db.Where("owner_id = ? AND state = ?", ownerID, string(domain.SessionStateActive)).
		Order("updated_at DESC").Order("created_at DESC").
		Limit(limit).Offset((page - 1) * limit).
		Find(&recs).Error; err != nil {
		return nil, 0, &domain.StoreError{Op: "find sessions", Err: err}
	}

	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.SessionID
	}
	byID := make(map[string][]domain.Turn, len(recs))
	if len(ids) > 0 {
		var turns []turnRecord
		if err := db.Where("session_id IN ?", ids).Order("session_id").Order("seq ASC").Find(&turns).Error; err != nil {
			return nil, 0, &domain.StoreError{Op: "load turns", Err: err}
		}
		for _, t := range turns {
			byID[t.SessionID] = append(byID[t.SessionID], toTurn(t))
		}
	}

	sessions := make([]domain.Session, len(recs))
	for i, rec := range recs {
		sessions[i] = toSession(rec)
		if turns, ok := byID[rec.SessionID]; ok {
			sessions[i].Turns = turns
		}
	}
	return sessions, int(total), nil
}

// AppendTurn appends a turn if the session is still at expectedVersion.
func (s *GormStore) AppendTurn(ctx context.Context, sessionID string, expectedVersion int64, turn domain.Turn) (*domain.Session, error) {
	if !turn.Role.Valid() {
		return nil, domain.NewValidationError("role", fmt.Sprintf("unsupported role %q", turn.Role))
	}

	var session *domain.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.bumpVersion(tx, sessionID, expectedVersion, turn.Timestamp); err != nil {
			return err
		}

		var seq int
		if err := tx.Model(&turnRecord{}).Where("session_id = ?", sessionID).
			Select("COALESCE(MAX(seq), 0)").Scan(&seq).Error; err != nil {
			return &domain.StoreError{Op: "append turn", Err: err}
		}
		rec := turnRecord{
			SessionID: sessionID,
			Seq:       seq + 1,
			Role:      string(turn.Role),
			Content:   turn.Content,
			CreatedAt: turn.Timestamp.UTC(),
		}
		if err := tx.Create(&rec).Error; err != nil {
			return &domain.StoreError{Op: "append turn", Err: err}
		}

		var err error
		session, err = s.loadSession(tx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// SetTitle updates the title if the session is still at expectedVersion.
func (s *GormStore) SetTitle(ctx context.Context, sessionID string, expectedVersion int64, title string, at time.Time) (*domain.Session, error) {
	var session *domain.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.bumpVersion(tx, sessionID, expectedVersion, at); err != nil {
			return err
		}
		if err := tx.Model(&sessionRecord{}).Where("session_id = ?", sessionID).
			Update("title", title).Error; err != nil {
			return &domain.StoreError{Op: "set title", Err: err}
		}
		var err error
		session, err = s.loadSession(tx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// SoftDelete marks a session deleted without touching its turns.
func (s *GormStore) SoftDelete(ctx context.Context, sessionID, ownerID string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("session_id = ? AND owner_id = ? AND state = ?", sessionID, ownerID, string(domain.SessionStateActive)).
		Updates(map[string]interface{}{
			"state":      string(domain.SessionStateDeleted),
			"version":    gorm.Expr("version + 1"),
			"updated_at": at.UTC(),
		})
	if res.Error != nil {
		return &domain.StoreError{Op: "soft delete", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return domain.SessionNotFound(sessionID)
	}
	return nil
}

// CountActive sums sessions and turns over the owner's active sessions.
func (s *GormStore) CountActive(ctx context.Context, ownerID string) (int, int, error) {
	db := s.db.WithContext(ctx)
	active := string(domain.SessionStateActive)

	var sessions int64
	if err := db.Model(&sessionRecord{}).Where("owner_id = ? AND state = ?", ownerID, active).
		Count(&sessions).Error; err != nil {
		return 0, 0, &domain.StoreError{Op: "count sessions", Err: err}
	}
	var turns int64
	if err := db.Model(&turnRecord{}).
		Joins("JOIN sessions ON sessions.session_id = turns.session_id").
		Where("sessions.owner_id = ? AND sessions.state = ?", ownerID, active).
		Count(&turns).Error; err != nil {
		return 0, 0, &domain.StoreError{Op: "count turns", Err: err}
	}
	return int(sessions), int(turns), nil
}

func (s *GormStore) bumpVersion(tx *gorm.DB, sessionID string, expectedVersion int64, at time.Time) error {
	res := tx.Model(&sessionRecord{}).
		Where("session_id = ? AND version = ? AND state = ?", sessionID, expectedVersion, string(domain.SessionStateActive)).
		Updates(map[string]interface{}{
			"version":    gorm.Expr("version + 1"),
			"updated_at": at.UTC(),
		})
	if res.Error != nil {
		return &domain.StoreError{Op: "update session", Err: res.Error}
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var rec sessionRecord
	err := tx.Select("state").Where("session_id = ?", sessionID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && rec.State != string(domain.SessionStateActive)) {
		return domain.SessionNotFound(sessionID)
	}
	if err != nil {
		return &domain.StoreError{Op: "update session", Err: err}
	}
	return domain.ErrConflict
}

func (s *GormStore) loadSession(tx *gorm.DB, sessionID string) (*domain.Session, error) {
	var rec sessionRecord
	err := tx.Where("session_id = ?", sessionID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.SessionNotFound(sessionID)
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "load session", Err: err}
	}
	return s.withTurns(tx, rec)
}

func (s *GormStore) withTurns(db *gorm.DB, rec sessionRecord) (*domain.Session, error) {
	var turns []turnRecord
	if err := db.Where("session_id = ?", rec.SessionID).Order("seq ASC").Find(&turns).Error; err != nil {
		return nil, &domain.StoreError{Op: "load turns", Err: err}
	}
	session := toSession(rec)
	for _, t := range turns {
		session.Turns = append(session.Turns, toTurn(t))
	}
	return &session, nil
}

func toSession(rec sessionRecord) domain.Session {
	return domain.Session{
		SessionID: rec.SessionID,
		OwnerID:   rec.OwnerID,
		Title:     rec.Title,
		Turns:     []domain.Turn{},
		State:     domain.SessionState(rec.State),
		Version:   rec.Version,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func toTurn(rec turnRecord) domain.Turn {
	return domain.Turn{
		Role:      domain.Role(rec.Role),
		Content:   rec.Content,
		Timestamp: rec.CreatedAt,
	}
}
