package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/slidesmith/slidesmith/internal/domain"
	"github.com/slidesmith/slidesmith/internal/observability"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(s *domain.Session) error
	FindActiveByToken(token string) (*domain.Session, error)
	Deactivate(token string) (bool, error)
	DeactivateByUserID(userID uint) (int64, error)
	DeactivateExpired(now, sentinelCutoff time.Time) (int64, error)
	ListActiveByUserID(userID uint) ([]domain.Session, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(s *domain.Session) error {
	err := r.db.Create(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) FindActiveByToken(token string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.Where("token = ? AND is_active = ?", token, true).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "session", "find_active_by_token", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "session", "find_active_by_token", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "find_active_by_token", "success")
	return &s, nil
}

// Deactivate clears the active flag for the token. Unknown and already
// inactive tokens report changed=false without an error.
func (r *GormSessionRepository) Deactivate(token string) (bool, error) {
	res := r.db.Model(&domain.Session{}).
		Where("token = ? AND is_active = ?", token, true).
		Update("is_active", false)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "deactivate", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "deactivate", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormSessionRepository) DeactivateByUserID(userID uint) (int64, error) {
	res := r.db.Model(&domain.Session{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Update("is_active", false)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "deactivate_by_user_id", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "deactivate_by_user_id", "success")
	return res.RowsAffected, nil
}

// DeactivateExpired sweeps sessions whose expiry has passed. Sessions at or
// beyond sentinelCutoff are the never-expire ones and are left alone.
func (r *GormSessionRepository) DeactivateExpired(now, sentinelCutoff time.Time) (int64, error) {
	res := r.db.Model(&domain.Session{}).
		Where("is_active = ? AND expires_at < ? AND expires_at < ?", true, now, sentinelCutoff).
		Update("is_active", false)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "deactivate_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "deactivate_expired", "success")
	return res.RowsAffected, nil
}

func (r *GormSessionRepository) ListActiveByUserID(userID uint) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "list_active_by_user_id", "error")
		return sessions, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "list_active_by_user_id", "success")
	return sessions, nil
}
