package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/slidesmith/slidesmith/internal/domain"
	"github.com/slidesmith/slidesmith/internal/observability"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrDuplicateEmail    = errors.New("email already exists")
	// ErrVerificationFailed means the post-insert read-back did not find the
	// row that the insert reported as written, or found it with a different
	// identity. The surrounding transaction is rolled back.
	ErrVerificationFailed = errors.New("user persistence verification failed")
)

type UserRepository interface {
	CreateVerified(user *domain.User) error
	FindActiveByID(id uint) (*domain.User, error)
	FindActiveByUsername(username string) (*domain.User, error)
	FindByUsername(username string) (*domain.User, error)
	FindByEmail(email string) (*domain.User, error)
	UpdatePasswordHash(userID uint, hash string) error
	UpdateLastLogin(userID uint, at time.Time) error
	DeactivateCascade(userID uint) error
	Count() (int64, error)
	List(offset, limit int) ([]domain.User, error)
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

// CreateVerified inserts the user and re-reads the just-written row inside
// the same transaction, verifying it exists and carries the same ID before
// the transaction commits. Uniqueness races that slip past the pre-checks
// are closed by the store's unique indexes and surface as duplicate errors.
func (r *GormUserRepository) CreateVerified(user *domain.User) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.User{}).Where("username = ?", user.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateUsername
		}
		if user.Email != nil {
			if err := tx.Model(&domain.User{}).Where("email = ?", *user.Email).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return ErrDuplicateEmail
			}
		}
		if err := tx.Create(user).Error; err != nil {
			return translateDuplicateError(err, user)
		}
		var verify domain.User
		if err := tx.Where("username = ?", user.Username).First(&verify).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrVerificationFailed
			}
			return err
		}
		if verify.ID != user.ID {
			return ErrVerificationFailed
		}
		return nil
	})
	if err != nil {
		outcome := "error"
		switch {
		case errors.Is(err, ErrDuplicateUsername), errors.Is(err, ErrDuplicateEmail):
			outcome = "duplicate"
		case errors.Is(err, ErrVerificationFailed):
			outcome = "verification_failed"
		}
		observability.RecordRepositoryOperation(context.Background(), "user", "create_verified", outcome)
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "create_verified", "success")
	return nil
}

func (r *GormUserRepository) FindActiveByID(id uint) (*domain.User, error) {
	return r.findOne("find_active_by_id", r.db.Where("id = ? AND is_active = ?", id, true))
}

func (r *GormUserRepository) FindActiveByUsername(username string) (*domain.User, error) {
	return r.findOne("find_active_by_username", r.db.Where("username = ? AND is_active = ?", username, true))
}

func (r *GormUserRepository) FindByUsername(username string) (*domain.User, error) {
	return r.findOne("find_by_username", r.db.Where("username = ?", username))
}

func (r *GormUserRepository) FindByEmail(email string) (*domain.User, error) {
	return r.findOne("find_by_email", r.db.Where("email = ?", email))
}

func (r *GormUserRepository) findOne(operation string, query *gorm.DB) (*domain.User, error) {
	var u domain.User
	err := query.First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "user", operation, "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "user", operation, "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", operation, "success")
	return &u, nil
}

func (r *GormUserRepository) UpdatePasswordHash(userID uint, hash string) error {
	res := r.db.Model(&domain.User{}).Where("id = ?", userID).Update("password_hash", hash)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "update_password_hash", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "user", "update_password_hash", "not_found")
		return ErrUserNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "update_password_hash", "success")
	return nil
}

func (r *GormUserRepository) UpdateLastLogin(userID uint, at time.Time) error {
	err := r.db.Model(&domain.User{}).Where("id = ?", userID).Update("last_login_at", at).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "update_last_login", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "update_last_login", "success")
	return nil
}

// DeactivateCascade marks the user inactive and deactivates every session
// owned by the user as one logical transaction.
func (r *GormUserRepository) DeactivateCascade(userID uint) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.User{}).Where("id = ?", userID).Update("is_active", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return tx.Model(&domain.Session{}).
			Where("user_id = ? AND is_active = ?", userID, true).
			Update("is_active", false).Error
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrUserNotFound) {
			outcome = "not_found"
		}
		observability.RecordRepositoryOperation(context.Background(), "user", "deactivate_cascade", outcome)
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "deactivate_cascade", "success")
	return nil
}

func (r *GormUserRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&domain.User{}).Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "count", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "count", "success")
	return count, nil
}

func (r *GormUserRepository) List(offset, limit int) ([]domain.User, error) {
	var users []domain.User
	err := r.db.Order("id").Offset(offset).Limit(limit).Find(&users).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "list", "error")
		return users, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "list", "success")
	return users, nil
}

// translateDuplicateError maps a unique-index violation raised by the
// driver to the matching duplicate sentinel. This is the backstop for two
// concurrent registrations passing the pre-checks together.
func translateDuplicateError(err error, user *domain.User) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	duplicate := errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
	if !duplicate {
		return err
	}
	if user.Email != nil && strings.Contains(msg, "email") {
		return ErrDuplicateEmail
	}
	return ErrDuplicateUsername
}
