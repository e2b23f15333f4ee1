package user

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"bj-service/internal/model"
	appErr "bj-service/pkg/errors"
	"bj-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultAdminUserPageSize = 20
	maxAdminUserPageSize     = 100
	maxNicknameLen           = 32
)

type Service struct {
	db *gorm.DB
}

// Profile is a user with the balance of their wallet.
type Profile struct {
	ID        int64     `json:"id,string"`
	Nickname  string    `json:"nickname"`
	Status    string    `json:"status"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
}

type AdminListUsersFilter struct {
	Page            int
	Size            int
	Status          string
	NicknameKeyword string
}

type AdminListUsersResult struct {
	Items []model.User
	Total int64
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (f *AdminListUsersFilter) sanitize() {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Size <= 0 {
		f.Size = defaultAdminUserPageSize
	}
	if f.Size > maxAdminUserPageSize {
		f.Size = maxAdminUserPageSize
	}
	f.Status = strings.ToLower(strings.TrimSpace(f.Status))
	f.NicknameKeyword = strings.TrimSpace(f.NicknameKeyword)
}

func applyAdminUserFilters(db *gorm.DB, filter AdminListUsersFilter) *gorm.DB {
	if filter.Status != "" {
		db = db.Where("LOWER(status) = ?", filter.Status)
	}
	if filter.NicknameKeyword != "" {
		db = db.Where("nickname LIKE ?", "%"+filter.NicknameKeyword+"%")
	}
	return db
}

func (s *Service) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.ErrUserNotFound
		}
		return nil, err
	}
	var wallet model.Wallet
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return &Profile{
		ID:        user.ID,
		Nickname:  user.Nickname,
		Status:    user.Status,
		Balance:   wallet.Balance,
		CreatedAt: user.CreatedAt,
	}, nil
}

// UpdateNickname renames a user. Seats already taken keep the old label
// until the player rejoins.
func (s *Service) UpdateNickname(ctx context.Context, userID int64, nickname string) (*Profile, error) {
	nickname = strings.TrimSpace(nickname)
	if n := utf8.RuneCountInString(nickname); n < 2 || n > maxNicknameLen || strings.ContainsAny(nickname, " \t\r\n") {
		return nil, appErr.ErrInvalidNickname
	}

	var taken int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("nickname = ? AND id <> ?", nickname, userID).
		Count(&taken).Error; err != nil {
		return nil, err
	}
	if taken > 0 {
		return nil, appErr.ErrNicknameTaken
	}

	res := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Update("nickname", nickname)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, appErr.ErrUserNotFound
	}
	return s.GetProfile(ctx, userID)
}

func (s *Service) AdminListUsers(ctx context.Context, filter AdminListUsersFilter) (*AdminListUsersResult, error) {
	filter.sanitize()

	countQuery := applyAdminUserFilters(s.db.WithContext(ctx).Model(&model.User{}), filter)
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, err
	}

	result := &AdminListUsersResult{
		Items: make([]model.User, 0),
		Total: total,
	}
	if total == 0 {
		return result, nil
	}

	dataQuery := applyAdminUserFilters(s.db.WithContext(ctx).Model(&model.User{}), filter)
	if err := dataQuery.
		Order("id DESC").
		Limit(filter.Size).
		Offset((filter.Page - 1) * filter.Size).
		Find(&result.Items).Error; err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Service) AdminUpdateUserStatus(ctx context.Context, userID int64, status, reason string) (*model.User, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != "normal" && status != "banned" {
		return nil, appErr.ErrInvalidUserStatus
	}

	res := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, appErr.ErrUserNotFound
	}

	logger.Log.Info("admin updated user status",
		zap.Int64("userID", userID),
		zap.String("status", status),
		zap.String("reason", strings.TrimSpace(reason)))

	var user model.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
