package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"bj-service/internal/config"
	"bj-service/internal/model"
	pkgAuth "bj-service/pkg/auth"
	appErr "bj-service/pkg/errors"
	"bj-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	minNicknameLen = 2
	maxNicknameLen = 32
	minPasswordLen = 6
)

type Options struct {
	MaxLoginFailures int
	FailureWindow    time.Duration
	StartingBalance  int64
}

func OptionsFromConfig(c config.AuthConfig) Options {
	return Options{
		MaxLoginFailures: c.MaxLoginFailures,
		FailureWindow:    time.Duration(c.FailureWindowSeconds) * time.Second,
		StartingBalance:  c.StartingBalance,
	}
}

type Service struct {
	db   *gorm.DB
	rdb  *redis.Client
	opts Options
}

type LoginResult struct {
	Token    string     `json:"token"`
	ExpireAt time.Time  `json:"expireAt"`
	User     model.User `json:"user"`
}

// NewService builds the player auth flow. With a nil rdb failed logins are
// not throttled.
func NewService(db *gorm.DB, rdb *redis.Client, opts Options) *Service {
	if opts.FailureWindow <= 0 {
		opts.FailureWindow = 15 * time.Minute
	}
	return &Service{db: db, rdb: rdb, opts: opts}
}

func (s *Service) Register(ctx context.Context, nickname, password string) (*LoginResult, error) {
	nickname = strings.TrimSpace(nickname)
	if !isValidNickname(nickname) {
		return nil, appErr.ErrInvalidNickname
	}
	if len(password) < minPasswordLen {
		return nil, appErr.ErrInvalidPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := model.User{
		Nickname:     nickname,
		PasswordHash: string(hash),
		Status:       "normal",
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.User{}).Where("nickname = ?", nickname).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return appErr.ErrNicknameTaken
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return tx.Create(&model.Wallet{
			UserID:  user.ID,
			Balance: s.opts.StartingBalance,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("user registered",
		zap.Int64("userID", user.ID),
		zap.Int64("startingBalance", s.opts.StartingBalance),
	)
	return s.issue(user)
}

func (s *Service) Login(ctx context.Context, nickname, password string) (*LoginResult, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" || password == "" {
		return nil, appErr.ErrInvalidPassword
	}
	if err := s.checkThrottle(ctx, nickname); err != nil {
		return nil, err
	}

	var user model.User
	err := s.db.WithContext(ctx).Where("nickname = ?", nickname).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.recordFailure(ctx, nickname)
			return nil, appErr.ErrInvalidPassword
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.recordFailure(ctx, nickname)
		return nil, appErr.ErrInvalidPassword
	}
	if strings.EqualFold(user.Status, "banned") {
		return nil, appErr.ErrUserBanned
	}

	s.clearFailures(ctx, nickname)
	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_at", &now).Error; err != nil {
		return nil, err
	}
	user.LastLoginAt = &now
	return s.issue(user)
}

func (s *Service) issue(user model.User) (*LoginResult, error) {
	token, err := pkgAuth.GenerateToken(user.ID, user.Nickname)
	if err != nil {
		return nil, err
	}
	expireAt := time.Now().Add(time.Duration(config.GlobalConfig.JWT.Expire) * time.Hour)
	return &LoginResult{
		Token:    token,
		ExpireAt: expireAt,
		User:     user,
	}, nil
}

func (s *Service) checkThrottle(ctx context.Context, nickname string) error {
	if s.rdb == nil || s.opts.MaxLoginFailures <= 0 {
		return nil
	}
	count, err := s.rdb.Get(ctx, buildFailKey(nickname)).Int()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		// The throttle is advisory; an unreachable redis does not block logins.
		logger.Log.Warn("login throttle lookup failed", zap.Error(err))
		return nil
	}
	if count >= s.opts.MaxLoginFailures {
		return appErr.ErrTooManyAttempts
	}
	return nil
}

func (s *Service) recordFailure(ctx context.Context, nickname string) {
	if s.rdb == nil {
		return
	}
	key := buildFailKey(nickname)
	pipe := s.rdb.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.opts.FailureWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Log.Warn("login failure not recorded", zap.Error(err))
	}
}

func (s *Service) clearFailures(ctx context.Context, nickname string) {
	if s.rdb == nil {
		return
	}
	s.rdb.Del(ctx, buildFailKey(nickname))
}

func isValidNickname(nickname string) bool {
	n := utf8.RuneCountInString(nickname)
	if n < minNicknameLen || n > maxNicknameLen {
		return false
	}
	return !strings.ContainsAny(nickname, " \t\r\n")
}

func buildFailKey(nickname string) string {
	return fmt.Sprintf("auth:fail:%s", strings.ToLower(nickname))
}
