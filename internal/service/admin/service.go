package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bj-service/internal/config"
	"bj-service/internal/model"
	"bj-service/internal/service/game"
	pkgAuth "bj-service/pkg/auth"
	appErr "bj-service/pkg/errors"
	"bj-service/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	ledger game.Ledger
}

type LoginResult struct {
	Token    string    `json:"token"`
	ExpireAt time.Time `json:"expireAt"`
	Admin    AdminInfo `json:"admin"`
}

type AdminInfo struct {
	ID          int64      `json:"id,string"`
	Username    string     `json:"username"`
	DisplayName string     `json:"displayName"`
	Status      string     `json:"status"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// NewService needs the ledger to re-apply deltas when an incident is
// resolved.
func NewService(db *gorm.DB, ledger game.Ledger) *Service {
	return &Service{db: db, ledger: ledger}
}

func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return nil, appErr.ErrInvalidAdminPassword
	}

	var admin model.Admin
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&admin).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.ErrAdminNotFound
		}
		return nil, err
	}
	if !strings.EqualFold(admin.Status, "active") {
		return nil, appErr.ErrAdminDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return nil, appErr.ErrInvalidAdminPassword
	}

	token, err := pkgAuth.GenerateAdminToken(admin.ID)
	if err != nil {
		return nil, err
	}
	expireAt := time.Now().Add(time.Duration(config.GlobalConfig.JWT.Expire) * time.Hour)

	now := time.Now()
	if err := s.db.WithContext(ctx).
		Model(&admin).
		Updates(map[string]interface{}{
			"last_login_at": now,
			"updated_at":    now,
		}).Error; err != nil {
		return nil, err
	}

	return &LoginResult{
		Token:    token,
		ExpireAt: expireAt,
		Admin:    sanitizeAdmin(admin),
	}, nil
}

func (s *Service) EnsureDefaultAdmin(ctx context.Context) error {
	cfg := config.GlobalConfig.Admin
	if cfg.DefaultUsername == "" || cfg.DefaultPassword == "" {
		logger.Log.Warn("default admin credentials not configured; skipping bootstrap")
		return nil
	}

	var exists int64
	if err := s.db.WithContext(ctx).
		Model(&model.Admin{}).
		Where("username = ?", cfg.DefaultUsername).
		Count(&exists).Error; err != nil {
		return err
	}
	if exists > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := model.Admin{
		Username:     cfg.DefaultUsername,
		PasswordHash: string(hash),
		DisplayName:  cfg.DefaultUsername,
		Status:       "active",
	}
	if err := s.db.WithContext(ctx).Create(&admin).Error; err != nil {
		return err
	}
	logger.Log.Info("default admin account created",
		zap.String("username", cfg.DefaultUsername))
	return nil
}

func sanitizeAdmin(admin model.Admin) AdminInfo {
	return AdminInfo{
		ID:          admin.ID,
		Username:    admin.Username,
		DisplayName: admin.DisplayName,
		Status:      admin.Status,
		LastLoginAt: admin.LastLoginAt,
		CreatedAt:   admin.CreatedAt,
	}
}

func (s *Service) ListIncidents(ctx context.Context, status string, limit int) ([]model.LedgerIncident, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		status = model.IncidentStatusOpen
	}
	var items []model.LedgerIncident
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("id ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// ResolveIncident applies a delta the ledger refused during play. The
// incident is claimed first so two admins cannot apply it twice; if the
// ledger fails again the claim is released.
func (s *Service) ResolveIncident(ctx context.Context, adminID, incidentID int64) (*model.LedgerIncident, error) {
	var incident model.LedgerIncident
	if err := s.db.WithContext(ctx).First(&incident, incidentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.ErrIncidentNotFound
		}
		return nil, err
	}

	now := time.Now()
	res := s.db.WithContext(ctx).Model(&model.LedgerIncident{}).
		Where("id = ? AND status = ?", incidentID, model.IncidentStatusOpen).
		Updates(map[string]interface{}{
			"status":      model.IncidentStatusResolved,
			"resolved_by": adminID,
			"resolved_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, appErr.ErrIncidentResolved
	}

	err := s.ledger.AdjustBalance(ctx, game.Adjustment{
		PlayerID: incident.UserID,
		Delta:    incident.Delta,
		Reason:   game.LedgerReason(incident.Reason),
		TableID:  incident.TableID,
		Round:    incident.RoundNo,
	})
	if err != nil {
		if rerr := s.db.WithContext(ctx).Model(&model.LedgerIncident{}).
			Where("id = ?", incidentID).
			Updates(map[string]interface{}{
				"status":      model.IncidentStatusOpen,
				"resolved_by": nil,
				"resolved_at": nil,
				"error":       err.Error(),
			}).Error; rerr != nil {
			logger.Log.Error("incident claim not released",
				zap.Int64("incidentID", incidentID),
				zap.Error(rerr))
		}
		return nil, fmt.Errorf("resolve incident %d: %w", incidentID, err)
	}

	logger.Log.Info("ledger incident resolved",
		zap.Int64("incidentID", incidentID),
		zap.Int64("adminID", adminID),
		zap.Int64("userID", incident.UserID),
		zap.Int64("delta", incident.Delta))

	incident.Status = model.IncidentStatusResolved
	incident.ResolvedBy = &adminID
	incident.ResolvedAt = &now
	return &incident, nil
}
