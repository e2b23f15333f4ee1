package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bj-service/internal/model"
	"bj-service/internal/service/game"
	appErr "bj-service/pkg/errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const billingTypeAdjust = "adjust"

// Service stores balances in the wallets table. It is the Ledger every
// table settles against.
type Service struct {
	db *gorm.DB
}

var _ game.Ledger = (*Service)(nil)

type AdminSetWalletRequest struct {
	Balance *int64
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) GetWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	var wallet model.Wallet
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.Wallet{UserID: userID}, nil
		}
		return nil, err
	}
	return &wallet, nil
}

// EnsureWallet creates the wallet with an opening balance if it does not
// exist yet. An existing wallet is left untouched.
func (s *Service) EnsureWallet(ctx context.Context, tx *gorm.DB, userID, opening int64) error {
	if tx == nil {
		tx = s.db
	}
	wallet := model.Wallet{UserID: userID, Balance: opening, UpdatedAt: time.Now()}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&wallet).Error
}

func (s *Service) GetBalance(ctx context.Context, userID int64) (int64, error) {
	wallet, err := s.GetWallet(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", appErr.ErrLedgerUnavailable, err)
	}
	return wallet.Balance, nil
}

// AdjustBalance applies one table delta under a row lock and writes the
// billing log in the same transaction. A loss larger than the balance is
// clamped at zero and the shortfall is kept in the log meta.
func (s *Service) AdjustBalance(ctx context.Context, adj game.Adjustment) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var wallet model.Wallet
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", adj.PlayerID).
			FirstOrCreate(&wallet, model.Wallet{UserID: adj.PlayerID}).Error; err != nil {
			return err
		}

		applied := adj.Delta
		var shortfall int64
		if wallet.Balance+applied < 0 {
			shortfall = -(wallet.Balance + applied)
			applied = -wallet.Balance
		}
		wallet.Balance += applied
		if applied > 0 {
			wallet.TotalWin += applied
		} else {
			wallet.TotalConsume += -applied
		}
		wallet.UpdatedAt = time.Now()
		if err := tx.Save(&wallet).Error; err != nil {
			return err
		}

		meta := map[string]interface{}{
			"requested": adj.Delta,
		}
		if shortfall > 0 {
			meta["shortfall"] = shortfall
		}
		tableID := adj.TableID
		return tx.Create(&model.BillingLog{
			UserID:       adj.PlayerID,
			Type:         string(adj.Reason),
			Delta:        applied,
			BalanceAfter: wallet.Balance,
			TableID:      &tableID,
			RoundNo:      adj.Round,
			MetaJSON:     mustJSON(meta),
		}).Error
	})
	if err != nil {
		return fmt.Errorf("%w: %v", appErr.ErrLedgerUnavailable, err)
	}
	return nil
}

func (s *Service) AdminSetWallet(ctx context.Context, adminID, userID int64, req AdminSetWalletRequest) (*model.Wallet, error) {
	if req.Balance == nil {
		return nil, fmt.Errorf("%w: balance is required", appErr.ErrInvalidWalletPayload)
	}
	if *req.Balance < 0 {
		return nil, fmt.Errorf("%w: balance must be >= 0", appErr.ErrInvalidWalletPayload)
	}

	var wallet model.Wallet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			FirstOrCreate(&wallet, model.Wallet{UserID: userID}).Error; err != nil {
			return err
		}
		delta := *req.Balance - wallet.Balance
		wallet.Balance = *req.Balance
		wallet.UpdatedAt = time.Now()
		if err := tx.Save(&wallet).Error; err != nil {
			return err
		}
		return tx.Create(&model.BillingLog{
			UserID:       userID,
			Type:         billingTypeAdjust,
			Delta:        delta,
			BalanceAfter: wallet.Balance,
			MetaJSON:     mustJSON(map[string]interface{}{"adminId": adminID}),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (s *Service) ListBillingLogs(ctx context.Context, userID int64, limit int) ([]model.BillingLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var logs []model.BillingLog
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

func mustJSON(v interface{}) datatypes.JSON {
	data, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}
