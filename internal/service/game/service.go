package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"bj-service/internal/model"
	appErr "bj-service/pkg/errors"
	"bj-service/pkg/logger"
	"bj-service/pkg/utils/random"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	joinCodeLength   = 6
	snapshotStateTTL = 10 * time.Minute
	hookTimeout      = 5 * time.Second
	maxTableName     = 64
)

// Service owns the live table runtimes and their persistence.
type Service struct {
	db     *gorm.DB
	rdb    *redis.Client
	ledger Ledger
	rules  Rules
	rcfg   RuntimeConfig

	runtimes sync.Map // tableID -> *TableRuntime
	loadMu   sync.Mutex
}

type TableSummary struct {
	ID       int64  `json:"id,string"`
	Name     string `json:"name"`
	JoinCode string `json:"joinCode"`
	Status   string `json:"status"`
	Players  int    `json:"players"`
	Round    int    `json:"round"`
	Phase    Phase  `json:"phase,omitempty"`
}

// NewService wires the ledger every table settles against. rdb may be nil,
// in which case snapshots are not published.
func NewService(db *gorm.DB, rdb *redis.Client, ledger Ledger, rules Rules, rcfg RuntimeConfig) *Service {
	return &Service{
		db:     db,
		rdb:    rdb,
		ledger: ledger,
		rules:  rules.WithDefaults(),
		rcfg:   rcfg,
	}
}

func (s *Service) CreateTable(ctx context.Context, creatorID int64, name string) (*model.BlackjackTable, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Blackjack"
	}
	if len(name) > maxTableName {
		name = name[:maxTableName]
	}
	table := model.BlackjackTable{
		Name:      name,
		JoinCode:  random.Code(joinCodeLength),
		Decks:     s.rules.Shoe.Decks,
		Reserve:   s.rules.Shoe.Reserve,
		Status:    model.TableStatusOpen,
		CreatedBy: creatorID,
	}
	if err := s.db.WithContext(ctx).Create(&table).Error; err != nil {
		return nil, err
	}
	logger.Log.Info("table created",
		zap.Int64("tableID", table.ID),
		zap.Int64("userID", creatorID),
		zap.String("joinCode", table.JoinCode),
	)
	return &table, nil
}

func (s *Service) ListTables(ctx context.Context) ([]TableSummary, error) {
	var tables []model.BlackjackTable
	if err := s.db.WithContext(ctx).
		Where("status = ?", model.TableStatusOpen).
		Order("id ASC").
		Find(&tables).Error; err != nil {
		return nil, err
	}
	out := make([]TableSummary, 0, len(tables))
	for _, t := range tables {
		summary := TableSummary{
			ID:       t.ID,
			Name:     t.Name,
			JoinCode: t.JoinCode,
			Status:   t.Status,
		}
		if v, ok := s.runtimes.Load(t.ID); ok {
			state := v.(*TableRuntime).State()
			summary.Players = len(state.Players)
			summary.Round = state.Round
			summary.Phase = state.Phase
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *Service) FindByJoinCode(ctx context.Context, code string) (*model.BlackjackTable, error) {
	var table model.BlackjackTable
	err := s.db.WithContext(ctx).Where("join_code = ?", strings.ToUpper(strings.TrimSpace(code))).First(&table).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.ErrTableNotFound
		}
		return nil, err
	}
	return &table, nil
}

// GetRuntime returns the live runtime of an open table, starting it on
// first use.
func (s *Service) GetRuntime(ctx context.Context, tableID int64) (*TableRuntime, error) {
	if v, ok := s.runtimes.Load(tableID); ok {
		return v.(*TableRuntime), nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if v, ok := s.runtimes.Load(tableID); ok {
		return v.(*TableRuntime), nil
	}

	var row model.BlackjackTable
	if err := s.db.WithContext(ctx).First(&row, tableID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.ErrTableNotFound
		}
		return nil, err
	}
	if row.Status != model.TableStatusOpen {
		return nil, appErr.ErrTableClosed
	}

	rules := s.rules
	if row.Decks > 0 {
		rules.Shoe.Decks = row.Decks
	}
	if row.Reserve > 0 {
		rules.Shoe.Reserve = row.Reserve
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ row.ID))
	rt := NewTableRuntime(NewTable(row.ID, rules, s.ledger, rng), s.rcfg, Hooks{
		OnRound:     s.recordRound,
		OnIncidents: s.recordIncidents,
		OnSnapshot:  s.publishSnapshot,
	})
	s.runtimes.Store(row.ID, rt)
	logger.Log.Info("table runtime started", zap.Int64("tableID", row.ID))
	return rt, nil
}

func (s *Service) CloseTable(ctx context.Context, tableID int64) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&model.BlackjackTable{}).
		Where("id = ? AND status = ?", tableID, model.TableStatusOpen).
		Updates(map[string]interface{}{
			"status":    model.TableStatusClosed,
			"closed_at": &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&model.BlackjackTable{}).Where("id = ?", tableID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return appErr.ErrTableNotFound
		}
		return appErr.ErrTableClosed
	}

	if v, ok := s.runtimes.LoadAndDelete(tableID); ok {
		v.(*TableRuntime).Close()
	}
	if s.rdb != nil {
		s.rdb.Del(ctx, buildStateKey(tableID))
	}
	logger.Log.Info("table closed", zap.Int64("tableID", tableID))
	return nil
}

func (s *Service) ListRounds(ctx context.Context, tableID int64, limit int) ([]model.BlackjackRound, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rounds []model.BlackjackRound
	err := s.db.WithContext(ctx).
		Where("table_id = ?", tableID).
		Order("round_no DESC").
		Limit(limit).
		Find(&rounds).Error
	return rounds, err
}

// Shutdown stops every runtime. Used on process exit.
func (s *Service) Shutdown() {
	s.runtimes.Range(func(key, value interface{}) bool {
		value.(*TableRuntime).Close()
		s.runtimes.Delete(key)
		return true
	})
}

func (s *Service) recordRound(report RoundReport) {
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()
	if err := s.saveRound(ctx, report); err != nil {
		logger.Log.Error("record round failed",
			zap.Int64("tableID", report.TableID),
			zap.Int("round", report.Round),
			zap.Error(err),
		)
	}
}

func (s *Service) saveRound(ctx context.Context, report RoundReport) error {
	dealer, err := json.Marshal(report.Dealer)
	if err != nil {
		return err
	}
	settlements, err := json.Marshal(report.Settlements)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&model.BlackjackRound{
		ID:              uuid.NewString(),
		TableID:         report.TableID,
		RoundNo:         report.Round,
		DealerCardsJSON: datatypes.JSON(dealer),
		DealerScore:     report.DealerScore,
		DealerBust:      report.DealerBust,
		SettlementsJSON: datatypes.JSON(settlements),
	}).Error
}

func (s *Service) recordIncidents(tableID int64, incidents []LedgerIncident) {
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()
	if err := s.saveIncidents(ctx, tableID, incidents); err != nil {
		logger.Log.Error("record ledger incidents failed",
			zap.Int64("tableID", tableID),
			zap.Int("count", len(incidents)),
			zap.Error(err),
		)
	}
}

func (s *Service) saveIncidents(ctx context.Context, tableID int64, incidents []LedgerIncident) error {
	if len(incidents) == 0 {
		return nil
	}
	rows := make([]model.LedgerIncident, 0, len(incidents))
	for _, inc := range incidents {
		msg := ""
		if inc.Err != nil {
			msg = inc.Err.Error()
		}
		rows = append(rows, model.LedgerIncident{
			TableID: tableID,
			RoundNo: inc.Round,
			UserID:  inc.PlayerID,
			Delta:   inc.Delta,
			Reason:  string(inc.Reason),
			Error:   msg,
			Status:  model.IncidentStatusOpen,
		})
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

func (s *Service) publishSnapshot(state RuntimeState) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		logger.Log.Warn("encode snapshot failed", zap.Int64("tableID", state.TableID), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, buildStateKey(state.TableID), data, snapshotStateTTL)
	pipe.Publish(ctx, buildEventsChannel(state.TableID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Log.Warn("publish snapshot failed", zap.Int64("tableID", state.TableID), zap.Error(err))
	}
}

func buildStateKey(tableID int64) string {
	return fmt.Sprintf("bj:table:%d:state", tableID)
}

func buildEventsChannel(tableID int64) string {
	return fmt.Sprintf("bj:table:%d:events", tableID)
}
