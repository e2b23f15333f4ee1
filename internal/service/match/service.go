package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"bj-service/internal/model"
	"bj-service/internal/service/game"
	appErr "bj-service/pkg/errors"
	"bj-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var errQueueMemberNotFound = errors.New("queue member not found")

const queueKey = "match:queue"

type Config struct {
	QueueLockTTL     time.Duration
	QueueMemberTTL   time.Duration
	QueueTimeout     time.Duration
	MatchedNotifyTTL time.Duration
	MatcherInterval  time.Duration
	BatchSize        int
	SeatsPerTable    int
}

func defaultConfig() Config {
	return Config{
		QueueLockTTL:     10 * time.Second,
		QueueMemberTTL:   3 * time.Minute,
		QueueTimeout:     3 * time.Minute,
		MatchedNotifyTTL: 5 * time.Minute,
		MatcherInterval:  500 * time.Millisecond,
		BatchSize:        20,
		SeatsPerTable:    7,
	}
}

// TableDirectory is the part of the game service the matcher needs.
type TableDirectory interface {
	ListTables(ctx context.Context) ([]game.TableSummary, error)
	CreateTable(ctx context.Context, creatorID int64, name string) (*model.BlackjackTable, error)
}

// Service seats players who ask for any table. Queued players are assigned
// to the fullest open table that still has room; a new table is opened when
// none has.
type Service struct {
	rdb    *redis.Client
	tables TableDirectory
	cfg    Config

	startOnce sync.Once
}

func NewService(rdb *redis.Client, tables TableDirectory, seatsPerTable int) *Service {
	cfg := defaultConfig()
	if seatsPerTable > 0 {
		cfg.SeatsPerTable = seatsPerTable
	}
	return &Service{
		rdb:    rdb,
		tables: tables,
		cfg:    cfg,
	}
}

func (s *Service) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.runMatcher(ctx)
	})
}

func (s *Service) JoinQueue(ctx context.Context, userID int64, nickname string) error {
	memberID := strconv.FormatInt(userID, 10)
	if _, err := s.rdb.ZScore(ctx, queueKey, memberID).Result(); err == nil {
		return appErr.ErrAlreadyInQueue
	} else if err != redis.Nil {
		return err
	}

	lockKey := buildQueueLockKey(userID)
	gotLock, err := s.rdb.SetNX(ctx, lockKey, 1, s.cfg.QueueLockTTL).Result()
	if err != nil {
		return err
	}
	if !gotLock {
		return appErr.ErrQueueProcessing
	}
	defer s.rdb.Del(ctx, lockKey)

	s.rdb.Del(ctx, buildMatchNotifyKey(userID))
	member := queueMember{
		UserID:   userID,
		Nickname: nickname,
		JoinedAt: time.Now(),
	}
	if err := s.saveQueueMember(ctx, member); err != nil {
		return err
	}

	score := float64(time.Now().UnixMilli())
	if err := s.rdb.ZAdd(ctx, queueKey, redis.Z{Score: score, Member: memberID}).Err(); err != nil {
		s.removeQueueMember(ctx, userID)
		return err
	}

	logger.Log.Info("user joined seat queue", zap.Int64("userID", userID))
	return nil
}

func (s *Service) CancelQueue(ctx context.Context, userID int64, reason string) error {
	memberID := strconv.FormatInt(userID, 10)
	if _, err := s.rdb.ZRem(ctx, queueKey, memberID).Result(); err != nil && err != redis.Nil {
		return err
	}
	s.removeQueueMember(ctx, userID)
	s.rdb.Del(ctx, buildMatchNotifyKey(userID))

	if reason == "" {
		reason = "user"
	}
	logger.Log.Info("seat queue cancelled",
		zap.Int64("userID", userID),
		zap.String("reason", reason),
	)
	return nil
}

func (s *Service) GetStatus(ctx context.Context, userID int64) (*StatusResult, error) {
	payloadStr, err := s.rdb.Get(ctx, buildMatchNotifyKey(userID)).Result()
	if err == nil {
		var payload matchNotifyPayload
		if jsonErr := json.Unmarshal([]byte(payloadStr), &payload); jsonErr == nil {
			return &StatusResult{
				Status:  QueueStatusMatched,
				TableID: &payload.TableID,
			}, nil
		}
	} else if err != redis.Nil {
		return nil, err
	}

	memberID := strconv.FormatInt(userID, 10)
	if _, err := s.rdb.ZScore(ctx, queueKey, memberID).Result(); err == nil {
		var joinedAt *time.Time
		if member, err := s.loadQueueMember(ctx, userID); err == nil {
			joined := member.JoinedAt
			joinedAt = &joined
		}
		return &StatusResult{Status: QueueStatusQueued, JoinedAt: joinedAt}, nil
	} else if err != redis.Nil {
		return nil, err
	}

	return &StatusResult{Status: QueueStatusIdle}, nil
}

func (s *Service) runMatcher(ctx context.Context) {
	logger.Log.Info("seat matcher started", zap.Int("seatsPerTable", s.cfg.SeatsPerTable))

	ticker := time.NewTicker(s.cfg.MatcherInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("seat matcher stopped")
			return
		case <-ticker.C:
			if err := s.tryAssign(ctx); err != nil {
				logger.Log.Warn("seat matcher error", zap.Error(err))
			}
		}
	}
}

func (s *Service) tryAssign(ctx context.Context) error {
	if err := s.cleanupExpiredQueue(ctx); err != nil {
		logger.Log.Warn("seat queue cleanup error", zap.Error(err))
	}

	members, err := s.rdb.ZRange(ctx, queueKey, 0, int64(s.cfg.BatchSize-1)).Result()
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}

	tables, err := s.tables.ListTables(ctx)
	if err != nil {
		return err
	}
	occupancy := make(map[int64]int, len(tables))
	for _, t := range tables {
		occupancy[t.ID] = t.Players
	}

	for _, member := range members {
		userID, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		tableID, ok := pickTable(occupancy, s.cfg.SeatsPerTable)
		if !ok {
			created, err := s.tables.CreateTable(ctx, 0, "Quick Table")
			if err != nil {
				return err
			}
			tableID = created.ID
		}
		if err := s.assign(ctx, userID, tableID); err != nil {
			return err
		}
		occupancy[tableID]++
	}
	return nil
}

// pickTable returns the fullest table with a free seat.
func pickTable(occupancy map[int64]int, seats int) (int64, bool) {
	var (
		best      int64
		bestCount = -1
	)
	for id, count := range occupancy {
		if count >= seats {
			continue
		}
		if count > bestCount || (count == bestCount && id < best) {
			best, bestCount = id, count
		}
	}
	return best, bestCount >= 0
}

func (s *Service) assign(ctx context.Context, userID, tableID int64) error {
	memberID := strconv.FormatInt(userID, 10)
	removed, err := s.rdb.ZRem(ctx, queueKey, memberID).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return nil
	}
	s.removeQueueMember(ctx, userID)

	data, _ := json.Marshal(matchNotifyPayload{TableID: tableID})
	if err := s.rdb.Set(ctx, buildMatchNotifyKey(userID), data, s.cfg.MatchedNotifyTTL).Err(); err != nil {
		return err
	}
	logger.Log.Info("player seated",
		zap.Int64("userID", userID),
		zap.Int64("tableID", tableID),
	)
	return nil
}

func (s *Service) saveQueueMember(ctx context.Context, member queueMember) error {
	data, err := json.Marshal(member)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, buildQueueMemberKey(member.UserID), data, s.cfg.QueueMemberTTL).Err()
}

func (s *Service) loadQueueMember(ctx context.Context, userID int64) (queueMember, error) {
	var member queueMember
	data, err := s.rdb.Get(ctx, buildQueueMemberKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return member, errQueueMemberNotFound
		}
		return member, err
	}
	if err := json.Unmarshal([]byte(data), &member); err != nil {
		return member, err
	}
	return member, nil
}

func (s *Service) removeQueueMember(ctx context.Context, userID int64) {
	s.rdb.Del(ctx, buildQueueMemberKey(userID))
}

func (s *Service) cleanupExpiredQueue(ctx context.Context) error {
	if s.cfg.QueueTimeout <= 0 {
		return nil
	}
	deadline := time.Now().Add(-s.cfg.QueueTimeout).UnixMilli()
	members, err := s.rdb.ZRangeByScore(ctx, queueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(deadline, 10),
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return err
	}

	for _, member := range members {
		userID, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		if err := s.CancelQueue(ctx, userID, "timeout"); err != nil {
			logger.Log.Warn("seat queue timeout cancel failed",
				zap.Int64("userID", userID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func buildQueueMemberKey(userID int64) string {
	return fmt.Sprintf("match:member:%d", userID)
}

func buildQueueLockKey(userID int64) string {
	return fmt.Sprintf("match:lock:%d", userID)
}

func buildMatchNotifyKey(userID int64) string {
	return fmt.Sprintf("match:seated:%d", userID)
}
