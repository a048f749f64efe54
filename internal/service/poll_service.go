package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lvdashuaibi/planningpoker/internal/lock"
	"github.com/lvdashuaibi/planningpoker/internal/logger"
	"github.com/lvdashuaibi/planningpoker/internal/model"
)

// PollStore 议题与投票的持久化，MySQL和内存仓库都实现了它
// 写操作在主库上回填关联数据，提交后不再回读从库
type PollStore interface {
	// CreatePoll 回填ID与PostedBy
	CreatePoll(ctx context.Context, poll *model.Poll) error
	ListPolls(ctx context.Context, search string) ([]*model.Poll, error)
	// ListLatestPolls 读主库，用于回填缓存
	ListLatestPolls(ctx context.Context) ([]*model.Poll, error)
	ListVisibleVotes(ctx context.Context, userID int64) ([]*model.Vote, error)
	// CastVote 回填vote.User
	CastVote(ctx context.Context, vote *model.Vote) (*model.Poll, error)
	ClosePoll(ctx context.Context, pollID int64, tally func(weights []int) int) (int, error)
	RecordPollEvent(ctx context.Context, event *model.PollEvent) error
}

// PollCache 未过滤议题列表的缓存
// 每次失效递增版本，SetPolls只在版本未变化时写入
type PollCache interface {
	GetPolls(ctx context.Context) (polls []*model.Poll, version int64, found bool, err error)
	SetPolls(ctx context.Context, polls []*model.Poll, version int64) error
	InvalidatePolls(ctx context.Context) error
}

// EventPublisher 议题事件发布
type EventPublisher interface {
	SendPollEvent(ctx context.Context, event *model.PollEvent) error
}

// PollLockName 议题级分布式锁的名称
func PollLockName(pollID int64) string {
	return fmt.Sprintf("planningpoker:poll:%d", pollID)
}

type PollService struct {
	store     PollStore
	cache     PollCache      // 可为nil
	locker    lock.Lock      // 可为nil
	publisher EventPublisher // 可为nil，此时事件同步处理
	lockOpts  lock.Options
	logger    *zap.Logger
}

func NewPollService(
	store PollStore,
	cache PollCache,
	locker lock.Lock,
	publisher EventPublisher,
	lockOpts lock.Options,
	logger *zap.Logger,
) *PollService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PollService{
		store:     store,
		cache:     cache,
		locker:    locker,
		publisher: publisher,
		lockOpts:  lockOpts,
		logger:    logger,
	}
}

func (s *PollService) log(ctx context.Context) *zap.Logger {
	return logger.FromContext(ctx, s.logger)
}

// ListPolls 列出议题，search非空时按url、name、description不区分大小写过滤
func (s *PollService) ListPolls(ctx context.Context, requester model.Identity, search string) ([]*model.Poll, error) {
	if requester.IsAnonymous() {
		return nil, model.ErrUnauthenticated
	}

	if search != "" {
		polls, err := s.store.ListPolls(ctx, search)
		if err != nil {
			return nil, storeError("查询议题失败", err)
		}
		return polls, nil
	}

	if s.cache == nil {
		polls, err := s.store.ListPolls(ctx, "")
		if err != nil {
			return nil, storeError("查询议题失败", err)
		}
		return polls, nil
	}

	// 先从缓存获取
	polls, version, found, cacheErr := s.cache.GetPolls(ctx)
	if cacheErr != nil {
		s.log(ctx).Warn("读取议题缓存失败", zap.Error(cacheErr))
	} else if found {
		return polls, nil
	}

	// 缓存未命中，从主库获取，避免把从库的滞后数据写入缓存
	polls, err := s.store.ListLatestPolls(ctx)
	if err != nil {
		return nil, storeError("查询议题失败", err)
	}

	// 读取缓存失败时拿不到版本，不回填
	if cacheErr == nil {
		if err := s.cache.SetPolls(ctx, polls, version); err != nil {
			s.log(ctx).Warn("写入议题缓存失败", zap.Error(err))
		}
	}
	return polls, nil
}

// ListVotes 列出请求者可见的投票：自己在未关闭议题上的投票，以及所有已关闭议题的投票
func (s *PollService) ListVotes(ctx context.Context, requester model.Identity) ([]*model.Vote, error) {
	if requester.IsAnonymous() {
		return nil, model.ErrUnauthenticated
	}

	votes, err := s.store.ListVisibleVotes(ctx, requester.UserID)
	if err != nil {
		return nil, storeError("查询投票失败", err)
	}
	return votes, nil
}

// CreatePoll 创建议题
func (s *PollService) CreatePoll(ctx context.Context, requester model.Identity, url, name, description string) (*model.Poll, error) {
	if requester.IsAnonymous() {
		return nil, model.ErrUnauthenticated
	}

	postedBy := requester.UserID
	poll := &model.Poll{
		URL:         url,
		Name:        name,
		Description: description,
		PostedByID:  &postedBy,
		IsOpen:      true,
		CreatedAt:   time.Now(),
	}
	if err := s.store.CreatePoll(ctx, poll); err != nil {
		return nil, storeError("创建议题失败", err)
	}

	s.invalidatePolls(ctx)
	s.publish(ctx, &model.PollEvent{
		Type:   model.EventPollCreated,
		PollID: poll.ID,
		UserID: requester.UserID,
	})

	s.log(ctx).Info("议题已创建", zap.Int64("poll_id", poll.ID))
	return poll, nil
}

// ClosePoll 关闭议题并计票，已关闭的议题会按当前投票重新计票
func (s *PollService) ClosePoll(ctx context.Context, requester model.Identity, pollID int64) (*model.CloseResult, error) {
	if requester.IsAnonymous() {
		return nil, model.ErrUnauthenticated
	}

	var result int
	err := s.withPollLock(ctx, pollID, func() error {
		var err error
		result, err = s.store.ClosePoll(ctx, pollID, Tally)
		return err
	})
	if err != nil {
		return nil, storeError("关闭议题失败", err)
	}

	s.invalidatePolls(ctx)
	s.publish(ctx, &model.PollEvent{
		Type:   model.EventPollClosed,
		PollID: pollID,
		UserID: requester.UserID,
		Result: result,
	})

	s.log(ctx).Info("议题已关闭", zap.Int64("poll_id", pollID), zap.Int("result", result))
	return &model.CloseResult{IsOpen: false, Result: result}, nil
}

// CreateVote 投票，同一用户在同一议题上的旧投票会被替换
func (s *PollService) CreateVote(ctx context.Context, requester model.Identity, pollID int64, weight int) (*model.CastResult, error) {
	if requester.IsAnonymous() {
		return nil, model.ErrUnauthenticated
	}
	if !model.IsValidWeight(weight) {
		return nil, model.ErrInvalidWeight
	}

	vote := &model.Vote{
		UserID:    requester.UserID,
		PollID:    pollID,
		Weight:    weight,
		CreatedAt: time.Now(),
	}
	var poll *model.Poll
	err := s.withPollLock(ctx, pollID, func() error {
		var err error
		poll, err = s.store.CastVote(ctx, vote)
		return err
	})
	if err != nil {
		return nil, storeError("投票失败", err)
	}

	s.publish(ctx, &model.PollEvent{
		Type:   model.EventVoteCast,
		PollID: pollID,
		UserID: requester.UserID,
		Weight: weight,
	})

	return &model.CastResult{User: vote.User, Poll: poll}, nil
}

// ProcessPollEvent 处理议题事件：写入审计表并使议题列表缓存失效
func (s *PollService) ProcessPollEvent(ctx context.Context, event *model.PollEvent) error {
	if err := s.store.RecordPollEvent(ctx, event); err != nil {
		return fmt.Errorf("记录议题事件失败: %w", err)
	}

	if event.Type != model.EventVoteCast {
		s.invalidatePolls(ctx)
	}
	return nil
}

// withPollLock 未配置锁时直接执行fn，否则持有议题锁执行
func (s *PollService) withPollLock(ctx context.Context, pollID int64, fn func() error) error {
	if s.locker == nil {
		return fn()
	}

	err := lock.WithLock(ctx, s.locker, PollLockName(pollID), s.lockOpts, fn)
	if errors.Is(err, lock.ErrNotAcquired) {
		return model.Internal("议题繁忙，请稍后重试", err)
	}
	return err
}

func (s *PollService) invalidatePolls(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePolls(ctx); err != nil {
		s.log(ctx).Warn("清除议题缓存失败", zap.Error(err))
	}
}

// publish 发送事件到Kafka，发送失败或未启用Kafka时同步处理
func (s *PollService) publish(ctx context.Context, event *model.PollEvent) {
	event.OccurredAt = time.Now()

	if s.publisher != nil {
		err := s.publisher.SendPollEvent(ctx, event)
		if err == nil {
			return
		}
		s.log(ctx).Warn("发送议题事件到Kafka失败，改为同步处理",
			zap.String("type", string(event.Type)), zap.Error(err))
	}

	if err := s.ProcessPollEvent(ctx, event); err != nil {
		s.log(ctx).Error("同步处理议题事件失败",
			zap.String("type", string(event.Type)), zap.Int64("poll_id", event.PollID), zap.Error(err))
	}
}

// storeError 业务错误原样返回，其余包装为内部错误
func storeError(message string, err error) error {
	var e *model.Error
	if errors.As(err, &e) {
		return e
	}
	return model.Internal(message, err)
}
