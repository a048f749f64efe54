package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lvdashuaibi/planningpoker/internal/model"
)

// MemoryRepository 进程内存储，单实例开发和测试使用
// 议题和投票按插入顺序保存，与MySQL按自增ID排序的结果一致
type MemoryRepository struct {
	mu sync.RWMutex

	users  []*model.User
	polls  []*model.Poll
	votes  []*model.Vote
	events []*model.PollEvent

	nextUserID int64
	nextPollID int64
	nextVoteID int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) CreateUser(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == user.Username {
			return model.ErrUsernameTaken
		}
	}

	r.nextUserID++
	user.ID = r.nextUserID
	if user.DateJoined.IsZero() {
		user.DateJoined = time.Now()
	}
	stored := *user
	r.users = append(r.users, &stored)
	return nil
}

func (r *MemoryRepository) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if u := r.findUser(id); u != nil {
		copied := *u
		return &copied, nil
	}
	return nil, model.ErrUserNotFound
}

func (r *MemoryRepository) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, model.ErrUserNotFound
}

func (r *MemoryRepository) ListUsers(_ context.Context) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*model.User, 0, len(r.users))
	for _, u := range r.users {
		copied := *u
		users = append(users, &copied)
	}
	return users, nil
}

// CreatePoll 创建议题并回填ID与发起人
func (r *MemoryRepository) CreatePoll(_ context.Context, poll *model.Poll) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextPollID++
	poll.ID = r.nextPollID
	if poll.CreatedAt.IsZero() {
		poll.CreatedAt = time.Now()
	}
	stored := *poll
	stored.PostedBy = nil
	r.polls = append(r.polls, &stored)
	poll.PostedBy = r.pollView(&stored).PostedBy
	return nil
}

func (r *MemoryRepository) GetPoll(_ context.Context, id int64) (*model.Poll, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p := r.findPoll(id); p != nil {
		return r.pollView(p), nil
	}
	return nil, model.ErrPollNotFound
}

func (r *MemoryRepository) ListPolls(_ context.Context, search string) ([]*model.Poll, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	term := strings.ToLower(search)
	polls := make([]*model.Poll, 0, len(r.polls))
	for _, p := range r.polls {
		if term != "" && !pollMatches(p, term) {
			continue
		}
		polls = append(polls, r.pollView(p))
	}
	return polls, nil
}

func (r *MemoryRepository) ListLatestPolls(ctx context.Context) ([]*model.Poll, error) {
	return r.ListPolls(ctx, "")
}

func pollMatches(p *model.Poll, term string) bool {
	return strings.Contains(strings.ToLower(p.URL), term) ||
		strings.Contains(strings.ToLower(p.Name), term) ||
		strings.Contains(strings.ToLower(p.Description), term)
}

func (r *MemoryRepository) ListVisibleVotes(_ context.Context, userID int64) ([]*model.Vote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	votes := make([]*model.Vote, 0)
	for _, v := range r.votes {
		p := r.findPoll(v.PollID)
		if p == nil {
			continue
		}
		if (v.UserID == userID && p.IsOpen) || !p.IsOpen {
			copied := *v
			if u := r.findUser(v.UserID); u != nil {
				user := *u
				copied.User = &user
			}
			copied.Poll = r.pollView(p)
			votes = append(votes, &copied)
		}
	}
	return votes, nil
}

// CastVote 替换该用户在议题上的投票，返回议题并回填投票人
func (r *MemoryRepository) CastVote(_ context.Context, vote *model.Vote) (*model.Poll, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findPoll(vote.PollID)
	if p == nil {
		return nil, model.ErrPollNotFound
	}
	if !p.IsOpen {
		return nil, model.ErrPollClosed
	}
	u := r.findUser(vote.UserID)
	if u == nil {
		return nil, model.ErrUserNotFound
	}

	kept := r.votes[:0]
	for _, v := range r.votes {
		if v.UserID == vote.UserID && v.PollID == vote.PollID {
			continue
		}
		kept = append(kept, v)
	}
	r.votes = kept

	r.nextVoteID++
	vote.ID = r.nextVoteID
	if vote.CreatedAt.IsZero() {
		vote.CreatedAt = time.Now()
	}
	stored := *vote
	stored.User, stored.Poll = nil, nil
	r.votes = append(r.votes, &stored)

	voter := *u
	vote.User = &voter
	return r.pollView(p), nil
}

func (r *MemoryRepository) ClosePoll(_ context.Context, pollID int64, tally func(weights []int) int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findPoll(pollID)
	if p == nil {
		return 0, model.ErrPollNotFound
	}

	p.IsOpen = false
	var weights []int
	for _, v := range r.votes {
		if v.PollID == pollID {
			weights = append(weights, v.Weight)
		}
	}
	p.Result = tally(weights)
	return p.Result, nil
}

func (r *MemoryRepository) RecordPollEvent(_ context.Context, event *model.PollEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *event
	r.events = append(r.events, &copied)
	return nil
}

// PollEvents 返回已记录的议题事件
func (r *MemoryRepository) PollEvents() []model.PollEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]model.PollEvent, 0, len(r.events))
	for _, e := range r.events {
		events = append(events, *e)
	}
	return events
}

func (r *MemoryRepository) Close() error {
	return nil
}

func (r *MemoryRepository) findUser(id int64) *model.User {
	for _, u := range r.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (r *MemoryRepository) findPoll(id int64) *model.Poll {
	for _, p := range r.polls {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// pollView 复制议题并关联发起人，调用方需持有锁
func (r *MemoryRepository) pollView(p *model.Poll) *model.Poll {
	copied := *p
	if p.PostedByID != nil {
		id := *p.PostedByID
		copied.PostedByID = &id
		if u := r.findUser(id); u != nil {
			user := *u
			copied.PostedBy = &user
		}
	}
	return &copied
}
