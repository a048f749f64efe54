package model

import (
	"time"
)

// AllowedWeights 合法的投票权重（类斐波那契故事点）
var AllowedWeights = []int{1, 2, 3, 5, 8, 13, 21}

// DefaultWeight 投票默认权重
const DefaultWeight = 1

// IsValidWeight 判断权重是否在允许集合内
func IsValidWeight(weight int) bool {
	for _, w := range AllowedWeights {
		if w == weight {
			return true
		}
	}
	return false
}

// Identity 当前请求者身份，零值表示匿名
type Identity struct {
	UserID   int64
	Username string
}

// IsAnonymous 是否为匿名请求者
func (i Identity) IsAnonymous() bool {
	return i.UserID == 0
}

// User 用户模型
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DateJoined   time.Time `json:"dateJoined"`
}

// Identity 返回用户对应的请求者身份
func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, Username: u.Username}
}

// Poll 投票议题模型
type Poll struct {
	ID          int64     `json:"id"`
	URL         string    `json:"url"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PostedByID  *int64    `json:"postedById,omitempty"`
	PostedBy    *User     `json:"postedBy,omitempty"`
	IsOpen      bool      `json:"isOpen"`
	Result      int       `json:"result"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Vote 投票模型，User和Poll由查询时关联加载
type Vote struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	PollID    int64     `json:"pollId"`
	Weight    int       `json:"weight"`
	User      *User     `json:"user,omitempty"`
	Poll      *Poll     `json:"poll,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// CloseResult 关闭议题的结果
type CloseResult struct {
	IsOpen bool `json:"isOpen"`
	Result int  `json:"result"`
}

// CastResult 投票结果，返回投票人和（未修改的）议题
type CastResult struct {
	User *User `json:"user"`
	Poll *Poll `json:"poll"`
}

// PollEventType 议题事件类型
type PollEventType string

const (
	EventPollCreated PollEventType = "poll_created"
	EventVoteCast    PollEventType = "vote_cast"
	EventPollClosed  PollEventType = "poll_closed"
)

// PollEvent Kafka议题事件
type PollEvent struct {
	Type       PollEventType `json:"type"`
	PollID     int64         `json:"pollId"`
	UserID     int64         `json:"userId"`
	Weight     int           `json:"weight,omitempty"`
	Result     int           `json:"result,omitempty"`
	OccurredAt time.Time     `json:"occurredAt"`
}
