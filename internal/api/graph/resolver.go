package graph

import (
	"context"
	"strconv"
	"time"

	graphql "github.com/graph-gophers/graphql-go"

	"github.com/lvdashuaibi/planningpoker/internal/auth"
	"github.com/lvdashuaibi/planningpoker/internal/model"
	"github.com/lvdashuaibi/planningpoker/internal/service"
)

// Resolver GraphQL根解析器，查询和变更都挂在它上面
type Resolver struct {
	pollService *service.PollService
	userService *service.UserService
}

func NewResolver(pollService *service.PollService, userService *service.UserService) *Resolver {
	return &Resolver{pollService: pollService, userService: userService}
}

func optional(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Polls 议题列表
func (r *Resolver) Polls(ctx context.Context, args struct{ Search *string }) ([]*PollResolver, error) {
	polls, err := r.pollService.ListPolls(ctx, auth.IdentityFromContext(ctx), optional(args.Search))
	if err != nil {
		return nil, err
	}

	resolvers := make([]*PollResolver, len(polls))
	for i, p := range polls {
		resolvers[i] = &PollResolver{poll: p}
	}
	return resolvers, nil
}

// Votes 当前用户可见的投票
func (r *Resolver) Votes(ctx context.Context, args struct{ Search *string }) ([]*VoteResolver, error) {
	votes, err := r.pollService.ListVotes(ctx, auth.IdentityFromContext(ctx))
	if err != nil {
		return nil, err
	}

	resolvers := make([]*VoteResolver, len(votes))
	for i, v := range votes {
		resolvers[i] = &VoteResolver{vote: v}
	}
	return resolvers, nil
}

func (r *Resolver) Me(ctx context.Context) (*UserResolver, error) {
	user, err := r.userService.Me(ctx, auth.IdentityFromContext(ctx))
	if err != nil {
		return nil, err
	}
	return &UserResolver{user: user}, nil
}

func (r *Resolver) Users(ctx context.Context) ([]*UserResolver, error) {
	users, err := r.userService.Users(ctx, auth.IdentityFromContext(ctx))
	if err != nil {
		return nil, err
	}

	resolvers := make([]*UserResolver, len(users))
	for i, u := range users {
		resolvers[i] = &UserResolver{user: u}
	}
	return resolvers, nil
}

// CreatePoll 创建议题
func (r *Resolver) CreatePoll(ctx context.Context, args struct {
	URL         string
	Name        *string
	Description *string
}) (*CreatePollPayloadResolver, error) {
	poll, err := r.pollService.CreatePoll(ctx, auth.IdentityFromContext(ctx),
		args.URL, optional(args.Name), optional(args.Description))
	if err != nil {
		return nil, err
	}
	return &CreatePollPayloadResolver{poll: poll}, nil
}

// ClosePoll 关闭议题并返回计票结果
func (r *Resolver) ClosePoll(ctx context.Context, args struct{ PollID int32 }) (*ClosePollPayloadResolver, error) {
	result, err := r.pollService.ClosePoll(ctx, auth.IdentityFromContext(ctx), int64(args.PollID))
	if err != nil {
		return nil, err
	}
	return &ClosePollPayloadResolver{result: result}, nil
}

// CreateVote 投票
func (r *Resolver) CreateVote(ctx context.Context, args struct {
	PollID int32
	Weight *int32
}) (*CreateVotePayloadResolver, error) {
	weight := model.DefaultWeight
	if args.Weight != nil {
		weight = int(*args.Weight)
	}

	result, err := r.pollService.CreateVote(ctx, auth.IdentityFromContext(ctx), int64(args.PollID), weight)
	if err != nil {
		return nil, err
	}
	return &CreateVotePayloadResolver{result: result}, nil
}

// CreateUser 注册用户
func (r *Resolver) CreateUser(ctx context.Context, args struct {
	Username string
	Password string
	Email    *string
}) (*CreateUserPayloadResolver, error) {
	user, err := r.userService.CreateUser(ctx, args.Username, args.Password, optional(args.Email))
	if err != nil {
		return nil, err
	}
	return &CreateUserPayloadResolver{user: user}, nil
}

func (r *Resolver) TokenAuth(ctx context.Context, args struct {
	Username string
	Password string
}) (*TokenPayloadResolver, error) {
	token, err := r.userService.TokenAuth(ctx, args.Username, args.Password)
	if err != nil {
		return nil, err
	}
	return &TokenPayloadResolver{token: token}, nil
}

func (r *Resolver) VerifyToken(ctx context.Context, args struct{ Token string }) (*VerifyPayloadResolver, error) {
	claims, err := r.userService.VerifyToken(ctx, args.Token)
	if err != nil {
		return nil, err
	}
	return &VerifyPayloadResolver{claims: claims}, nil
}

func (r *Resolver) RefreshToken(ctx context.Context, args struct{ Token string }) (*TokenPayloadResolver, error) {
	token, err := r.userService.RefreshToken(ctx, args.Token)
	if err != nil {
		return nil, err
	}
	return &TokenPayloadResolver{token: token}, nil
}

func formatID(id int64) graphql.ID {
	return graphql.ID(strconv.FormatInt(id, 10))
}

// UserResolver 用户解析器
type UserResolver struct {
	user *model.User
}

func (r *UserResolver) ID() graphql.ID {
	return formatID(r.user.ID)
}

func (r *UserResolver) Username() string {
	return r.user.Username
}

func (r *UserResolver) Email() string {
	return r.user.Email
}

func (r *UserResolver) DateJoined() string {
	return r.user.DateJoined.Format(time.RFC3339)
}

// PollResolver 议题解析器
type PollResolver struct {
	poll *model.Poll
}

func (r *PollResolver) ID() graphql.ID {
	return formatID(r.poll.ID)
}

func (r *PollResolver) URL() string {
	return r.poll.URL
}

func (r *PollResolver) Name() string {
	return r.poll.Name
}

func (r *PollResolver) Description() string {
	return r.poll.Description
}

func (r *PollResolver) PostedBy() *UserResolver {
	if r.poll.PostedBy == nil {
		return nil
	}
	return &UserResolver{user: r.poll.PostedBy}
}

func (r *PollResolver) IsOpen() bool {
	return r.poll.IsOpen
}

func (r *PollResolver) Result() int32 {
	return int32(r.poll.Result)
}

func (r *PollResolver) CreatedAt() string {
	return r.poll.CreatedAt.Format(time.RFC3339)
}

// VoteResolver 投票解析器
type VoteResolver struct {
	vote *model.Vote
}

func (r *VoteResolver) ID() graphql.ID {
	return formatID(r.vote.ID)
}

func (r *VoteResolver) User() *UserResolver {
	if r.vote.User == nil {
		return &UserResolver{user: &model.User{ID: r.vote.UserID}}
	}
	return &UserResolver{user: r.vote.User}
}

func (r *VoteResolver) Poll() *PollResolver {
	if r.vote.Poll == nil {
		return &PollResolver{poll: &model.Poll{ID: r.vote.PollID}}
	}
	return &PollResolver{poll: r.vote.Poll}
}

func (r *VoteResolver) Weight() int32 {
	return int32(r.vote.Weight)
}

func (r *VoteResolver) CreatedAt() string {
	return r.vote.CreatedAt.Format(time.RFC3339)
}

// CreatePollPayloadResolver 创建议题的返回字段
type CreatePollPayloadResolver struct {
	poll *model.Poll
}

func (r *CreatePollPayloadResolver) ID() int32 {
	return int32(r.poll.ID)
}

func (r *CreatePollPayloadResolver) URL() string {
	return r.poll.URL
}

func (r *CreatePollPayloadResolver) Name() string {
	return r.poll.Name
}

func (r *CreatePollPayloadResolver) Description() string {
	return r.poll.Description
}

func (r *CreatePollPayloadResolver) PostedBy() *UserResolver {
	return (&PollResolver{poll: r.poll}).PostedBy()
}

func (r *CreatePollPayloadResolver) IsOpen() bool {
	return r.poll.IsOpen
}

type ClosePollPayloadResolver struct {
	result *model.CloseResult
}

func (r *ClosePollPayloadResolver) IsOpen() bool {
	return r.result.IsOpen
}

func (r *ClosePollPayloadResolver) Result() int32 {
	return int32(r.result.Result)
}

type CreateVotePayloadResolver struct {
	result *model.CastResult
}

func (r *CreateVotePayloadResolver) User() *UserResolver {
	return &UserResolver{user: r.result.User}
}

func (r *CreateVotePayloadResolver) Poll() *PollResolver {
	return &PollResolver{poll: r.result.Poll}
}

type CreateUserPayloadResolver struct {
	user *model.User
}

func (r *CreateUserPayloadResolver) User() *UserResolver {
	return &UserResolver{user: r.user}
}

// JWTPayloadResolver 令牌载荷，时间均为Unix秒
type JWTPayloadResolver struct {
	claims *auth.Claims
}

func (r *JWTPayloadResolver) Username() string {
	return r.claims.Username
}

func (r *JWTPayloadResolver) Exp() float64 {
	if r.claims.ExpiresAt == nil {
		return 0
	}
	return float64(r.claims.ExpiresAt.Unix())
}

func (r *JWTPayloadResolver) OrigIat() float64 {
	return float64(r.claims.OrigIat)
}

type TokenPayloadResolver struct {
	token *auth.Token
}

func (r *TokenPayloadResolver) Token() string {
	return r.token.Token
}

func (r *TokenPayloadResolver) Payload() *JWTPayloadResolver {
	return &JWTPayloadResolver{claims: r.token.Payload}
}

func (r *TokenPayloadResolver) RefreshExpiresIn() float64 {
	return float64(r.token.RefreshExpiresIn)
}

type VerifyPayloadResolver struct {
	claims *auth.Claims
}

func (r *VerifyPayloadResolver) Payload() *JWTPayloadResolver {
	return &JWTPayloadResolver{claims: r.claims}
}
