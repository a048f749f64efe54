package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/planningpoker/config"
	"github.com/lvdashuaibi/planningpoker/internal/model"
)

const mysqlDuplicateEntry = 1062

type MySQLRepository struct {
	masterDB *sql.DB
	slaveDB  *sql.DB
	logger   *zap.Logger
}

// queryer 由 *sql.DB 和 *sql.Tx 共同实现
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewMySQLRepository(ctx context.Context, cfg config.MySQLConfig, logger *zap.Logger) (*MySQLRepository, error) {
	masterDB, err := openMySQL(ctx, cfg.Master, cfg)
	if err != nil {
		return nil, fmt.Errorf("连接主数据库失败: %w", err)
	}

	slaveDB := masterDB
	if cfg.Slave != "" && cfg.Slave != cfg.Master {
		slaveDB, err = openMySQL(ctx, cfg.Slave, cfg)
		if err != nil {
			logger.Warn("从数据库连接测试失败，将使用主数据库代替", zap.Error(err))
			slaveDB = masterDB
		}
	}

	return &MySQLRepository{
		masterDB: masterDB,
		slaveDB:  slaveDB,
		logger:   logger,
	}, nil
}

func openMySQL(ctx context.Context, dsn string, cfg config.MySQLConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate 在主库上创建表结构
func (r *MySQLRepository) Migrate(ctx context.Context) error {
	return CreateSchema(ctx, r.masterDB)
}

// CreateUser 创建用户
func (r *MySQLRepository) CreateUser(ctx context.Context, user *model.User) error {
	if user.DateJoined.IsZero() {
		user.DateJoined = time.Now()
	}

	result, err := r.masterDB.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, date_joined) VALUES (?, ?, ?, ?)",
		user.Username, user.Email, user.PasswordHash, user.DateJoined,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return model.ErrUsernameTaken
		}
		return fmt.Errorf("创建用户失败: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("获取用户ID失败: %w", err)
	}
	user.ID = id
	return nil
}

const userColumns = "id, username, email, password_hash, date_joined"

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.DateJoined); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByID 按ID查询用户
func (r *MySQLRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.slaveDB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return u, nil
}

// GetUserByUsername 按用户名查询用户
func (r *MySQLRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := r.slaveDB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return u, nil
}

// ListUsers 查询所有用户
func (r *MySQLRepository) ListUsers(ctx context.Context) ([]*model.User, error) {
	rows, err := r.slaveDB.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("查询用户列表失败: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描用户失败: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代用户失败: %w", err)
	}
	return users, nil
}

// CreatePoll 在主库事务中创建议题，并回填ID与发起人，调用方无需再从从库读取
func (r *MySQLRepository) CreatePoll(ctx context.Context, poll *model.Poll) error {
	if poll.CreatedAt.IsZero() {
		poll.CreatedAt = time.Now()
	}

	tx, err := r.masterDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO polls (url, name, description, posted_by_id, is_open, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		poll.URL, poll.Name, poll.Description, nullableID(poll.PostedByID), poll.IsOpen, poll.Result, poll.CreatedAt,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("创建议题失败: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("获取议题ID失败: %w", err)
	}

	created, err := r.getPoll(ctx, tx, id)
	if err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	poll.ID = id
	poll.PostedBy = created.PostedBy
	return nil
}

const pollSelect = `SELECT p.id, p.url, p.name, p.description, p.posted_by_id, p.is_open, p.result, p.created_at,
	pu.username, pu.email, pu.date_joined
	FROM polls p LEFT JOIN users pu ON pu.id = p.posted_by_id`

// pollScan 议题及其发起人的扫描目标
type pollScan struct {
	poll       model.Poll
	postedBy   sql.NullInt64
	username   sql.NullString
	email      sql.NullString
	dateJoined sql.NullTime
}

func (s *pollScan) dest() []any {
	return []any{
		&s.poll.ID, &s.poll.URL, &s.poll.Name, &s.poll.Description, &s.postedBy,
		&s.poll.IsOpen, &s.poll.Result, &s.poll.CreatedAt,
		&s.username, &s.email, &s.dateJoined,
	}
}

func (s *pollScan) build() *model.Poll {
	p := s.poll
	if s.postedBy.Valid {
		id := s.postedBy.Int64
		p.PostedByID = &id
		if s.username.Valid {
			p.PostedBy = &model.User{
				ID:         id,
				Username:   s.username.String,
				Email:      s.email.String,
				DateJoined: s.dateJoined.Time,
			}
		}
	}
	return &p
}

func (r *MySQLRepository) getPoll(ctx context.Context, q queryer, id int64) (*model.Poll, error) {
	var s pollScan
	err := q.QueryRowContext(ctx, pollSelect+" WHERE p.id = ?", id).Scan(s.dest()...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrPollNotFound
		}
		return nil, fmt.Errorf("查询议题失败: %w", err)
	}
	return s.build(), nil
}

// GetPoll 按ID查询议题
func (r *MySQLRepository) GetPoll(ctx context.Context, id int64) (*model.Poll, error) {
	return r.getPoll(ctx, r.slaveDB, id)
}

// ListPolls 从从库查询议题，search非空时在url、name、description中不区分大小写匹配
func (r *MySQLRepository) ListPolls(ctx context.Context, search string) ([]*model.Poll, error) {
	return r.listPolls(ctx, r.slaveDB, search)
}

// ListLatestPolls 从主库查询完整议题列表，用于回填缓存
func (r *MySQLRepository) ListLatestPolls(ctx context.Context) ([]*model.Poll, error) {
	return r.listPolls(ctx, r.masterDB, "")
}

func (r *MySQLRepository) listPolls(ctx context.Context, q queryer, search string) ([]*model.Poll, error) {
	query := pollSelect
	var args []any
	if search != "" {
		pattern := likePattern(search)
		query += " WHERE LOWER(p.url) LIKE ? OR LOWER(p.name) LIKE ? OR LOWER(p.description) LIKE ?"
		args = append(args, pattern, pattern, pattern)
	}
	query += " ORDER BY p.id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询议题列表失败: %w", err)
	}
	defer rows.Close()

	polls := make([]*model.Poll, 0)
	for rows.Next() {
		var s pollScan
		if err := rows.Scan(s.dest()...); err != nil {
			return nil, fmt.Errorf("扫描议题失败: %w", err)
		}
		polls = append(polls, s.build())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代议题失败: %w", err)
	}
	return polls, nil
}

// ListVisibleVotes 查询请求者可见的投票：自己在未关闭议题上的投票，以及所有已关闭议题上的投票
func (r *MySQLRepository) ListVisibleVotes(ctx context.Context, userID int64) ([]*model.Vote, error) {
	query := `SELECT v.id, v.user_id, v.poll_id, v.weight, v.created_at,
		u.username, u.email, u.date_joined,
		p.id, p.url, p.name, p.description, p.posted_by_id, p.is_open, p.result, p.created_at,
		pu.username, pu.email, pu.date_joined
		FROM votes v
		JOIN users u ON u.id = v.user_id
		JOIN polls p ON p.id = v.poll_id
		LEFT JOIN users pu ON pu.id = p.posted_by_id
		WHERE (v.user_id = ? AND p.is_open = TRUE) OR p.is_open = FALSE
		ORDER BY v.id`

	rows, err := r.slaveDB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("查询投票列表失败: %w", err)
	}
	defer rows.Close()

	votes := make([]*model.Vote, 0)
	for rows.Next() {
		var (
			v  model.Vote
			u  model.User
			ps pollScan
		)
		dest := append([]any{&v.ID, &v.UserID, &v.PollID, &v.Weight, &v.CreatedAt,
			&u.Username, &u.Email, &u.DateJoined}, ps.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("扫描投票失败: %w", err)
		}
		u.ID = v.UserID
		v.User = &u
		v.Poll = ps.build()
		votes = append(votes, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代投票失败: %w", err)
	}
	return votes, nil
}

// CastVote 在同一事务中删除该用户在议题上的旧投票并写入新投票，返回议题并回填投票人
func (r *MySQLRepository) CastVote(ctx context.Context, vote *model.Vote) (*model.Poll, error) {
	tx, err := r.masterDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("开始事务失败: %w", err)
	}

	var isOpen bool
	err = tx.QueryRowContext(ctx, "SELECT is_open FROM polls WHERE id = ? FOR UPDATE", vote.PollID).Scan(&isOpen)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrPollNotFound
		}
		return nil, fmt.Errorf("锁定议题失败: %w", err)
	}
	if !isOpen {
		tx.Rollback()
		return nil, model.ErrPollClosed
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM votes WHERE user_id = ? AND poll_id = ?", vote.UserID, vote.PollID); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("删除旧投票失败: %w", err)
	}

	if vote.CreatedAt.IsZero() {
		vote.CreatedAt = time.Now()
	}
	result, err := tx.ExecContext(ctx,
		"INSERT INTO votes (user_id, poll_id, weight, created_at) VALUES (?, ?, ?, ?)",
		vote.UserID, vote.PollID, vote.Weight, vote.CreatedAt,
	)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("写入投票失败: %w", err)
	}
	if vote.ID, err = result.LastInsertId(); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("获取投票ID失败: %w", err)
	}

	poll, err := r.getPoll(ctx, tx, vote.PollID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	voter, err := scanUser(tx.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", vote.UserID))
	if err != nil {
		tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("查询投票人失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("提交事务失败: %w", err)
	}
	vote.User = voter
	return poll, nil
}

// ClosePoll 在同一事务中关闭议题、按存储顺序读取投票并写回计票结果
func (r *MySQLRepository) ClosePoll(ctx context.Context, pollID int64, tally func(weights []int) int) (int, error) {
	tx, err := r.masterDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("开始事务失败: %w", err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM polls WHERE id = ? FOR UPDATE", pollID).Scan(&id)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return 0, model.ErrPollNotFound
		}
		return 0, fmt.Errorf("锁定议题失败: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE polls SET is_open = FALSE WHERE id = ?", pollID); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("关闭议题失败: %w", err)
	}

	rows, err := tx.QueryContext(ctx, "SELECT weight FROM votes WHERE poll_id = ? ORDER BY id", pollID)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("查询议题投票失败: %w", err)
	}
	var weights []int
	for rows.Next() {
		var w int
		if err := rows.Scan(&w); err != nil {
			rows.Close()
			tx.Rollback()
			return 0, fmt.Errorf("扫描投票权重失败: %w", err)
		}
		weights = append(weights, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("迭代投票权重失败: %w", err)
	}

	result := tally(weights)
	if _, err := tx.ExecContext(ctx, "UPDATE polls SET result = ? WHERE id = ?", result, pollID); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("写入计票结果失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("提交事务失败: %w", err)
	}
	return result, nil
}

// RecordPollEvent 写入议题事件审计日志
func (r *MySQLRepository) RecordPollEvent(ctx context.Context, event *model.PollEvent) error {
	_, err := r.masterDB.ExecContext(ctx,
		`INSERT INTO poll_events (event_type, poll_id, user_id, weight, result, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(event.Type), event.PollID, event.UserID, event.Weight, event.Result, event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("记录议题事件失败: %w", err)
	}
	return nil
}

// Close 关闭数据库连接
func (r *MySQLRepository) Close() error {
	var err error
	if r.masterDB != nil {
		err = r.masterDB.Close()
	}
	if r.slaveDB != nil && r.slaveDB != r.masterDB {
		if slaveErr := r.slaveDB.Close(); slaveErr != nil && err == nil {
			err = slaveErr
		}
	}
	return err
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern 构造小写的包含匹配模式并转义通配符
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}
