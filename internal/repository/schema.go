package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements 建表语句，可重复执行
// 删除议题级联删除投票；删除用户级联删除其投票与发起的议题
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(150) NOT NULL,
		email VARCHAR(254) NOT NULL DEFAULT '',
		password_hash VARCHAR(128) NOT NULL,
		date_joined DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_users_username (username)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS polls (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		url VARCHAR(200) NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		posted_by_id BIGINT NULL,
		is_open BOOLEAN NOT NULL DEFAULT TRUE,
		result INT UNSIGNED NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		KEY idx_polls_posted_by (posted_by_id),
		CONSTRAINT fk_polls_posted_by FOREIGN KEY (posted_by_id) REFERENCES users (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS votes (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		poll_id BIGINT NOT NULL,
		weight SMALLINT UNSIGNED NOT NULL DEFAULT 1,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_votes_user_poll (user_id, poll_id),
		KEY idx_votes_poll (poll_id),
		CONSTRAINT fk_votes_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
		CONSTRAINT fk_votes_poll FOREIGN KEY (poll_id) REFERENCES polls (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS poll_events (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		event_type VARCHAR(32) NOT NULL,
		poll_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		weight INT NOT NULL DEFAULT 0,
		result INT NOT NULL DEFAULT 0,
		occurred_at DATETIME(6) NOT NULL,
		recorded_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		KEY idx_poll_events_poll (poll_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// CreateSchema 创建所需的全部表
func CreateSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("创建表结构失败: %w", err)
		}
	}
	return nil
}
