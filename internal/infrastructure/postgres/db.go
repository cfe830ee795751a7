package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/config"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/apperror"
)

// PostgreSQL のエラーコード
const (
	codeExclusionViolation = "23P01"
	codeCheckViolation     = "23514"
)

// NewConnection はPostgreSQLへの接続を作成する
func NewConnection(cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
	}

	// 接続プール設定
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Ping はデータベース接続を確認する
func Ping(ctx context.Context, db *sqlx.DB) error {
	return db.PingContext(ctx)
}

// pqError は err から *pq.Error を取り出す
func pqError(err error) (*pq.Error, bool) {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// wrap は SQL エラーを永続化エラーとしてラップする
func wrap(op string, err error) error {
	return apperror.Persistence(op, err)
}
