// Package apperror は予約エンジン全体で共有するエラー種別を定義する。
// 各ドメインのエラーはいずれかの種別を %w でラップし、呼び出し側は errors.Is で判定する。
package apperror

import (
	"errors"
	"fmt"
)

// Kind は呼び出し側に返す安定したエラー種別
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConflict      Kind = "conflict"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "authorization"
	KindPolicy        Kind = "policy"
	KindPersistence   Kind = "persistence"
)

// 種別ごとの基底エラー
var (
	ErrValidation    = errors.New("入力が不正です")
	ErrConflict      = errors.New("競合が発生しました")
	ErrNotFound      = errors.New("対象が見つかりません")
	ErrAuthorization = errors.New("操作する権限がありません")
	ErrPolicy        = errors.New("ポリシーにより操作できません")
	ErrPersistence   = errors.New("永続化に失敗しました")
)

var kinds = []struct {
	base error
	kind Kind
}{
	{ErrValidation, KindValidation},
	{ErrConflict, KindConflict},
	{ErrNotFound, KindNotFound},
	{ErrAuthorization, KindAuthorization},
	{ErrPolicy, KindPolicy},
	{ErrPersistence, KindPersistence},
}

// New は指定した種別をラップしたエラーを作成する
func New(base error, message string) error {
	return fmt.Errorf("%w: %s", base, message)
}

// Persistence はストレージ層のエラーを ErrPersistence として包む
// 元のエラーも errors.Is / errors.As で辿れる
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// KindOf はエラーの種別を返す。種別を持たないエラーは persistence として扱う
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.base) {
			return k.kind
		}
	}
	return KindPersistence
}
