// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/userauth/internal/model"
)

// ストア境界のエラー。呼び出し側はerrors.Isで判定する。
var (
	// ErrNotFound は更新対象のユーザーが存在しないことを示す。
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail はメールアドレスが登録済みであることを示す。
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidCriteria は検索条件が空、または未知のカラムを含むことを示す。
	ErrInvalidCriteria = errors.New("invalid search criteria")
	// ErrInvalidAttribute は更新対象に未知または更新不可のカラムが含まれることを示す。
	ErrInvalidAttribute = errors.New("invalid user attribute")
)

// Criteria はカラム名と値の等価条件の組。すべての条件をANDで結合する。
// 値がnilの場合はIS NULLとして扱う。
type Criteria map[string]any

// Attributes は更新するカラム名と値の組。値がnilの場合はNULLを保存する。
type Attributes map[string]any

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// AddUser はユーザーを作成し、採番されたIDを含むユーザーを返す。
	// メールアドレスが重複する場合はErrDuplicateEmailを返す。
	AddUser(ctx context.Context, email, hashedPassword string) (*model.User, error)

	// FindUserBy は条件に一致する最初のユーザーを返す。見つからない場合はnilを返す。
	FindUserBy(ctx context.Context, criteria Criteria) (*model.User, error)

	// UpdateUser は指定IDのユーザーの属性を更新する。
	// 属性がひとつでも不正な場合は何も書き込まずにErrInvalidAttributeを返す。
	UpdateUser(ctx context.Context, id int64, attrs Attributes) error
}
