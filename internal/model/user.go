// Package model はドメインモデルを定義する。
package model

// User はサービスに登録されたアカウントを表す。
// SessionID と ResetToken は値が存在しない場合nilとなる。
type User struct {
	ID             int64
	Email          string
	HashedPassword string
	SessionID      *string // ログイン中のみ設定される
	ResetToken     *string // パスワードリセット要求中のみ設定される
}

// HasSession はユーザーが有効なセッションIDを保持しているかを返す。
func (u *User) HasSession() bool {
	return u.SessionID != nil && *u.SessionID != ""
}

// HasPendingReset はパスワードリセット要求が未処理かどうかを返す。
func (u *User) HasPendingReset() bool {
	return u.ResetToken != nil && *u.ResetToken != ""
}

// usersテーブルのカラム名。
// リポジトリの検索条件・更新属性はこの集合に含まれるキーのみ受け付ける。
const (
	ColumnID             = "id"
	ColumnEmail          = "email"
	ColumnHashedPassword = "hashed_password"
	ColumnSessionID      = "session_id"
	ColumnResetToken     = "reset_token"
)

// UserColumns はusersテーブルの全カラムをSELECT順に並べたもの。
var UserColumns = []string{
	ColumnID,
	ColumnEmail,
	ColumnHashedPassword,
	ColumnSessionID,
	ColumnResetToken,
}

// IsUserColumn は指定された名前がusersテーブルのカラムかどうかを返す。
func IsUserColumn(name string) bool {
	for _, c := range UserColumns {
		if c == name {
			return true
		}
	}
	return false
}
