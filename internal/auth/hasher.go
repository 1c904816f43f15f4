package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes はbcryptがハッシュ化できるパスワードの最大バイト数。
const MaxPasswordBytes = 72

// Hasher はパスワードのハッシュ化と照合を提供する。
type Hasher interface {
	// Hash はソルト付きのハッシュを生成する。同じ入力でも毎回異なる値になる。
	Hash(password string) (string, error)
	// Verify はパスワードがハッシュと一致するかを返す。
	// ハッシュが不正な形式の場合はfalseを返す。
	Verify(password, hash string) bool
}

// BcryptHasher はbcryptによるHasher実装。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher はBcryptHasherを生成する。
// costが範囲外の場合はbcrypt.DefaultCostを使用する。
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash はパスワードをbcryptでハッシュ化する。
// MaxPasswordBytesを超えるパスワードはエラーになる。
func (h *BcryptHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify はパスワードがハッシュと一致するかを返す。
func (h *BcryptHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var _ Hasher = (*BcryptHasher)(nil)
