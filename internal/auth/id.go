package auth

import "github.com/google/uuid"

// GenerateUUID はランダムなUUID（v4）の文字列表現を返す。
// セッションIDとリセットトークンに使用する。
func GenerateUUID() string {
	return uuid.NewString()
}
