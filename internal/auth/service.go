// Package auth はパスワード認証、セッション管理、パスワードリセットを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/userauth/internal/metrics"
	"github.com/hitoshi/userauth/internal/model"
	"github.com/hitoshi/userauth/internal/repository"
)

// ResetNotifier はパスワードリセットトークンをユーザーへ通知する。
type ResetNotifier interface {
	SendResetToken(ctx context.Context, email, token string) error
}

// ServiceOption はServiceの任意設定を行う。
type ServiceOption func(*Service)

// WithIDGenerator はセッションIDとリセットトークンの生成関数を差し替える。
func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *Service) { s.newID = fn }
}

// WithMetrics はメトリクスの記録先を設定する。
func WithMetrics(m metrics.MetricsCollector) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithResetNotifier はリセットトークンの通知先を設定する。
func WithResetNotifier(n ResetNotifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	users    repository.UserRepository
	hasher   Hasher
	newID    func() string
	metrics  metrics.MetricsCollector
	notifier ResetNotifier
}

// NewService はServiceを生成する。
func NewService(users repository.UserRepository, hasher Hasher, opts ...ServiceOption) *Service {
	s := &Service{
		users:   users,
		hasher:  hasher,
		newID:   GenerateUUID,
		metrics: metrics.NopCollector{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterUser は新しいユーザーを登録する。
// メールアドレスが登録済みの場合はAlreadyRegisteredエラーを返す。
func (s *Service) RegisterUser(ctx context.Context, email, password string) (*model.User, error) {
	existing, err := s.users.FindUserBy(ctx, repository.Criteria{model.ColumnEmail: email})
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		s.metrics.RecordRegistration(metrics.OutcomeRejected)
		return nil, model.NewAlreadyRegisteredError(email)
	}
	if len(password) > MaxPasswordBytes {
		s.metrics.RecordRegistration(metrics.OutcomeRejected)
		return nil, model.NewPasswordTooLongError(MaxPasswordBytes)
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.AddUser(ctx, email, hashed)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		// 検索後に同じメールアドレスで登録された場合
		s.metrics.RecordRegistration(metrics.OutcomeRejected)
		return nil, model.NewAlreadyRegisteredError(email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add user: %w", err)
	}

	s.metrics.RecordRegistration(metrics.OutcomeSuccess)
	slog.Info("user registered", slog.Int64("user_id", user.ID), slog.String("email", email))
	return user, nil
}

// ValidLogin はメールアドレスとパスワードの組が正しいかを返す。
// 未登録のメールアドレスはfalseとなる。エラーはストア障害時のみ返す。
func (s *Service) ValidLogin(ctx context.Context, email, password string) (bool, error) {
	user, err := s.users.FindUserBy(ctx, repository.Criteria{model.ColumnEmail: email})
	if err != nil {
		return false, fmt.Errorf("failed to find user: %w", err)
	}

	ok := user != nil && s.hasher.Verify(password, user.HashedPassword)
	if ok {
		s.metrics.RecordLogin(metrics.OutcomeSuccess)
	} else {
		s.metrics.RecordLogin(metrics.OutcomeFailure)
	}
	return ok, nil
}

// CreateSession はユーザーに新しいセッションIDを発行する。
// 既存のセッションは上書きされる。未登録のメールアドレスの場合は空文字を返す。
func (s *Service) CreateSession(ctx context.Context, email string) (string, error) {
	user, err := s.users.FindUserBy(ctx, repository.Criteria{model.ColumnEmail: email})
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return "", nil
	}

	sessionID := s.newID()
	if err := s.users.UpdateUser(ctx, user.ID, repository.Attributes{model.ColumnSessionID: sessionID}); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to save session: %w", err)
	}

	s.metrics.RecordSessionCreated()
	slog.Info("session created", slog.Int64("user_id", user.ID))
	return sessionID, nil
}

// GetUserFromSessionID はセッションIDに対応するユーザーを返す。
// 空のIDや該当なしの場合はnilを返す。
func (s *Service) GetUserFromSessionID(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	user, err := s.users.FindUserBy(ctx, repository.Criteria{model.ColumnSessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to find user by session: %w", err)
	}
	return user, nil
}

// Profile はプロフィール表示用にセッションのユーザーを返す。
func (s *Service) Profile(ctx context.Context, sessionID string) (*model.User, error) {
	return s.GetUserFromSessionID(ctx, sessionID)
}

// DestroySession はユーザーのセッションを破棄する。
// 存在しないユーザーIDでもエラーにしない。
func (s *Service) DestroySession(ctx context.Context, userID int64) error {
	err := s.users.UpdateUser(ctx, userID, repository.Attributes{model.ColumnSessionID: nil})
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}

	s.metrics.RecordSessionDestroyed()
	slog.Info("session destroyed", slog.Int64("user_id", userID))
	return nil
}

// GetResetPasswordToken はパスワードリセットトークンを発行する。
// 未登録のメールアドレスの場合はResetNotAllowedエラーを返す。
// 通知先が設定されている場合はトークンを送信するが、送信失敗は呼び出し元に返さない。
func (s *Service) GetResetPasswordToken(ctx context.Context, email string) (string, error) {
	user, err := s.users.FindUserBy(ctx, repository.Criteria{model.ColumnEmail: email})
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return "", model.NewResetNotAllowedError()
	}

	token := s.newID()
	if err := s.users.UpdateUser(ctx, user.ID, repository.Attributes{model.ColumnResetToken: token}); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", model.NewResetNotAllowedError()
		}
		return "", fmt.Errorf("failed to save reset token: %w", err)
	}

	s.metrics.RecordResetTokenIssued()
	slog.Info("reset token issued", slog.Int64("user_id", user.ID))

	if s.notifier != nil {
		if err := s.notifier.SendResetToken(ctx, email, token); err != nil {
			slog.Warn("failed to send reset token",
				slog.Int64("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return token, nil
}

// UpdatePassword はリセットトークンを検証してパスワードを更新する。
// 新しいハッシュの保存とトークンの消去は1回の更新で行う。
func (s *Service) UpdatePassword(ctx context.Context, resetToken, password string) error {
	if resetToken == "" {
		s.metrics.RecordPasswordUpdate(metrics.OutcomeRejected)
		return model.NewInvalidResetTokenError()
	}

	user, err := s.users.FindUserBy(ctx, repository.Criteria{model.ColumnResetToken: resetToken})
	if err != nil {
		return fmt.Errorf("failed to find user by reset token: %w", err)
	}
	if user == nil {
		s.metrics.RecordPasswordUpdate(metrics.OutcomeRejected)
		return model.NewInvalidResetTokenError()
	}
	// トークンは消費せず、再入力できるようにする
	if len(password) > MaxPasswordBytes {
		s.metrics.RecordPasswordUpdate(metrics.OutcomeRejected)
		return model.NewPasswordTooLongError(MaxPasswordBytes)
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	err = s.users.UpdateUser(ctx, user.ID, repository.Attributes{
		model.ColumnHashedPassword: hashed,
		model.ColumnResetToken:     nil,
	})
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.RecordPasswordUpdate(metrics.OutcomeRejected)
		return model.NewInvalidResetTokenError()
	}
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.metrics.RecordPasswordUpdate(metrics.OutcomeSuccess)
	slog.Info("password updated", slog.Int64("user_id", user.ID))
	return nil
}
