package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/hitoshi/userauth/internal/database"
	"github.com/hitoshi/userauth/internal/model"
)

// userSelectColumns はSELECT句で使用するカラム列。scanUserの順序と一致させること。
var userSelectColumns = strings.Join(model.UserColumns, ", ")

// SQLUserRepo はdatabase/sqlを使用したユーザーリポジトリ。
// PostgreSQLとSQLiteの差異はDialectで吸収する。
type SQLUserRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLUserRepo はSQLUserRepoを生成する。
func NewSQLUserRepo(db *sql.DB, dialect database.Dialect) *SQLUserRepo {
	return &SQLUserRepo{db: db, dialect: dialect}
}

// AddUser はユーザーを作成する。
func (r *SQLUserRepo) AddUser(ctx context.Context, email, hashedPassword string) (*model.User, error) {
	query := fmt.Sprintf(
		`INSERT INTO users (email, hashed_password) VALUES (%s, %s) RETURNING id`,
		r.dialect.Placeholder(1), r.dialect.Placeholder(2),
	)

	user := &model.User{Email: email, HashedPassword: hashedPassword}
	err := r.db.QueryRowContext(ctx, query, email, hashedPassword).Scan(&user.ID)
	if r.dialect.IsUniqueViolation(err) {
		return nil, fmt.Errorf("failed to insert user: %w", ErrDuplicateEmail)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return user, nil
}

// FindUserBy は条件に一致する最初のユーザーを取得する。見つからない場合はnilを返す。
func (r *SQLUserRepo) FindUserBy(ctx context.Context, criteria Criteria) (*model.User, error) {
	if len(criteria) == 0 {
		return nil, fmt.Errorf("failed to find user: %w: empty criteria", ErrInvalidCriteria)
	}

	keys := sortedKeys(criteria)
	conds := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !model.IsUserColumn(key) {
			return nil, fmt.Errorf("failed to find user: %w: %q", ErrInvalidCriteria, key)
		}
		value := criteria[key]
		if isNull(value) {
			conds = append(conds, key+" IS NULL")
			continue
		}
		args = append(args, value)
		conds = append(conds, key+" = "+r.dialect.Placeholder(len(args)))
	}

	query := fmt.Sprintf(
		`SELECT %s FROM users WHERE %s ORDER BY id LIMIT 1`,
		userSelectColumns, strings.Join(conds, " AND "),
	)

	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return user, nil
}

// UpdateUser は指定IDのユーザーの属性を1つのUPDATE文で更新する。
// 属性の検証はSQL発行前にすべて行う。
func (r *SQLUserRepo) UpdateUser(ctx context.Context, id int64, attrs Attributes) error {
	keys := sortedKeys(attrs)
	for _, key := range keys {
		if key == model.ColumnID || !model.IsUserColumn(key) {
			return fmt.Errorf("failed to update user: %w: %q", ErrInvalidAttribute, key)
		}
	}

	// 更新項目がない場合は存在確認のみ行う
	if len(keys) == 0 {
		user, err := r.FindUserBy(ctx, Criteria{model.ColumnID: id})
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("failed to update user %d: %w", id, ErrNotFound)
		}
		return nil
	}

	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)
	for _, key := range keys {
		args = append(args, attrs[key])
		sets = append(sets, key+" = "+r.dialect.Placeholder(len(args)))
	}
	args = append(args, id)

	query := fmt.Sprintf(
		`UPDATE users SET %s WHERE id = %s`,
		strings.Join(sets, ", "), r.dialect.Placeholder(len(args)),
	)

	result, err := r.db.ExecContext(ctx, query, args...)
	if r.dialect.IsUniqueViolation(err) {
		return fmt.Errorf("failed to update user %d: %w", id, ErrDuplicateEmail)
	}
	if err != nil {
		return fmt.Errorf("failed to update user %d: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("failed to update user %d: %w", id, ErrNotFound)
	}

	return nil
}

// scanUser はuserSelectColumnsの順で1行を読み取る。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var sessionID, resetToken sql.NullString
	if err := row.Scan(&user.ID, &user.Email, &user.HashedPassword, &sessionID, &resetToken); err != nil {
		return nil, err
	}
	if sessionID.Valid {
		user.SessionID = &sessionID.String
	}
	if resetToken.Valid {
		user.ResetToken = &resetToken.String
	}
	return user, nil
}

// isNull は値がSQLのNULLに相当するかを返す。
func isNull(v any) bool {
	if v == nil {
		return true
	}
	p, ok := v.(*string)
	return ok && p == nil
}

// sortedKeys はSQLとプレースホルダの順序を安定させるためキーを整列して返す。
func sortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// compile-time interface check
var _ UserRepository = (*SQLUserRepo)(nil)
