package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hitoshi/userauth/internal/database"
	"github.com/hitoshi/userauth/internal/model"
)

// newSQLiteRepo は一時ファイル上のSQLiteにマイグレーションを適用したリポジトリを返す。
func newSQLiteRepo(t *testing.T) (*SQLUserRepo, *sql.DB) {
	t.Helper()

	db, dialect, err := database.Open("sqlite://" + filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatalf("データベースのオープンに失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.RunMigrations(db, dialect); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	return NewSQLUserRepo(db, dialect), db
}

// newPostgresRepo はTEST_DATABASE_URLのPostgreSQLを使用する。到達できない場合はスキップする。
func newPostgresRepo(t *testing.T) *SQLUserRepo {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}
	db, dialect, err := database.Open(dbURL)
	if err != nil {
		t.Fatalf("データベースのオープンに失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Ping(); err != nil {
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	if err := database.RunMigrations(db, dialect); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	if _, err := db.Exec(`DELETE FROM users`); err != nil {
		t.Fatalf("クリーンアップに失敗: %v", err)
	}
	return NewSQLUserRepo(db, dialect)
}

func strPtr(s string) *string { return &s }

func TestSQLUserRepo_AddUser_AssignsDistinctIDs(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()

	u1, err := repo.AddUser(ctx, "test@test.com", "SuperHashedPwd")
	if err != nil {
		t.Fatalf("AddUser returned error: %v", err)
	}
	u2, err := repo.AddUser(ctx, "test1@test.com", "SuperHashedPwd1")
	if err != nil {
		t.Fatalf("AddUser returned error: %v", err)
	}

	if u1.ID == 0 || u2.ID == 0 {
		t.Fatalf("ids must be assigned: got %d and %d", u1.ID, u2.ID)
	}
	if u1.ID == u2.ID {
		t.Errorf("ids must differ: both %d", u1.ID)
	}
	if u1.Email != "test@test.com" {
		t.Errorf("Email = %q, want %q", u1.Email, "test@test.com")
	}
	if u1.SessionID != nil || u1.ResetToken != nil {
		t.Error("new user must not have session or reset token")
	}
}

func TestSQLUserRepo_AddUser_DuplicateEmail(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()

	if _, err := repo.AddUser(ctx, "dup@test.com", "h1"); err != nil {
		t.Fatalf("AddUser returned error: %v", err)
	}
	_, err := repo.AddUser(ctx, "dup@test.com", "h2")
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("err = %v, want ErrDuplicateEmail", err)
	}

	// 既存レコードは変更されないこと
	u, err := repo.FindUserBy(ctx, Criteria{model.ColumnEmail: "dup@test.com"})
	if err != nil || u == nil {
		t.Fatalf("FindUserBy = %v, %v", u, err)
	}
	if u.HashedPassword != "h1" {
		t.Errorf("HashedPassword = %q, want %q", u.HashedPassword, "h1")
	}
}

// 同一メールアドレスの同時登録はちょうど1件だけ成功すること
func TestSQLUserRepo_AddUser_ConcurrentDuplicate(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.AddUser(ctx, "race@test.com", "h")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrDuplicateEmail):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", succeeded)
	}
}

func TestSQLUserRepo_FindUserBy(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()

	created, err := repo.AddUser(ctx, "test@test.com", "hashed")
	if err != nil {
		t.Fatalf("AddUser returned error: %v", err)
	}

	t.Run("by email", func(t *testing.T) {
		u, err := repo.FindUserBy(ctx, Criteria{model.ColumnEmail: "test@test.com"})
		if err != nil {
			t.Fatalf("FindUserBy returned error: %v", err)
		}
		if u == nil || u.ID != created.ID {
			t.Fatalf("FindUserBy = %+v, want id %d", u, created.ID)
		}
	})

	t.Run("by multiple columns", func(t *testing.T) {
		u, err := repo.FindUserBy(ctx, Criteria{
			model.ColumnID:    created.ID,
			model.ColumnEmail: "test@test.com",
		})
		if err != nil {
			t.Fatalf("FindUserBy returned error: %v", err)
		}
		if u == nil {
			t.Fatal("expected user, got nil")
		}
	})

	t.Run("nil value matches NULL", func(t *testing.T) {
		u, err := repo.FindUserBy(ctx, Criteria{
			model.ColumnEmail:     "test@test.com",
			model.ColumnSessionID: nil,
		})
		if err != nil {
			t.Fatalf("FindUserBy returned error: %v", err)
		}
		if u == nil {
			t.Fatal("expected user with NULL session_id, got nil")
		}
	})

	t.Run("miss returns nil", func(t *testing.T) {
		u, err := repo.FindUserBy(ctx, Criteria{model.ColumnEmail: "nobody@test.com"})
		if err != nil {
			t.Fatalf("FindUserBy returned error: %v", err)
		}
		if u != nil {
			t.Errorf("FindUserBy = %+v, want nil", u)
		}
	})

	t.Run("unknown column", func(t *testing.T) {
		_, err := repo.FindUserBy(ctx, Criteria{"no_email": "test@test.com"})
		if !errors.Is(err, ErrInvalidCriteria) {
			t.Errorf("err = %v, want ErrInvalidCriteria", err)
		}
	})

	t.Run("empty criteria", func(t *testing.T) {
		_, err := repo.FindUserBy(ctx, Criteria{})
		if !errors.Is(err, ErrInvalidCriteria) {
			t.Errorf("err = %v, want ErrInvalidCriteria", err)
		}
	})
}

func TestSQLUserRepo_UpdateUser(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()

	created, err := repo.AddUser(ctx, "test@test.com", "PwdHashed")
	if err != nil {
		t.Fatalf("AddUser returned error: %v", err)
	}

	if err := repo.UpdateUser(ctx, created.ID, Attributes{model.ColumnHashedPassword: "NewPwd"}); err != nil {
		t.Fatalf("UpdateUser returned error: %v", err)
	}
	u, err := repo.FindUserBy(ctx, Criteria{model.ColumnID: created.ID})
	if err != nil || u == nil {
		t.Fatalf("FindUserBy = %v, %v", u, err)
	}
	if u.HashedPassword != "NewPwd" {
		t.Errorf("HashedPassword = %q, want %q", u.HashedPassword, "NewPwd")
	}
}

func TestSQLUserRepo_UpdateUser_NilStoresNull(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()

	created, _ := repo.AddUser(ctx, "s@test.com", "h")
	if err := repo.UpdateUser(ctx, created.ID, Attributes{model.ColumnSessionID: "abc"}); err != nil {
		t.Fatalf("UpdateUser returned error: %v", err)
	}

	u, _ := repo.FindUserBy(ctx, Criteria{model.ColumnSessionID: "abc"})
	if u == nil || !u.HasSession() {
		t.Fatalf("expected session to be stored, got %+v", u)
	}

	if err := repo.UpdateUser(ctx, created.ID, Attributes{model.ColumnSessionID: nil}); err != nil {
		t.Fatalf("UpdateUser returned error: %v", err)
	}
	u, _ = repo.FindUserBy(ctx, Criteria{model.ColumnID: created.ID})
	if u.SessionID != nil {
		t.Errorf("SessionID = %q, want nil", *u.SessionID)
	}

	// nilポインタも NULL として扱う
	var none *string
	if err := repo.UpdateUser(ctx, created.ID, Attributes{model.ColumnResetToken: strPtr("tok")}); err != nil {
		t.Fatalf("UpdateUser returned error: %v", err)
	}
	if err := repo.UpdateUser(ctx, created.ID, Attributes{model.ColumnResetToken: none}); err != nil {
		t.Fatalf("UpdateUser returned error: %v", err)
	}
	u, _ = repo.FindUserBy(ctx, Criteria{model.ColumnID: created.ID, model.ColumnResetToken: none})
	if u == nil {
		t.Error("expected reset_token to be NULL")
	}
}

// 不正な属性を含む更新は何も書き込まないこと
func TestSQLUserRepo_UpdateUser_InvalidAttributeIsAtomic(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()

	created, _ := repo.AddUser(ctx, "a@test.com", "old")

	err := repo.UpdateUser(ctx, created.ID, Attributes{
		model.ColumnHashedPassword: "new",
		"no_such_column":           "x",
	})
	if !errors.Is(err, ErrInvalidAttribute) {
		t.Fatalf("err = %v, want ErrInvalidAttribute", err)
	}

	u, _ := repo.FindUserBy(ctx, Criteria{model.ColumnID: created.ID})
	if u.HashedPassword != "old" {
		t.Errorf("HashedPassword = %q, want %q (no partial write)", u.HashedPassword, "old")
	}
}

func TestSQLUserRepo_UpdateUser_IDIsNotUpdatable(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()

	created, _ := repo.AddUser(ctx, "a@test.com", "h")
	err := repo.UpdateUser(ctx, created.ID, Attributes{model.ColumnID: created.ID + 100})
	if !errors.Is(err, ErrInvalidAttribute) {
		t.Errorf("err = %v, want ErrInvalidAttribute", err)
	}
}

func TestSQLUserRepo_UpdateUser_NotFound(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()

	err := repo.UpdateUser(ctx, 9999, Attributes{model.ColumnHashedPassword: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	// 更新項目なしでも存在確認は行う
	err = repo.UpdateUser(ctx, 9999, Attributes{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound for empty attrs", err)
	}
}

func TestSQLUserRepo_UpdateUser_EmptyAttrsOnExistingUser(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()

	created, _ := repo.AddUser(ctx, "a@test.com", "h")
	if err := repo.UpdateUser(ctx, created.ID, nil); err != nil {
		t.Errorf("UpdateUser with no attrs returned error: %v", err)
	}
}

func TestSQLUserRepo_UpdateUser_EmailToExisting(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()

	_, _ = repo.AddUser(ctx, "a@test.com", "h")
	b, _ := repo.AddUser(ctx, "b@test.com", "h")

	err := repo.UpdateUser(ctx, b.ID, Attributes{model.ColumnEmail: "a@test.com"})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("err = %v, want ErrDuplicateEmail", err)
	}
}

func TestSQLUserRepo_Postgres_RoundTrip(t *testing.T) {
	repo := newPostgresRepo(t)
	ctx := context.Background()

	u, err := repo.AddUser(ctx, "pg@test.com", "h")
	if err != nil {
		t.Fatalf("AddUser returned error: %v", err)
	}
	if _, err := repo.AddUser(ctx, "pg@test.com", "h"); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("err = %v, want ErrDuplicateEmail", err)
	}
	if err := repo.UpdateUser(ctx, u.ID, Attributes{model.ColumnSessionID: "sid"}); err != nil {
		t.Fatalf("UpdateUser returned error: %v", err)
	}
	found, err := repo.FindUserBy(ctx, Criteria{model.ColumnSessionID: "sid"})
	if err != nil || found == nil || found.ID != u.ID {
		t.Fatalf("FindUserBy = %+v, %v", found, err)
	}
}
