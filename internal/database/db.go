package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite"
)

// sqlitePragmas はSQLite接続ごとに適用するPRAGMA。
// modernc.org/sqliteはDSNの_pragmaパラメータを接続確立時に実行する。
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// ParseURL はデータベースURLからダイアレクトとドライバ用DSNを取り出す。
// 対応するスキーム:
//   - postgres://, postgresql:// (lib/pq にそのまま渡す)
//   - sqlite://<path> (例: "sqlite://a.db", "sqlite:///var/lib/app.db", "sqlite://:memory:")
func ParseURL(databaseURL string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return DialectPostgres, databaseURL, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("sqlite database path is empty")
		}
		return DialectSQLite, sqliteDSN(path), nil
	default:
		return "", "", fmt.Errorf("unsupported database URL scheme: %q", MaskURL(databaseURL))
	}
}

// sqliteDSN はファイルパスにPRAGMA指定を付与したDSNを組み立てる。
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	params := make([]string, len(sqlitePragmas))
	for i, p := range sqlitePragmas {
		params[i] = "_pragma=" + p
	}
	return path + sep + strings.Join(params, "&")
}

// Open はデータベースURLに応じたドライバで接続プールを開く。
// sql.Openは接続を試行しないため、実際の接続確認にはPingWithRetryを使用すること。
// SQLiteは書き込みが単一ライターに限られるため、オープン接続数を1に固定する。
func Open(databaseURL string) (*sql.DB, Dialect, error) {
	dialect, dsn, err := ParseURL(databaseURL)
	if err != nil {
		return nil, "", err
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	return db, dialect, nil
}

// PingWithRetry はDB接続を指数バックオフで再試行しながら確認する。
// retriesは初回を除く再試行回数。コンテナ起動直後などDBの準備が遅れる場合に備える。
func PingWithRetry(ctx context.Context, db *sql.DB, retries uint64) error {
	backoff := retry.WithMaxRetries(retries, retry.NewExponential(500*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	return nil
}

// MaskURL はログ出力用にデータベースURLの認証情報をマスクする。
func MaskURL(url string) string {
	if at := strings.LastIndex(url, "@"); at >= 0 {
		if scheme := strings.Index(url, "://"); scheme >= 0 && scheme < at {
			return url[:scheme+3] + "***" + url[at:]
		}
	}
	return url
}
