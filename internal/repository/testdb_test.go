package repository

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/safwat-fathi/almuetasim-api/internal/database"
)

// openTestDB はマイグレーション済みの空のテスト用DBを返す。
// TEST_DATABASE_URL が未設定、または接続できない場合はスキップする。
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := database.RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	if _, err := db.Exec(`TRUNCATE sessions, users RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("テーブルの初期化に失敗: %v", err)
	}
	return db
}
