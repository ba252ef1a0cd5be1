package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"go-tablelogger/internal/mapping"
	"go-tablelogger/internal/models"
	"go-tablelogger/internal/repositories"
	"go-tablelogger/internal/tablestore"
	"go-tablelogger/internal/tablestore/memory"
	"go-tablelogger/internal/utils"
)

func newRepo(t *testing.T) *repositories.LogRepository {
	t.Helper()
	store := memory.NewClient()
	if err := store.CreateTableIfNotExists(context.Background()); err != nil {
		t.Fatal(err)
	}
	return repositories.NewLogRepository(store, "logs", mapping.NewMapper(mapping.NewSequenceRowKeys()), zap.NewNop())
}

func seedRecords(repo *repositories.LogRepository, node string) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	records := []models.LogRecord{
		{EventTime: base, NodeName: node, LogLevel: 2, LogLevelString: "INFO", Message: "started"},
		{EventTime: base.Add(time.Minute), NodeName: node, LogLevel: 4, LogLevelString: "ERROR", Message: "failed",
			Scopes: []models.Scope{models.PairScope(mapping.RequestIDKey, "req-9")}},
		{EventTime: base.Add(2 * time.Minute), NodeName: node, LogLevel: 3, LogLevelString: "WARN", Message: "slow"},
	}
	repo.AddMessages(context.Background(), records)
}

func TestBuildFilter(t *testing.T) {
	since := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		search LogSearch
		want   string
	}{
		{"empty", LogSearch{}, ""},
		{"raw only", LogSearch{Filter: "LogName eq 'api'"}, "LogName eq 'api'"},
		{"blank raw", LogSearch{Filter: " \t "}, ""},
		{"padded raw", LogSearch{Filter: "  LogName eq 'api' ", MinLevel: 2}, "(LogName eq 'api') and (LogLevel ge 2)"},
		{"level", LogSearch{MinLevel: 3}, "LogLevel ge 3"},
		{
			"combined",
			LogSearch{Filter: "LogName eq 'api'", MinLevel: 4, Since: since, RequestID: "o'neil"},
			"(((LogName eq 'api') and (LogLevel ge 4)) and (EventTime ge datetime'2024-05-01T10:00:00Z')) and (RequestId eq 'o''neil')",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildFilter(tt.search)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("BuildFilter() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildFilterRejectsBadSyntax(t *testing.T) {
	if _, err := BuildFilter(LogSearch{Filter: "LogLevel ge"}); !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("err = %v, want ErrInvalidFilter", err)
	}
}

func TestSearchByTypedCriteria(t *testing.T) {
	repo := newRepo(t)
	seedRecords(repo, "node-1")
	svc := NewLogService(repo, zap.NewNop())

	got, err := svc.Search(context.Background(), LogSearch{Partition: "node-1", MinLevel: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}

	got, err = svc.Search(context.Background(), LogSearch{Partition: "node-1", RequestID: "req-9", Fields: []string{"Message"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Message != "failed" || got[0].LogLevel != 0 {
		t.Errorf("projected search = %+v", got)
	}

	until := time.Date(2024, 5, 1, 10, 1, 0, 0, time.UTC)
	got, err = svc.Search(context.Background(), LogSearch{Partition: "node-1", Until: until})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Message != "started" {
		t.Errorf("until search = %+v", got)
	}
}

func TestDeleteFetchesETagWhenMissing(t *testing.T) {
	repo := newRepo(t)
	seedRecords(repo, "node-1")
	svc := NewLogService(repo, zap.NewNop())
	ctx := context.Background()

	all, err := svc.List(ctx, "node-1", 10)
	if err != nil || len(all) != 3 {
		t.Fatalf("List = %d, %v", len(all), err)
	}
	target := all[0]

	if err := svc.Delete(ctx, zap.NewNop(), target.PartitionKey, target.RowKey, "W/\"stale\""); !errors.Is(err, tablestore.ErrConcurrencyConflict) {
		t.Errorf("stale etag: err = %v, want conflict", err)
	}

	core, logs := observer.New(zapcore.InfoLevel)
	if err := svc.Delete(ctx, zap.New(core), target.PartitionKey, target.RowKey, ""); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if logs.FilterMessage("Log entry deleted").Len() != 1 {
		t.Error("delete was not audited on the table logger")
	}
	if _, err := svc.Get(ctx, target.PartitionKey, target.RowKey); !errors.Is(err, tablestore.ErrNotFound) {
		t.Errorf("Get after delete: err = %v, want ErrNotFound", err)
	}
	if err := svc.Delete(ctx, zap.NewNop(), target.PartitionKey, target.RowKey, ""); !errors.Is(err, tablestore.ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
}

func TestHealth(t *testing.T) {
	svc := NewLogService(newRepo(t), zap.NewNop())
	if err := svc.Health(context.Background()); err != nil {
		t.Errorf("Health on a provisioned store: %v", err)
	}

	unprovisioned := repositories.NewLogRepository(memory.NewClient(), "logs", nil, zap.NewNop())
	if err := NewLogService(unprovisioned, zap.NewNop()).Health(context.Background()); err == nil {
		t.Error("Health on a missing table should fail")
	}
}

func TestLogin(t *testing.T) {
	hash, err := utils.HashPassword("letmein42")
	if err != nil {
		t.Fatal(err)
	}
	svc := NewAuthService(models.AdminUser{Username: "admin", PasswordHash: hash}, "secret-key", time.Hour)
	ctx := context.Background()
	nop := zap.NewNop()

	token, err := svc.Login(ctx, nop, nop, "admin", "letmein42")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := utils.ValidateToken(token, "secret-key")
	if err != nil || claims.Username != "admin" {
		t.Errorf("token claims = %+v, %v", claims, err)
	}

	for _, tc := range []struct{ user, pass string }{{"admin", "wrong-pass"}, {"root", "letmein42"}} {
		if _, err := svc.Login(ctx, nop, nop, tc.user, tc.pass); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login(%q, %q) err = %v, want ErrInvalidCredentials", tc.user, tc.pass, err)
		}
	}

	disabled := NewAuthService(models.AdminUser{Username: "admin"}, "secret-key", time.Hour)
	if _, err := disabled.Login(ctx, nop, nop, "admin", "anything"); !errors.Is(err, ErrLoginDisabled) {
		t.Errorf("err = %v, want ErrLoginDisabled", err)
	}
}
