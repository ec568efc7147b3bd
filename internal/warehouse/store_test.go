package warehouse

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/JonMunkholm/docredact/internal/core"
	"github.com/jackc/pgx/v5"
)

type fakeRow struct {
	value *string
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(**string)) = r.value
	return nil
}

// fakeDB answers QueryRow from a path-keyed table and records the last query.
type fakeDB struct {
	rows    map[string]*string
	err     error
	lastSQL string
	lastArg any
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.lastSQL = sql
	f.lastArg = args[0]
	if f.err != nil {
		return fakeRow{err: f.err}
	}
	v, ok := f.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{value: v}
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func strPtr(s string) *string { return &s }

func TestStoragePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/Volumes/main/default/docs/a.pdf", "dbfs:/Volumes/main/default/docs/a.pdf"},
		{"dbfs:/Volumes/main/a.pdf", "dbfs:/Volumes/main/a.pdf"},
		{"/tmp/a.pdf", "/tmp/a.pdf"},
		{"doc-123", "doc-123"},
	}
	for _, tt := range tests {
		if got := StoragePath(tt.in); got != tt.want {
			t.Errorf("StoragePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStore_Parse(t *testing.T) {
	db := &fakeDB{rows: map[string]*string{
		"dbfs:/Volumes/main/docs/a.pdf": strPtr("Jane Doe signed."),
		"empty":                         nil,
	}}
	s, err := newStore(db, "docs.files_parsed")
	if err != nil {
		t.Fatalf("newStore failed: %v", err)
	}

	text, err := s.Parse(context.Background(), "/Volumes/main/docs/a.pdf")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if text != "Jane Doe signed." {
		t.Errorf("unexpected text %q", text)
	}
	if !strings.Contains(db.lastSQL, "FROM docs.files_parsed WHERE path = $1") {
		t.Errorf("unexpected query %q", db.lastSQL)
	}
	if db.lastArg != "dbfs:/Volumes/main/docs/a.pdf" {
		t.Errorf("expected dbfs path argument, got %v", db.lastArg)
	}

	text, err = s.Parse(context.Background(), "empty")
	if err != nil || text != "" {
		t.Errorf("expected empty content for NULL row, got %q, %v", text, err)
	}

	_, err = s.Parse(context.Background(), "/Volumes/main/docs/missing.pdf")
	if !core.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestStore_ParseQueryError(t *testing.T) {
	boom := errors.New("connection reset")
	s, _ := newStore(&fakeDB{err: boom}, "files_parsed")

	_, err := s.Parse(context.Background(), "a")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped query error, got %v", err)
	}
	if core.IsNotFound(err) {
		t.Error("query errors must not look like missing documents")
	}
}

func TestNewStore_RejectsUnsafeTable(t *testing.T) {
	for _, table := range []string{"", "files parsed", "x;DROP TABLE y", "a.b.c"} {
		if _, err := newStore(&fakeDB{}, table); !core.IsValidation(err) {
			t.Errorf("table %q: expected validation error, got %v", table, err)
		}
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, DefaultListLimit},
		{-5, 1},
		{1, 1},
		{250, 250},
		{MaxListLimit + 1, MaxListLimit},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
