package repository

import (
	"context"
	"database/sql"
	"testing"

	"gavel/internal/common/cache"
	"gavel/internal/common/db"
	"gavel/internal/problem/model"
	appErr "gavel/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// rowDB serves a single problems row through QueryRow and counts hits so
// tests can tell cached reads from database reads.
type rowDB struct {
	problem *model.Problem
	queries int
}

type problemRow struct {
	p *model.Problem
}

func (r problemRow) Scan(dest ...interface{}) error {
	if r.p == nil {
		return sql.ErrNoRows
	}
	*(dest[0].(*int64)) = r.p.ID
	*(dest[1].(*string)) = r.p.Title
	*(dest[2].(*int64)) = r.p.TimeLimitMs
	*(dest[3].(*int64)) = r.p.MemoryLimitKB
	*(dest[4].(*string)) = r.p.JudgeType
	*(dest[5].(*string)) = r.p.CheckerLanguageKey
	*(dest[6].(*string)) = r.p.CheckerSource
	*(dest[7].(*int64)) = r.p.TotalPoints
	return nil
}

func (d *rowDB) QueryRow(_ context.Context, _ string, _ ...interface{}) db.Row {
	d.queries++
	return problemRow{p: d.problem}
}

func (d *rowDB) Query(context.Context, string, ...interface{}) (db.Rows, error) {
	panic("unused")
}

func (d *rowDB) Exec(context.Context, string, ...interface{}) (db.Result, error) {
	panic("unused")
}

func (d *rowDB) Transaction(context.Context, func(tx db.Transaction) error) error {
	panic("unused")
}

func (d *rowDB) BeginTx(context.Context, *db.TxOptions) (db.Transaction, error) {
	panic("unused")
}

func (d *rowDB) Ping(context.Context) error { return nil }
func (d *rowDB) Close() error               { return nil }

func newProblemCache(t *testing.T) cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c
}

func TestGetByIDCachesHotRow(t *testing.T) {
	database := &rowDB{problem: &model.Problem{
		ID:          7,
		Title:       "A+B",
		TimeLimitMs: 1000,
		JudgeType:   "default",
		TotalPoints: 100,
	}}
	repo := NewProblemRepository(database, newProblemCache(t))

	first, err := repo.GetByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	second, err := repo.GetByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetByID cached: %v", err)
	}
	if first != second {
		t.Errorf("cached row differs: %+v vs %+v", first, second)
	}
	if first.Title != "A+B" || first.TotalPoints != 100 {
		t.Errorf("row = %+v", first)
	}
	if database.queries != 1 {
		t.Errorf("database queried %d times, want 1", database.queries)
	}
}

func TestGetByIDCachesAbsence(t *testing.T) {
	database := &rowDB{problem: nil}
	repo := NewProblemRepository(database, newProblemCache(t))

	for i := 0; i < 2; i++ {
		_, err := repo.GetByID(context.Background(), 9)
		if !appErr.Is(err, appErr.ProblemNotFound) {
			t.Fatalf("read %d: err = %v, want ProblemNotFound", i, err)
		}
	}
	if database.queries != 1 {
		t.Errorf("database queried %d times, want 1", database.queries)
	}
}

func TestGetByIDWithoutCache(t *testing.T) {
	database := &rowDB{problem: &model.Problem{ID: 7, Title: "A+B"}}
	repo := NewProblemRepository(database, nil)

	if _, err := repo.GetByID(context.Background(), 7); err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if _, err := repo.GetByID(context.Background(), 7); err != nil {
		t.Fatalf("GetByID again: %v", err)
	}
	if database.queries != 2 {
		t.Errorf("database queried %d times, want 2", database.queries)
	}
}

func TestGetByIDRejectsBadID(t *testing.T) {
	repo := NewProblemRepository(&rowDB{}, nil)
	if _, err := repo.GetByID(context.Background(), 0); err == nil {
		t.Fatal("expected validation error")
	}
}
