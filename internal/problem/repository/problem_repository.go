// Package repository reads the problem schema the judge consumes: problems,
// their testcases and groups, and the language table.
package repository

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"gavel/internal/common/cache"
	"gavel/internal/common/db"
	"gavel/internal/problem/model"
	appErr "gavel/pkg/errors"
)

const (
	defaultProblemTTL = 10 * time.Minute
	problemEmptyTTL   = time.Minute
	problemKeyPrefix  = "problem:meta:"
)

// ProblemRepository reads problem configuration.
type ProblemRepository interface {
	GetByID(ctx context.Context, problemID int64) (model.Problem, error)
	ListTestcases(ctx context.Context, problemID int64) ([]model.Testcase, error)
	ListGroups(ctx context.Context, problemID int64) ([]model.TestcaseGroup, error)
	ListLanguages(ctx context.Context) ([]model.Language, error)
}

// MySQLProblemRepository backs ProblemRepository with mysql and a cache-aside
// layer for the hot problem row.
type MySQLProblemRepository struct {
	db    db.Database
	cache cache.Cache
	ttl   time.Duration
}

// NewProblemRepository creates a repository. cacheClient may be nil, in which
// case every read goes to the database.
func NewProblemRepository(database db.Database, cacheClient cache.Cache) *MySQLProblemRepository {
	return &MySQLProblemRepository{db: database, cache: cacheClient, ttl: defaultProblemTTL}
}

func (r *MySQLProblemRepository) GetByID(ctx context.Context, problemID int64) (model.Problem, error) {
	if problemID <= 0 {
		return model.Problem{}, appErr.ValidationError("problem_id", "required")
	}

	var p *model.Problem
	var err error
	if r.cache != nil {
		cacheKey := problemKeyPrefix + strconv.FormatInt(problemID, 10)
		p, err = cache.GetWithCached(ctx, r.cache, cacheKey,
			cache.JitterTTL(r.ttl), problemEmptyTTL,
			func(p *model.Problem) bool { return p == nil },
			func(p *model.Problem) string {
				data, _ := json.Marshal(p)
				return string(data)
			},
			func(data string) (*model.Problem, error) {
				var p model.Problem
				if err := json.Unmarshal([]byte(data), &p); err != nil {
					return nil, err
				}
				return &p, nil
			},
			func(ctx context.Context) (*model.Problem, error) {
				return r.fetchProblem(ctx, problemID)
			})
	} else {
		p, err = r.fetchProblem(ctx, problemID)
	}
	if err != nil {
		return model.Problem{}, err
	}
	if p == nil {
		return model.Problem{}, appErr.New(appErr.ProblemNotFound).
			WithMessagef("problem %d not found", problemID)
	}
	return *p, nil
}

// fetchProblem reads the row itself. A missing problem comes back as nil so
// the cache layer can remember the absence.
func (r *MySQLProblemRepository) fetchProblem(ctx context.Context, problemID int64) (*model.Problem, error) {
	query := `SELECT id, title, time_limit_ms, memory_limit_kb, judge_type,
		checker_language_key, checker_source, total_points
		FROM problems WHERE id = ?`
	var p model.Problem
	err := r.db.QueryRow(ctx, query, problemID).Scan(
		&p.ID, &p.Title, &p.TimeLimitMs, &p.MemoryLimitKB, &p.JudgeType,
		&p.CheckerLanguageKey, &p.CheckerSource, &p.TotalPoints)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load problem failed")
	}
	return &p, nil
}

func (r *MySQLProblemRepository) ListTestcases(ctx context.Context, problemID int64) ([]model.Testcase, error) {
	query := `SELECT id, problem_id, name, input, expected_output, group_id, order_key
		FROM testcases WHERE problem_id = ? ORDER BY order_key ASC, id ASC`
	rows, err := r.db.Query(ctx, query, problemID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list testcases failed")
	}
	defer rows.Close()

	var testcases []model.Testcase
	for rows.Next() {
		var tc model.Testcase
		if err := rows.Scan(&tc.ID, &tc.ProblemID, &tc.Name, &tc.Input,
			&tc.ExpectedOutput, &tc.GroupID, &tc.OrderKey); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan testcase failed")
		}
		testcases = append(testcases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate testcases failed")
	}
	return testcases, nil
}

func (r *MySQLProblemRepository) ListGroups(ctx context.Context, problemID int64) ([]model.TestcaseGroup, error) {
	query := `SELECT id, problem_id, name, points
		FROM testcase_groups WHERE problem_id = ? ORDER BY id ASC`
	rows, err := r.db.Query(ctx, query, problemID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list testcase groups failed")
	}
	defer rows.Close()

	var groups []model.TestcaseGroup
	for rows.Next() {
		var g model.TestcaseGroup
		if err := rows.Scan(&g.ID, &g.ProblemID, &g.Name, &g.Points); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan testcase group failed")
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate testcase groups failed")
	}
	return groups, nil
}

func (r *MySQLProblemRepository) ListLanguages(ctx context.Context) ([]model.Language, error) {
	query := `SELECT lang_key, name, source_ext, compile_command, run_command,
		interpreted, default_time_limit_ms, default_memory_limit_kb
		FROM languages ORDER BY lang_key ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list languages failed")
	}
	defer rows.Close()

	var langs []model.Language
	for rows.Next() {
		var l model.Language
		if err := rows.Scan(&l.Key, &l.Name, &l.SourceExt, &l.CompileCommand,
			&l.RunCommand, &l.Interpreted, &l.DefaultTimeLimitMs, &l.DefaultMemoryLimitKB); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan language failed")
		}
		langs = append(langs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate languages failed")
	}
	return langs, nil
}

