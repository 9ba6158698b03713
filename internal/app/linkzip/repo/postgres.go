package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"linkzip.local/internal/app/linkzip"
	"linkzip.local/internal/platform/metrics"
)

const (
	queryTimeout = 3 * time.Second
	// 一个 batch 里最多多少条 phish，PhishTank 全量有几万条
	phishBatchSize = 500
)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func observe(op string, start time.Time) {
	metrics.DBQueryDurationSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Insert 先插入拿到 id，再用 id 生成短码回写，两步在同一个事务里。
// url 已存在时 ON CONFLICT 命中，返回已有记录。
func (s *PostgresStore) Insert(ctx context.Context, url string, code linkzip.CodeFunc) (linkzip.Link, bool, error) {
	defer observe("insert", time.Now())
	dbctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		l        linkzip.Link
		inserted bool
	)
	err := pgx.BeginFunc(dbctx, s.db, func(tx pgx.Tx) error {
		// xmax = 0 说明这一行是本次插入的，而不是冲突后更新的
		if err := tx.QueryRow(dbctx, `
INSERT INTO links (url) VALUES ($1)
ON CONFLICT (url) DO UPDATE SET url = EXCLUDED.url
RETURNING id, COALESCE(link, ''), url, visits, created_at, (xmax = 0)`, url).
			Scan(&l.ID, &l.Code, &l.URL, &l.Visits, &l.CreatedAt, &inserted); err != nil {
			return err
		}
		if l.Code != "" {
			return nil
		}

		c, err := code(l.ID)
		if err != nil {
			return err
		}
		// 并发插入同一个 url 时另一个事务可能已经写了 link
		err = tx.QueryRow(dbctx, `UPDATE links SET link = $1 WHERE id = $2 AND link IS NULL RETURNING link`, c, l.ID).Scan(&l.Code)
		if errors.Is(err, pgx.ErrNoRows) {
			return tx.QueryRow(dbctx, `SELECT link FROM links WHERE id = $1`, l.ID).Scan(&l.Code)
		}
		return err
	})
	if err != nil {
		return linkzip.Link{}, false, fmt.Errorf("insert link: %w", err)
	}
	return l, inserted, nil
}

func (s *PostgresStore) GetByCode(ctx context.Context, code string) (linkzip.Link, error) {
	defer observe("get_by_code", time.Now())
	dbctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var l linkzip.Link
	err := s.db.QueryRow(dbctx, `SELECT id, link, url, visits, created_at FROM links WHERE link = $1`, code).
		Scan(&l.ID, &l.Code, &l.URL, &l.Visits, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return linkzip.Link{}, linkzip.ErrLinkNotFound
	}
	if err != nil {
		return linkzip.Link{}, err
	}
	return l, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]linkzip.Link, error) {
	defer observe("list", time.Now())
	dbctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.Query(dbctx, `
SELECT id, link, url, visits, created_at FROM links
WHERE link IS NOT NULL
ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (linkzip.Link, error) {
		var l linkzip.Link
		err := row.Scan(&l.ID, &l.Code, &l.URL, &l.Visits, &l.CreatedAt)
		return l, err
	})
}

// AddVisits 一个事务里批量累加访问次数
func (s *PostgresStore) AddVisits(ctx context.Context, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}
	defer observe("add_visits", time.Now())
	dbctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return pgx.BeginFunc(dbctx, s.db, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for code, n := range counts {
			b.Queue(`UPDATE links SET visits = visits + $1 WHERE link = $2`, n, code)
		}
		return tx.SendBatch(dbctx, b).Close()
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// UpsertPhishes 已存在的 id 只刷新 updated_at；返回新插入的条数。
func (s *PostgresStore) UpsertPhishes(ctx context.Context, phishes []linkzip.Phish, now time.Time) (int, error) {
	defer observe("upsert_phishes", time.Now())
	inserted := 0
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		for start := 0; start < len(phishes); start += phishBatchSize {
			chunk := phishes[start:min(start+phishBatchSize, len(phishes))]
			b := &pgx.Batch{}
			for _, p := range chunk {
				b.Queue(`
INSERT INTO phishtanks (id, url, phish_detail_url, updated_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at
RETURNING (xmax = 0)`, p.ID, p.URL, p.DetailURL, now)
			}
			br := tx.SendBatch(ctx, b)
			for range chunk {
				var isNew bool
				if err := br.QueryRow().Scan(&isNew); err != nil {
					br.Close()
					return err
				}
				if isNew {
					inserted++
				}
			}
			if err := br.Close(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("upsert phishes: %w", err)
	}
	return inserted, nil
}

// FindPhish 不在黑名单时返回 nil, nil
func (s *PostgresStore) FindPhish(ctx context.Context, url string) (*linkzip.Phish, error) {
	defer observe("find_phish", time.Now())
	dbctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var p linkzip.Phish
	err := s.db.QueryRow(dbctx, `SELECT id, url, phish_detail_url, updated_at FROM phishtanks WHERE url = $1 ORDER BY id LIMIT 1`, url).
		Scan(&p.ID, &p.URL, &p.DetailURL, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) DeleteOldPhishes(ctx context.Context, before time.Time) (int64, error) {
	defer observe("delete_old_phishes", time.Now())
	tag, err := s.db.Exec(ctx, `DELETE FROM phishtanks WHERE updated_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) PhishURLs(ctx context.Context, fn func(url string)) error {
	rows, err := s.db.Query(ctx, `SELECT url FROM phishtanks`)
	if err != nil {
		return err
	}
	defer rows.Close()
	var u string
	_, err = pgx.ForEachRow(rows, []any{&u}, func() error {
		fn(u)
		return nil
	})
	return err
}
