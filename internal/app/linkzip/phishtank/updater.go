package phishtank

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"linkzip.local/internal/app/linkzip"
)

var ErrDisabled = errors.New("phishtank is disabled")

const (
	DefaultCleanupDays = 5
	upsertChunk        = 1000
)

type Report struct {
	Fetched  int
	Inserted int
	Deleted  int64
}

// Updater 下载 PhishTank 列表写入存储，删除过期条目，刷新 Checker。
type Updater struct {
	client  *Client
	store   linkzip.PhishStore
	checker *Checker
	now     func() time.Time
}

// NewUpdater client 为 nil 表示未启用 PhishTank。
func NewUpdater(client *Client, store linkzip.PhishStore, checker *Checker) *Updater {
	return &Updater{
		client:  client,
		store:   store,
		checker: checker,
		now:     time.Now,
	}
}

func (u *Updater) Enabled() bool {
	return u != nil && u.client != nil && u.store != nil
}

// Update cleanupDays 天内没在列表里出现过的条目会被删掉；<=0 用默认值。
func (u *Updater) Update(ctx context.Context, cleanupDays int) (Report, error) {
	if !u.Enabled() {
		return Report{}, ErrDisabled
	}
	if cleanupDays <= 0 {
		cleanupDays = DefaultCleanupDays
	}

	start := u.now()
	var rep Report
	batch := make([]linkzip.Phish, 0, upsertChunk)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := u.store.UpsertPhishes(ctx, batch, start)
		if err != nil {
			return err
		}
		rep.Inserted += n
		batch = batch[:0]
		return nil
	}

	fetched, err := u.client.Fetch(ctx, func(e Entry) error {
		batch = append(batch, toPhish(e))
		if len(batch) >= upsertChunk {
			return flush()
		}
		return nil
	})
	rep.Fetched = fetched
	if err != nil {
		return rep, err
	}
	if err := flush(); err != nil {
		return rep, err
	}

	rep.Deleted, err = u.store.DeleteOldPhishes(ctx, start.Add(-time.Duration(cleanupDays)*24*time.Hour))
	if err != nil {
		return rep, err
	}

	if u.checker != nil {
		if _, err := u.checker.Rebuild(ctx); err != nil {
			return rep, err
		}
	}
	slog.Info("phishtank updated",
		"fetched", rep.Fetched, "inserted", rep.Inserted, "deleted", rep.Deleted,
		"took", time.Since(start).String())
	return rep, nil
}

// toPhish URL 按短链同样的规则规范化，这样查询时能精确匹配
func toPhish(e Entry) linkzip.Phish {
	u := e.URL
	if n, err := linkzip.NormalizeURL(u); err == nil {
		u = n
	}
	return linkzip.Phish{ID: e.ID, URL: u, DetailURL: e.DetailURL}
}

// Run 启动时先更新一次，之后每 interval 更新一次，直到 ctx 结束。
func (u *Updater) Run(ctx context.Context, interval time.Duration, cleanupDays int) {
	if !u.Enabled() || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := u.Update(ctx, cleanupDays); err != nil && ctx.Err() == nil {
			slog.Error("phishtank update failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
