package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"linkzip.local/internal/app/linkzip"
)

// MemoryStore 进程内存储（DB_TYPE=inmemory），重启即丢。
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*linkzip.Link
	byCode map[string]int64
	byURL  map[string]int64

	phishes map[int64]linkzip.Phish
	// 同一个 url 在 PhishTank 里可能对应多个 phish_id，最后一个 id 过期才删掉这个 url
	phishByURL map[string]map[int64]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:     1,
		byID:       make(map[int64]*linkzip.Link),
		byCode:     make(map[string]int64),
		byURL:      make(map[string]int64),
		phishes:    make(map[int64]linkzip.Phish),
		phishByURL: make(map[string]map[int64]struct{}),
	}
}

func (m *MemoryStore) Insert(_ context.Context, url string, code linkzip.CodeFunc) (linkzip.Link, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byURL[url]; ok {
		return *m.byID[id], false, nil
	}

	// 和数据库序列一样，分配出去的 id 即使插入失败也不再复用
	id := m.nextID
	m.nextID++
	c, err := code(id)
	if err != nil {
		return linkzip.Link{}, false, err
	}

	l := &linkzip.Link{ID: id, Code: c, URL: url, CreatedAt: time.Now().UTC()}
	m.byID[id] = l
	m.byCode[c] = id
	m.byURL[url] = id
	return *l, true, nil
}

func (m *MemoryStore) GetByCode(_ context.Context, code string) (linkzip.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byCode[code]
	if !ok {
		return linkzip.Link{}, linkzip.ErrLinkNotFound
	}
	return *m.byID[id], nil
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]linkzip.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]linkzip.Link, 0, min(limit, len(m.byID)))
	for _, l := range m.byID {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AddVisits 未知短码直接忽略
func (m *MemoryStore) AddVisits(_ context.Context, counts map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, n := range counts {
		if id, ok := m.byCode[code]; ok {
			m.byID[id].Visits += n
		}
	}
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) UpsertPhishes(_ context.Context, phishes []linkzip.Phish, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, p := range phishes {
		if old, ok := m.phishes[p.ID]; ok {
			old.UpdatedAt = now
			m.phishes[p.ID] = old
			continue
		}
		p.UpdatedAt = now
		m.phishes[p.ID] = p
		ids := m.phishByURL[p.URL]
		if ids == nil {
			ids = make(map[int64]struct{})
			m.phishByURL[p.URL] = ids
		}
		ids[p.ID] = struct{}{}
		inserted++
	}
	return inserted, nil
}

func (m *MemoryStore) FindPhish(_ context.Context, url string) (*linkzip.Phish, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.phishByURL[url]
	if len(ids) == 0 {
		return nil, nil
	}
	// 多条时取 id 最小的，保证结果稳定
	first := int64(-1)
	for id := range ids {
		if first < 0 || id < first {
			first = id
		}
	}
	p := m.phishes[first]
	return &p, nil
}

func (m *MemoryStore) DeleteOldPhishes(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, p := range m.phishes {
		if p.UpdatedAt.Before(before) {
			delete(m.phishes, id)
			if ids := m.phishByURL[p.URL]; ids != nil {
				delete(ids, id)
				if len(ids) == 0 {
					delete(m.phishByURL, p.URL)
				}
			}
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) PhishURLs(_ context.Context, fn func(url string)) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for u := range m.phishByURL {
		fn(u)
	}
	return nil
}
