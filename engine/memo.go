package engine

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"pdfsift/permission"
	"pdfsift/verdict"
)

// verdictMemo remembers tool results by content digest so byte-identical
// files under different paths run each tool once. An empty digest bypasses
// the memo. mu guards both maps; it is never held while a tool runs.
type verdictMemo struct {
	group singleflight.Group

	mu    sync.Mutex
	codes map[string]verdict.Code
	perms map[string]permission.Record
}

func newVerdictMemo() *verdictMemo {
	return &verdictMemo{
		codes: make(map[string]verdict.Code),
		perms: make(map[string]permission.Record),
	}
}

func (m *verdictMemo) code(digest string, run func() (verdict.Code, error)) (verdict.Code, error) {
	if digest == "" {
		return run()
	}
	m.mu.Lock()
	c, ok := m.codes[digest]
	m.mu.Unlock()
	if ok {
		return c, nil
	}
	v, err, _ := m.group.Do("sig:"+digest, func() (interface{}, error) {
		c, err := run()
		if err != nil {
			return c, err
		}
		m.mu.Lock()
		m.codes[digest] = c
		m.mu.Unlock()
		return c, nil
	})
	return v.(verdict.Code), err
}

func (m *verdictMemo) permissions(digest string, run func() permission.Record) permission.Record {
	if digest == "" {
		return run()
	}
	m.mu.Lock()
	r, ok := m.perms[digest]
	m.mu.Unlock()
	if ok {
		return r
	}
	v, _, _ := m.group.Do("perm:"+digest, func() (interface{}, error) {
		r := run()
		m.mu.Lock()
		m.perms[digest] = r
		m.mu.Unlock()
		return r, nil
	})
	return v.(permission.Record)
}
