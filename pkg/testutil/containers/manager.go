//go:build integration

// Package containers starts the backing services integration suites run
// against. One container of each kind is shared by every suite in a test
// binary; suites isolate themselves with TruncateTables or FlushAll.
package containers

import (
	"sync"
	"testing"
)

// Manager lazily starts and hands out shared containers.
type Manager struct {
	pgOnce    sync.Once
	pg        *PostgresContainer
	pgErr     string
	redisOnce sync.Once
	redis     *RedisContainer
	redisErr  string
}

var (
	managerOnce sync.Once
	manager     *Manager
)

// GetManager returns the process-wide container manager.
func GetManager() *Manager {
	managerOnce.Do(func() {
		manager = &Manager{}
	})
	return manager
}

// GetPostgres returns the shared Postgres container, starting it on first use.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	m.pgOnce.Do(func() {
		pg, err := startPostgres()
		if err != nil {
			m.pgErr = err.Error()
			return
		}
		m.pg = pg
	})
	if m.pg == nil {
		t.Fatalf("postgres container unavailable: %s", m.pgErr)
	}
	return m.pg
}

// GetRedis returns the shared Redis container, starting it on first use.
func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	m.redisOnce.Do(func() {
		rc, err := startRedis()
		if err != nil {
			m.redisErr = err.Error()
			return
		}
		m.redis = rc
	})
	if m.redis == nil {
		t.Fatalf("redis container unavailable: %s", m.redisErr)
	}
	return m.redis
}
