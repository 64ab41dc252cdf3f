package core

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hzhu212/data-monitor/model"
)

// PoolRegistry is the process-wide mapping from datasource name to a
// blocking connection pool. A pool is created lazily on first use and
// lives until Close is called; database/sql's own SetMaxOpenConns is the
// Go-native equivalent of the reference tool's
// DBUtils.PooledDB(blocking=True, maxconnections=N): a caller that
// exhausts the pool blocks inside QueryContext/ExecContext rather than
// erroring.
type PoolRegistry struct {
	mu             sync.Mutex
	pools          map[string]*sql.DB
	maxConnections int
}

// NewPoolRegistry returns an empty PoolRegistry that caps every pool it
// creates at maxConnections open connections.
func NewPoolRegistry(maxConnections int) *PoolRegistry {
	if maxConnections <= 0 {
		maxConnections = 10
	}
	return &PoolRegistry{pools: map[string]*sql.DB{}, maxConnections: maxConnections}
}

// Get returns the *sql.DB for ds, creating and caching it on first call.
func (p *PoolRegistry) Get(ds *model.DatasourceConfig) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if db, ok := p.pools[ds.Name]; ok {
		return db, nil
	}

	db, err := sql.Open("pgx", dsnFor(ds))
	if err != nil {
		return nil, fmt.Errorf("opening pool for datasource %q: %w", ds.Name, err)
	}
	db.SetMaxOpenConns(p.maxConnections)
	db.SetMaxIdleConns(p.maxConnections)
	p.pools[ds.Name] = db
	return db, nil
}

func dsnFor(ds *model.DatasourceConfig) string {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s", ds.User, ds.Password, ds.Host, ds.Port, ds.Database)
	if ds.Charset != "" {
		dsn += "?client_encoding=" + ds.Charset
	}
	return dsn
}

// Close tears down every pool the registry has created. Called once
// during shutdown, after the scheduler's worker pool has drained.
func (p *PoolRegistry) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for name, db := range p.pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing pool for datasource %q: %w", name, err)
		}
	}
	p.pools = map[string]*sql.DB{}
	return firstErr
}
