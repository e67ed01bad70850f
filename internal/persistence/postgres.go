package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Postgres driver

	"newscast/internal/vectorstore"
)

// PostgresDB implements Database against PostgreSQL + pgvector.
type PostgresDB struct {
	db       *sql.DB
	articles *postgresArticleRepo
	clusters *postgresClusterRepo
	episodes *postgresEpisodeRepo
	segments *postgresSegmentRepo
	sources  *postgresSourceRefRepo
	users    *postgresUserRepo
}

// PoolConfig configures the connection pool, mirroring the pool options
// of config.DatabaseConfig.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewPostgresDB opens a pooled connection and verifies it with a ping.
func NewPostgresDB(dsn string, pool PoolConfig) (*PostgresDB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = 25
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = 5
	}
	if pool.ConnMaxLifetime <= 0 {
		pool.ConnMaxLifetime = time.Hour
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	pg := &PostgresDB{db: db}
	pg.articles = &postgresArticleRepo{db: db, store: vectorstore.NewPgVectorStore(db)}
	pg.clusters = &postgresClusterRepo{db: db}
	pg.episodes = &postgresEpisodeRepo{db: db}
	pg.segments = &postgresSegmentRepo{db: db}
	pg.sources = &postgresSourceRefRepo{db: db}
	pg.users = &postgresUserRepo{db: db}
	return pg, nil
}

func (p *PostgresDB) Articles() ArticleRepository                 { return p.articles }
func (p *PostgresDB) Clusters() ClusterRepository                 { return p.clusters }
func (p *PostgresDB) Episodes() EpisodeRepository                 { return p.episodes }
func (p *PostgresDB) Segments() EpisodeSegmentRepository          { return p.segments }
func (p *PostgresDB) SourceReferences() SourceReferenceRepository { return p.sources }
func (p *PostgresDB) Users() UserRepository                       { return p.users }

func (p *PostgresDB) Close() error                     { return p.db.Close() }
func (p *PostgresDB) Ping(ctx context.Context) error   { return p.db.PingContext(ctx) }

// BeginTx starts a transaction scoping the Article+Cluster repos used by
// the clustering pipeline's single atomic commit (spec §4.1 step 7).
func (p *PostgresDB) BeginTx(ctx context.Context) (Transaction, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &postgresTx{
		tx:       tx,
		articles: &postgresArticleRepo{db: p.db, tx: tx},
		clusters: &postgresClusterRepo{db: p.db, tx: tx},
	}, nil
}

type postgresTx struct {
	tx       *sql.Tx
	articles ArticleRepository
	clusters ClusterRepository
}

func (t *postgresTx) Commit() error                 { return t.tx.Commit() }
func (t *postgresTx) Rollback() error                { return t.tx.Rollback() }
func (t *postgresTx) Articles() ArticleRepository    { return t.articles }
func (t *postgresTx) Clusters() ClusterRepository    { return t.clusters }

// queryer abstracts over *sql.DB and *sql.Tx so each repo can run either
// transactionally or directly, following the donor's query() accessor
// pattern.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}
