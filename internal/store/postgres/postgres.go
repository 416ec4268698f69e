// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/workq/internal/model"
	"github.com/alfredjeanlab/workq/internal/query"
	"github.com/alfredjeanlab/workq/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

var _ store.Store = (*PostgresStore)(nil)

// Pool sizes the connection pool. Zero fields keep the database/sql
// defaults.
type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// New connects to databaseURL and brings the schema up to date before
// returning. The pool is shared by the store and the query engine.
func New(ctx context.Context, databaseURL string, pool Pool) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	version, err := migrateUp(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("database schema ready", "version", version)

	return &PostgresStore{db: db}, nil
}

// NewWithDB wraps an already-open database without running migrations.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// migrateUp applies pending migrations and reports the resulting schema
// version.
func migrateUp(db *sql.DB) (uint, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "workq_schema_migrations"})
	if err != nil {
		return 0, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return 0, fmt.Errorf("migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return 0, fmt.Errorf("schema version %d is dirty; fix it by hand and rerun", version)
	}
	return version, nil
}

// DB returns the connection pool, shared with the query engine.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateProject(ctx context.Context, p *model.Project) error {
	return queryCreateProject(ctx, s.db, p)
}

func (s *PostgresStore) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	return queryGetProject(ctx, s.db, id)
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]*model.Project, error) {
	return queryListProjects(ctx, s.db)
}

func (s *PostgresStore) ListPublicProjectIDs(ctx context.Context) ([]int64, error) {
	return queryListPublicProjectIDs(ctx, s.db)
}

func (s *PostgresStore) SetProjectActive(ctx context.Context, id int64, active bool) error {
	return querySetProjectActive(ctx, s.db, id, active)
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	return queryCreateUser(ctx, s.db, u)
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return queryGetUser(ctx, s.db, id)
}

func (s *PostgresStore) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return queryGetUserByLogin(ctx, s.db, login)
}

func (s *PostgresStore) CreateRole(ctx context.Context, r *model.Role) error {
	return queryCreateRole(ctx, s.db, r)
}

func (s *PostgresStore) ListRoles(ctx context.Context) ([]*model.Role, error) {
	return queryListRoles(ctx, s.db)
}

func (s *PostgresStore) CreateMembership(ctx context.Context, m *model.Membership) error {
	return queryCreateMembership(ctx, s.db, m)
}

func (s *PostgresStore) ListMembershipsByUser(ctx context.Context, userID int64) ([]*model.Membership, error) {
	return queryListMembershipsByUser(ctx, s.db, userID)
}

func (s *PostgresStore) ListMembershipsByProject(ctx context.Context, projectID int64) ([]*model.Membership, error) {
	return queryListMembershipsByProject(ctx, s.db, projectID)
}

func (s *PostgresStore) ListStatuses(ctx context.Context) ([]*model.Status, error) {
	return queryListStatuses(ctx, s.db)
}

func (s *PostgresStore) CreateWorkPackage(ctx context.Context, wp *model.WorkPackage) error {
	return queryCreateWorkPackage(ctx, s.db, wp)
}

func (s *PostgresStore) GetWorkPackage(ctx context.Context, id int64) (*model.WorkPackage, error) {
	return queryGetWorkPackage(ctx, s.db, id)
}

func (s *PostgresStore) CreateCustomField(ctx context.Context, cf *model.CustomField) error {
	return queryCreateCustomField(ctx, s.db, cf)
}

func (s *PostgresStore) ListCustomFields(ctx context.Context) ([]*model.CustomField, error) {
	return queryListCustomFields(ctx, s.db)
}

func (s *PostgresStore) CreateQuery(ctx context.Context, q *query.Query) error {
	return queryCreateQuery(ctx, s.db, q)
}

func (s *PostgresStore) GetQuery(ctx context.Context, id int64) (*query.Query, error) {
	return queryGetQuery(ctx, s.db, id)
}

func (s *PostgresStore) ListVisibleQueries(ctx context.Context, userID int64, projectID *int64) ([]*query.Query, error) {
	return queryListVisibleQueries(ctx, s.db, userID, projectID)
}

func (s *PostgresStore) ListAllQueries(ctx context.Context) ([]*query.Query, error) {
	return queryListAllQueries(ctx, s.db)
}

func (s *PostgresStore) ReplaceQuery(ctx context.Context, q *query.Query) error {
	return queryReplaceQuery(ctx, s.db, q)
}

func (s *PostgresStore) DeleteQuery(ctx context.Context, id int64) error {
	return queryDeleteQuery(ctx, s.db, id)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateProject(ctx context.Context, p *model.Project) error {
	return queryCreateProject(ctx, s.tx, p)
}

func (s *txStore) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	return queryGetProject(ctx, s.tx, id)
}

func (s *txStore) ListProjects(ctx context.Context) ([]*model.Project, error) {
	return queryListProjects(ctx, s.tx)
}

func (s *txStore) ListPublicProjectIDs(ctx context.Context) ([]int64, error) {
	return queryListPublicProjectIDs(ctx, s.tx)
}

func (s *txStore) SetProjectActive(ctx context.Context, id int64, active bool) error {
	return querySetProjectActive(ctx, s.tx, id, active)
}

func (s *txStore) CreateUser(ctx context.Context, u *model.User) error {
	return queryCreateUser(ctx, s.tx, u)
}

func (s *txStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return queryGetUser(ctx, s.tx, id)
}

func (s *txStore) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return queryGetUserByLogin(ctx, s.tx, login)
}

func (s *txStore) CreateRole(ctx context.Context, r *model.Role) error {
	return queryCreateRole(ctx, s.tx, r)
}

func (s *txStore) ListRoles(ctx context.Context) ([]*model.Role, error) {
	return queryListRoles(ctx, s.tx)
}

func (s *txStore) CreateMembership(ctx context.Context, m *model.Membership) error {
	return queryCreateMembership(ctx, s.tx, m)
}

func (s *txStore) ListMembershipsByUser(ctx context.Context, userID int64) ([]*model.Membership, error) {
	return queryListMembershipsByUser(ctx, s.tx, userID)
}

func (s *txStore) ListMembershipsByProject(ctx context.Context, projectID int64) ([]*model.Membership, error) {
	return queryListMembershipsByProject(ctx, s.tx, projectID)
}

func (s *txStore) ListStatuses(ctx context.Context) ([]*model.Status, error) {
	return queryListStatuses(ctx, s.tx)
}

func (s *txStore) CreateWorkPackage(ctx context.Context, wp *model.WorkPackage) error {
	return queryCreateWorkPackage(ctx, s.tx, wp)
}

func (s *txStore) GetWorkPackage(ctx context.Context, id int64) (*model.WorkPackage, error) {
	return queryGetWorkPackage(ctx, s.tx, id)
}

func (s *txStore) CreateCustomField(ctx context.Context, cf *model.CustomField) error {
	return queryCreateCustomField(ctx, s.tx, cf)
}

func (s *txStore) ListCustomFields(ctx context.Context) ([]*model.CustomField, error) {
	return queryListCustomFields(ctx, s.tx)
}

func (s *txStore) CreateQuery(ctx context.Context, q *query.Query) error {
	return queryCreateQuery(ctx, s.tx, q)
}

func (s *txStore) GetQuery(ctx context.Context, id int64) (*query.Query, error) {
	return queryGetQuery(ctx, s.tx, id)
}

func (s *txStore) ListVisibleQueries(ctx context.Context, userID int64, projectID *int64) ([]*query.Query, error) {
	return queryListVisibleQueries(ctx, s.tx, userID, projectID)
}

func (s *txStore) ListAllQueries(ctx context.Context) ([]*query.Query, error) {
	return queryListAllQueries(ctx, s.tx)
}

func (s *txStore) ReplaceQuery(ctx context.Context, q *query.Query) error {
	return queryReplaceQuery(ctx, s.tx, q)
}

func (s *txStore) DeleteQuery(ctx context.Context, id int64) error {
	return queryDeleteQuery(ctx, s.tx, id)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
