package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/rbac-engine/internal/core/domain"
	"github.com/arklim/rbac-engine/internal/core/port"
	"github.com/arklim/rbac-engine/internal/repository"
)

// SDSetRepository implements separation of duty set persistence. Member role
// names are stored as a JSONB array on the set row.
type SDSetRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSDSetRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewSDSetRepository(exec pgExecutor) *SDSetRepository {
	repo := &SDSetRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *SDSetRepository) WithTx(tx pgx.Tx) *SDSetRepository {
	if tx == nil {
		return r
	}
	return &SDSetRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Get retrieves a separation set by name and kind.
func (r *SDSetRepository) Get(ctx context.Context, contextID, name string, kind domain.SDSetKind) (*domain.SDSet, error) {
	stmt, args, err := r.builder.Select("context_id", "name", "kind", "members", "cardinality", "description").
		From("rbac.sd_sets").
		Where(squirrel.Eq{"context_id": contextID, "name": name, "kind": kind}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select sd set sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)
	set, err := scanSDSet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return set, nil
}

// Create inserts a new separation set.
func (r *SDSetRepository) Create(ctx context.Context, set *domain.SDSet) error {
	members, err := json.Marshal(set.Members)
	if err != nil {
		return fmt.Errorf("encode members: %w", err)
	}

	stmt, args, err := r.builder.Insert("rbac.sd_sets").
		Columns("context_id", "name", "kind", "members", "cardinality", "description").
		Values(set.ContextID, set.Name, set.Kind, members, set.Cardinality, set.Description).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert sd set sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert sd set: %w", err)
	}

	return nil
}

// Update replaces the member list, cardinality, and description of a set.
func (r *SDSetRepository) Update(ctx context.Context, set *domain.SDSet) error {
	members, err := json.Marshal(set.Members)
	if err != nil {
		return fmt.Errorf("encode members: %w", err)
	}

	stmt, args, err := r.builder.Update("rbac.sd_sets").
		Set("members", members).
		Set("cardinality", set.Cardinality).
		Set("description", set.Description).
		Where(squirrel.Eq{"context_id": set.ContextID, "name": set.Name, "kind": set.Kind}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update sd set sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update sd set: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes a separation set.
func (r *SDSetRepository) Delete(ctx context.Context, contextID, name string, kind domain.SDSetKind) error {
	stmt, args, err := r.builder.Delete("rbac.sd_sets").
		Where(squirrel.Eq{"context_id": contextID, "name": name, "kind": kind}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete sd set sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete sd set: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListByKind returns every set of the given kind in the tenant scope.
func (r *SDSetRepository) ListByKind(ctx context.Context, contextID string, kind domain.SDSetKind) ([]domain.SDSet, error) {
	stmt, args, err := r.builder.Select("context_id", "name", "kind", "members", "cardinality", "description").
		From("rbac.sd_sets").
		Where(squirrel.Eq{"context_id": contextID, "kind": kind}).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sd sets sql: %w", err)
	}

	return r.querySets(ctx, stmt, args)
}

// ListByMember returns sets of the given kind containing any of the given
// roles, using the JSONB containment operator per role.
func (r *SDSetRepository) ListByMember(ctx context.Context, contextID string, kind domain.SDSetKind, roles []string) ([]domain.SDSet, error) {
	if len(roles) == 0 {
		return []domain.SDSet{}, nil
	}

	member := squirrel.Or{}
	for _, role := range roles {
		encoded, err := json.Marshal([]string{role})
		if err != nil {
			return nil, fmt.Errorf("encode member filter: %w", err)
		}
		member = append(member, squirrel.Expr("members @> ?", encoded))
	}

	stmt, args, err := r.builder.Select("context_id", "name", "kind", "members", "cardinality", "description").
		From("rbac.sd_sets").
		Where(squirrel.Eq{"context_id": contextID, "kind": kind}).
		Where(member).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sd sets by member sql: %w", err)
	}

	return r.querySets(ctx, stmt, args)
}

func (r *SDSetRepository) querySets(ctx context.Context, stmt string, args []any) ([]domain.SDSet, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query sd sets: %w", err)
	}
	defer rows.Close()

	sets := make([]domain.SDSet, 0)
	for rows.Next() {
		set, err := scanSDSet(rows)
		if err != nil {
			return nil, err
		}
		sets = append(sets, *set)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sd sets: %w", err)
	}

	return sets, nil
}

func scanSDSet(row pgx.Row) (*domain.SDSet, error) {
	var (
		set         domain.SDSet
		members     []byte
		description sql.NullString
	)
	if err := row.Scan(&set.ContextID, &set.Name, &set.Kind, &members, &set.Cardinality, &description); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan sd set: %w", err)
	}
	if len(members) > 0 {
		if err := json.Unmarshal(members, &set.Members); err != nil {
			return nil, fmt.Errorf("decode members: %w", err)
		}
	}
	if description.Valid {
		set.Description = &description.String
	}
	return &set, nil
}

var _ port.SDSetRepository = (*SDSetRepository)(nil)
