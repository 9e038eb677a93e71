package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/database"
)

const emailUniqueIndex = "accounts_email_lower_key"

const accountColumns = `id, name, email, password_hash, role, is_active, created_at`

// PostgresRepository stores accounts in the relational database.
type PostgresRepository struct {
	db database.DB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("accounts: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting a mock database for testing.
func NewPostgresRepositoryWithDB(db database.DB) *PostgresRepository {
	if db == nil {
		panic("accounts: db required")
	}
	return &PostgresRepository{db: db}
}

// Create inserts a new row. The unique index on lower(email) decides races.
func (r *PostgresRepository) Create(ctx context.Context, account *Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	query := `
		INSERT INTO accounts (id, name, email, password_hash, role, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		account.ID,
		account.Name,
		account.Email,
		account.PasswordHash,
		string(account.Role),
		account.IsActive,
	).Scan(&account.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, emailUniqueIndex) {
			return ErrEmailTaken
		}
		return fmt.Errorf("accounts: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Account, error) {
	if !database.IsUUID(id) {
		return nil, ErrAccountNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccountRow(row)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email)
	return scanAccountRow(row)
}

// GetByIDs batch-fetches accounts; missing ids are simply absent from the map.
func (r *PostgresRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*Account, error) {
	out := make(map[string]*Account, len(ids))
	valid := database.UUIDs(ids)
	if len(valid) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1)`, valid)
	if err != nil {
		return nil, fmt.Errorf("accounts: batch get: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[account.ID] = account
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("accounts: batch get: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Update(ctx context.Context, account *Account) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET role = $2, is_active = $3 WHERE id = $1`,
		account.ID, string(account.Role), account.IsActive,
	)
	if err != nil {
		return fmt.Errorf("accounts: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if !database.IsUUID(id) {
		return ErrAccountNotFound
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("accounts: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Account, int, error) {
	where, args := listConditions(filter)

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("accounts: count: %w", err)
	}

	page := filter.Page.Normalize()
	query := fmt.Sprintf(`SELECT %s FROM accounts%s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		accountColumns, where, page.Limit, page.Offset())
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("accounts: list: %w", err)
	}
	defer rows.Close()

	items := []*Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, account)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("accounts: list: %w", err)
	}
	return items, int(total), nil
}

func (r *PostgresRepository) CountByRole(ctx context.Context, role access.Role) (int, error) {
	var n int64
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM accounts WHERE role = $1 AND is_active`, string(role),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("accounts: count by role: %w", err)
	}
	return int(n), nil
}

func listConditions(filter ListFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		conds = append(conds, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanAccountRow(row pgx.Row) (*Account, error) {
	account, err := scanAccount(row)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var account Account
	var role string
	if err := row.Scan(
		&account.ID,
		&account.Name,
		&account.Email,
		&account.PasswordHash,
		&role,
		&account.IsActive,
		&account.CreatedAt,
	); err != nil {
		if database.IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("accounts: scan: %w", err)
	}
	account.Role = access.Role(role)
	return &account, nil
}
