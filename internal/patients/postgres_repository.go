package patients

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinicdesk/internal/database"
)

const accountLinkIndex = "patients_account_id_key"

const recordColumns = `id, name, age, gender, contact, email, account_id, registered_by, created_at, updated_at`

// PostgresRepository stores patient records in the relational database.
type PostgresRepository struct {
	db database.DB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("patients: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting a mock database for testing.
func NewPostgresRepositoryWithDB(db database.DB) *PostgresRepository {
	if db == nil {
		panic("patients: db required")
	}
	return &PostgresRepository{db: db}
}

// Create inserts a row. The partial unique index on account_id rejects a
// second record for the same account.
func (r *PostgresRepository) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	query := `
		INSERT INTO patients (id, name, age, gender, contact, email, account_id, registered_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		rec.ID,
		rec.Name,
		rec.Age,
		genderArg(rec.Gender),
		rec.Contact,
		rec.Email,
		rec.AccountID,
		nullable(rec.RegisteredByAccountID),
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, accountLinkIndex) {
			return ErrAccountAlreadyLinked
		}
		return fmt.Errorf("patients: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Record, error) {
	if !database.IsUUID(id) {
		return nil, ErrRecordNotFound
	}
	return scanRecordRow(r.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM patients WHERE id = $1`, id))
}

func (r *PostgresRepository) GetByAccountID(ctx context.Context, accountID string) (*Record, error) {
	if !database.IsUUID(accountID) {
		return nil, ErrRecordNotFound
	}
	return scanRecordRow(r.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM patients WHERE account_id = $1`, accountID))
}

func (r *PostgresRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*Record, error) {
	out := make(map[string]*Record, len(ids))
	valid := database.UUIDs(ids)
	if len(valid) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+recordColumns+` FROM patients WHERE id = ANY($1)`, valid)
	if err != nil {
		return nil, fmt.Errorf("patients: batch get: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("patients: batch get: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Update(ctx context.Context, rec *Record) error {
	query := `
		UPDATE patients
		SET name = $2, age = $3, gender = $4, contact = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query, rec.ID, rec.Name, rec.Age, genderArg(rec.Gender), rec.Contact).Scan(&rec.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return ErrRecordNotFound
		}
		return fmt.Errorf("patients: update: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Record, int, error) {
	var conds []string
	var args []any
	if filter.Gender != "" {
		args = append(args, string(filter.Gender))
		conds = append(conds, fmt.Sprintf("gender = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("patients: count: %w", err)
	}

	page := filter.Page.Normalize()
	query := fmt.Sprintf(`SELECT %s FROM patients%s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		recordColumns, where, page.Limit, page.Offset())
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("patients: list: %w", err)
	}
	defer rows.Close()

	items := []*Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("patients: list: %w", err)
	}
	return items, int(total), nil
}

func (r *PostgresRepository) Count(ctx context.Context, from, to time.Time) (int, error) {
	var conds []string
	var args []any
	if !from.IsZero() {
		args = append(args, from)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !to.IsZero() {
		args = append(args, to)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}
	query := `SELECT COUNT(*) FROM patients`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	var n int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("patients: count: %w", err)
	}
	return int(n), nil
}

func scanRecordRow(row pgx.Row) (*Record, error) {
	rec, err := scanRecord(row)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var gender, registeredBy *string
	if err := row.Scan(
		&rec.ID,
		&rec.Name,
		&rec.Age,
		&gender,
		&rec.Contact,
		&rec.Email,
		&rec.AccountID,
		&registeredBy,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		if database.IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("patients: scan: %w", err)
	}
	if gender != nil {
		g := Gender(*gender)
		rec.Gender = &g
	}
	if registeredBy != nil {
		rec.RegisteredByAccountID = *registeredBy
	}
	return &rec, nil
}

func genderArg(g *Gender) *string {
	if g == nil {
		return nil
	}
	s := string(*g)
	return &s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
