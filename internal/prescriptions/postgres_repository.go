package prescriptions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinicdesk/internal/database"
)

const appointmentUniqueIndex = "prescriptions_appointment_id_key"

const prescriptionColumns = `id, patient_id, doctor_id, appointment_id, medicines, instructions, created_at`

// PostgresRepository stores prescriptions in the relational database.
// Medicines live in a JSONB column.
type PostgresRepository struct {
	db database.DB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("prescriptions: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting a mock database for testing.
func NewPostgresRepositoryWithDB(db database.DB) *PostgresRepository {
	if db == nil {
		panic("prescriptions: db required")
	}
	return &PostgresRepository{db: db}
}

// Create relies on the unique index on appointment_id; a concurrent second
// insert fails with ErrAppointmentPrescribed.
func (r *PostgresRepository) Create(ctx context.Context, p *Prescription) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	medicines, err := json.Marshal(p.Medicines)
	if err != nil {
		return fmt.Errorf("prescriptions: marshal medicines: %w", err)
	}
	query := `
		INSERT INTO prescriptions (id, patient_id, doctor_id, appointment_id, medicines, instructions)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err = r.db.QueryRow(ctx, query,
		p.ID,
		p.PatientRecordID,
		p.DoctorAccountID,
		p.AppointmentID,
		medicines,
		p.Instructions,
	).Scan(&p.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, appointmentUniqueIndex) {
			return ErrAppointmentPrescribed
		}
		return fmt.Errorf("prescriptions: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Prescription, error) {
	if !database.IsUUID(id) {
		return nil, ErrPrescriptionNotFound
	}
	return scanPrescriptionRow(r.db.QueryRow(ctx, `SELECT `+prescriptionColumns+` FROM prescriptions WHERE id = $1`, id))
}

func (r *PostgresRepository) GetByAppointmentID(ctx context.Context, appointmentID string) (*Prescription, error) {
	if !database.IsUUID(appointmentID) {
		return nil, ErrPrescriptionNotFound
	}
	return scanPrescriptionRow(r.db.QueryRow(ctx,
		`SELECT `+prescriptionColumns+` FROM prescriptions WHERE appointment_id = $1`, appointmentID))
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Prescription, int, error) {
	where, args := listConditions(filter)

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM prescriptions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("prescriptions: count: %w", err)
	}

	page := filter.Page.Normalize()
	query := fmt.Sprintf(`SELECT %s FROM prescriptions%s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		prescriptionColumns, where, page.Limit, page.Offset())
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("prescriptions: list: %w", err)
	}
	defer rows.Close()

	items := []*Prescription{}
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("prescriptions: list: %w", err)
	}
	return items, int(total), nil
}

func (r *PostgresRepository) Count(ctx context.Context, filter ListFilter) (int, error) {
	where, args := listConditions(filter)
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM prescriptions`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("prescriptions: count: %w", err)
	}
	return int(n), nil
}

func listConditions(filter ListFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.DoctorID != "" {
		args = append(args, filter.DoctorID)
		conds = append(conds, fmt.Sprintf("doctor_id = $%d", len(args)))
	}
	if filter.PatientRecordID != "" {
		args = append(args, filter.PatientRecordID)
		conds = append(conds, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanPrescriptionRow(row pgx.Row) (*Prescription, error) {
	p, err := scanPrescription(row)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrPrescriptionNotFound
		}
		return nil, err
	}
	return p, nil
}

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	var medicines []byte
	if err := row.Scan(
		&p.ID,
		&p.PatientRecordID,
		&p.DoctorAccountID,
		&p.AppointmentID,
		&medicines,
		&p.Instructions,
		&p.CreatedAt,
	); err != nil {
		if database.IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("prescriptions: scan: %w", err)
	}
	if len(medicines) > 0 {
		if err := json.Unmarshal(medicines, &p.Medicines); err != nil {
			return nil, fmt.Errorf("prescriptions: decode medicines: %w", err)
		}
	}
	if p.Medicines == nil {
		p.Medicines = []Medicine{}
	}
	return &p, nil
}
