package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/database"
)

const appointmentColumns = `id, patient_id, doctor_id, scheduled_at, reason, status, booked_by_role, created_by, created_at, updated_at`

// PostgresRepository stores appointments in the relational database.
type PostgresRepository struct {
	db database.DB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting a mock database for testing.
func NewPostgresRepositoryWithDB(db database.DB) *PostgresRepository {
	if db == nil {
		panic("appointments: db required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, appt *Appointment) error {
	if appt.ID == "" {
		appt.ID = uuid.New().String()
	}
	query := `
		INSERT INTO appointments (id, patient_id, doctor_id, scheduled_at, reason, status, booked_by_role, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		appt.ID,
		appt.PatientRecordID,
		appt.DoctorAccountID,
		appt.ScheduledAt,
		appt.Reason,
		string(appt.Status),
		string(appt.BookedByRole),
		appt.CreatedByAccountID,
	).Scan(&appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("appointments: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	if !database.IsUUID(id) {
		return nil, ErrAppointmentNotFound
	}
	return scanAppointmentRow(r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
}

func (r *PostgresRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*Appointment, error) {
	out := make(map[string]*Appointment, len(ids))
	valid := database.UUIDs(ids)
	if len(valid) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ANY($1)`, valid)
	if err != nil {
		return nil, fmt.Errorf("appointments: batch get: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out[appt.ID] = appt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: batch get: %w", err)
	}
	return out, nil
}

// UpdateStatus is a compare-and-set on the status column. A lost race is
// reported as ErrStatusChanged so the caller can re-read and explain.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, from, to Status) (*Appointment, error) {
	if !database.IsUUID(id) {
		return nil, ErrAppointmentNotFound
	}
	query := `
		UPDATE appointments
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + appointmentColumns
	appt, err := scanAppointmentRow(r.db.QueryRow(ctx, query, id, string(from), string(to)))
	if err == nil {
		return appt, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("appointments: update status: %w", err)
	}
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrStatusChanged
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if !database.IsUUID(id) {
		return ErrAppointmentNotFound
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("appointments: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Appointment, int, error) {
	where, args := listConditions(filter)

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("appointments: count: %w", err)
	}

	page := filter.Page.Normalize()
	query := fmt.Sprintf(`SELECT %s FROM appointments%s ORDER BY scheduled_at DESC, created_at DESC, id DESC LIMIT %d OFFSET %d`,
		appointmentColumns, where, page.Limit, page.Offset())
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()

	items := []*Appointment{}
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("appointments: list: %w", err)
	}
	return items, int(total), nil
}

func (r *PostgresRepository) Count(ctx context.Context, filter ListFilter) (int, error) {
	where, args := listConditions(filter)
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("appointments: count: %w", err)
	}
	return int(n), nil
}

func (r *PostgresRepository) DistinctPatientIDs(ctx context.Context, doctorID string) ([]string, error) {
	ids := []string{}
	if !database.IsUUID(doctorID) {
		return ids, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT patient_id FROM appointments WHERE doctor_id = $1 ORDER BY patient_id`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("appointments: distinct patients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("appointments: distinct patients: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: distinct patients: %w", err)
	}
	return ids, nil
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
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		args = append(args, statuses)
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conds = append(conds, fmt.Sprintf("scheduled_at >= $%d", len(args)))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until)
		conds = append(conds, fmt.Sprintf("scheduled_at < $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanAppointmentRow(row pgx.Row) (*Appointment, error) {
	appt, err := scanAppointment(row)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return appt, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var appt Appointment
	var status, bookedBy string
	if err := row.Scan(
		&appt.ID,
		&appt.PatientRecordID,
		&appt.DoctorAccountID,
		&appt.ScheduledAt,
		&appt.Reason,
		&status,
		&bookedBy,
		&appt.CreatedByAccountID,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	); err != nil {
		if database.IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("appointments: scan: %w", err)
	}
	appt.Status = Status(status)
	appt.BookedByRole = access.Role(bookedBy)
	return &appt, nil
}
