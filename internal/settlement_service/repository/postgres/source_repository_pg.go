package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/carelink/hospital-settlement/internal/settlement_service/domain"
	"github.com/carelink/hospital-settlement/internal/settlement_service/repository"
)

type pgRegistrationRepository struct {
	logger *slog.Logger
}

func NewPgRegistrationRepository(logger *slog.Logger) repository.RegistrationRepository {
	return &pgRegistrationRepository{logger: logger.With("component", "registration_repository_pg")}
}

func (r *pgRegistrationRepository) GetByID(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.Registration, error) {
	reg := &domain.Registration{}
	err := q.QueryRow(ctx, `
		SELECT id, patient_id, department_id, fee, billable, charge_no, created_at
		FROM registrations WHERE id = $1`, id,
	).Scan(&reg.ID, &reg.PatientID, &reg.DepartmentID, &reg.Fee, &reg.Billable, &reg.ChargeNo, &reg.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("querying registration %s: %w", id, err)
	}
	return reg, nil
}

// MarkBilled attaches the registration to a charge only if it is not already
// attached; losing the conditional update means another charge got there first.
func (r *pgRegistrationRepository) MarkBilled(ctx context.Context, q repository.Querier, id uuid.UUID, chargeNo string) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE registrations SET charge_no = $1 WHERE id = $2 AND charge_no IS NULL`,
		chargeNo, id,
	)
	if err != nil {
		return false, fmt.Errorf("marking registration %s billed: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgRegistrationRepository) ClearBilled(ctx context.Context, q repository.Querier, chargeNo string) error {
	_, err := q.Exec(ctx, `UPDATE registrations SET charge_no = NULL WHERE charge_no = $1`, chargeNo)
	if err != nil {
		return fmt.Errorf("clearing billed registrations for %s: %w", chargeNo, err)
	}
	return nil
}

type pgPrescriptionRepository struct {
	logger *slog.Logger
}

func NewPgPrescriptionRepository(logger *slog.Logger) repository.PrescriptionRepository {
	return &pgPrescriptionRepository{logger: logger.With("component", "prescription_repository_pg")}
}

func (r *pgPrescriptionRepository) GetByID(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.Prescription, error) {
	p := &domain.Prescription{}
	err := q.QueryRow(ctx, `
		SELECT id, patient_id, doctor_id, status, charge_no, created_at
		FROM prescriptions WHERE id = $1`, id,
	).Scan(&p.ID, &p.PatientID, &p.DoctorID, &p.Status, &p.ChargeNo, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("querying prescription %s: %w", id, err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, prescription_id, medicine_id, medicine_name, quantity, unit_price
		FROM prescription_details WHERE prescription_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("querying prescription details for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var d domain.PrescriptionDetail
		if err := rows.Scan(&d.ID, &d.PrescriptionID, &d.MedicineID, &d.MedicineName, &d.Quantity, &d.UnitPrice); err != nil {
			return nil, fmt.Errorf("scanning prescription detail: %w", err)
		}
		p.Details = append(p.Details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *pgPrescriptionRepository) MarkBilled(ctx context.Context, q repository.Querier, id uuid.UUID, chargeNo string) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE prescriptions SET charge_no = $1 WHERE id = $2 AND charge_no IS NULL`,
		chargeNo, id,
	)
	if err != nil {
		return false, fmt.Errorf("marking prescription %s billed: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgPrescriptionRepository) ClearBilled(ctx context.Context, q repository.Querier, chargeNo string) error {
	_, err := q.Exec(ctx, `UPDATE prescriptions SET charge_no = NULL WHERE charge_no = $1`, chargeNo)
	if err != nil {
		return fmt.Errorf("clearing billed prescriptions for %s: %w", chargeNo, err)
	}
	return nil
}

func (r *pgPrescriptionRepository) UpdateStatus(ctx context.Context, q repository.Querier, id uuid.UUID, from, to domain.PrescriptionStatus) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE prescriptions SET status = $1 WHERE id = $2 AND status = $3`,
		to, id, from,
	)
	if err != nil {
		return false, fmt.Errorf("updating prescription %s status %s -> %s: %w", id, from, to, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgPrescriptionRepository) ListIDsByChargeNo(ctx context.Context, q repository.Querier, chargeNo string) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, `SELECT id FROM prescriptions WHERE charge_no = $1 ORDER BY id`, chargeNo)
	if err != nil {
		return nil, fmt.Errorf("listing prescriptions for charge %s: %w", chargeNo, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
