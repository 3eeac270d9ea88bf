package dispute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/appealflow/appealflow/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const disputeCols = `id, patient_id, group_id, created_by, status,
	requested_service, service_code, diagnosis_code, requested_date, urgency, clinical_justification,
	denial_date, denial_reason, denial_code, denial_document, denial_type,
	response_deadline, urgent_response_deadline, external_review_deadline,
	deadline_flags, validation_checks, overall_validation_status, can_submit, last_validated,
	created_at, updated_at, deleted_at`

func scanDispute(row pgx.Row) (*Dispute, error) {
	var d Dispute
	var groupID *uuid.UUID
	var flagsJSON, checksJSON []byte
	err := row.Scan(
		&d.ID, &d.PatientID, &groupID, &d.CreatedBy, &d.Status,
		&d.Request.RequestedService, &d.Request.ServiceCode, &d.Request.DiagnosisCode,
		&d.Request.RequestedDate, &d.Request.Urgency, &d.Request.ClinicalJustification,
		&d.Denial.DenialDate, &d.Denial.DenialReason, &d.Denial.DenialCode,
		&d.Denial.DenialDocument, &d.Denial.DenialType,
		&d.Deadlines.ResponseDeadline, &d.Deadlines.UrgentResponseDeadline, &d.Deadlines.ExternalReviewDeadline,
		&flagsJSON, &checksJSON,
		&d.Validation.OverallStatus, &d.Validation.CanSubmit, &d.Validation.LastValidated,
		&d.CreatedAt, &d.UpdatedAt, &d.DeletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if groupID != nil {
		d.GroupID = *groupID
	}
	if len(flagsJSON) > 0 {
		if err := json.Unmarshal(flagsJSON, &d.Deadlines.Flags); err != nil {
			return nil, fmt.Errorf("decode deadline flags: %w", err)
		}
	}
	if len(checksJSON) > 0 {
		if err := json.Unmarshal(checksJSON, &d.Validation.Checks); err != nil {
			return nil, fmt.Errorf("decode validation checks: %w", err)
		}
	}
	return &d, nil
}

func marshalFlags(flags []DeadlineFlag) ([]byte, error) {
	if flags == nil {
		flags = []DeadlineFlag{}
	}
	return json.Marshal(flags)
}

func marshalChecks(checks []CheckResult) ([]byte, error) {
	if checks == nil {
		checks = []CheckResult{}
	}
	return json.Marshal(checks)
}

func nullableUUID(id uuid.UUID) interface{} {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func (r *repoPG) Create(ctx context.Context, d *Dispute) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	flagsJSON, err := marshalFlags(d.Deadlines.Flags)
	if err != nil {
		return fmt.Errorf("encode deadline flags: %w", err)
	}
	checksJSON, err := marshalChecks(d.Validation.Checks)
	if err != nil {
		return fmt.Errorf("encode validation checks: %w", err)
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO disputes (id, patient_id, group_id, created_by, status,
			requested_service, service_code, diagnosis_code, requested_date, urgency, clinical_justification,
			denial_date, denial_reason, denial_code, denial_document, denial_type,
			response_deadline, urgent_response_deadline, external_review_deadline,
			deadline_flags, validation_checks, overall_validation_status, can_submit, last_validated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
		RETURNING created_at, updated_at`,
		d.ID, d.PatientID, nullableUUID(d.GroupID), d.CreatedBy, d.Status,
		d.Request.RequestedService, d.Request.ServiceCode, d.Request.DiagnosisCode,
		d.Request.RequestedDate, d.Request.Urgency, d.Request.ClinicalJustification,
		d.Denial.DenialDate, d.Denial.DenialReason, d.Denial.DenialCode,
		d.Denial.DenialDocument, d.Denial.DenialType,
		d.Deadlines.ResponseDeadline, d.Deadlines.UrgentResponseDeadline, d.Deadlines.ExternalReviewDeadline,
		flagsJSON, checksJSON, d.Validation.OverallStatus, d.Validation.CanSubmit, d.Validation.LastValidated,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Dispute, error) {
	return scanDispute(r.conn(ctx).QueryRow(ctx,
		`SELECT `+disputeCols+` FROM disputes WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (r *repoPG) Update(ctx context.Context, d *Dispute) error {
	flagsJSON, err := marshalFlags(d.Deadlines.Flags)
	if err != nil {
		return fmt.Errorf("encode deadline flags: %w", err)
	}
	checksJSON, err := marshalChecks(d.Validation.Checks)
	if err != nil {
		return fmt.Errorf("encode validation checks: %w", err)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE disputes SET
			group_id=$2, status=$3,
			requested_service=$4, service_code=$5, diagnosis_code=$6, requested_date=$7, urgency=$8, clinical_justification=$9,
			denial_date=$10, denial_reason=$11, denial_code=$12, denial_document=$13, denial_type=$14,
			response_deadline=$15, urgent_response_deadline=$16, external_review_deadline=$17,
			deadline_flags=$18, validation_checks=$19, overall_validation_status=$20, can_submit=$21, last_validated=$22,
			updated_at=NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		d.ID, nullableUUID(d.GroupID), d.Status,
		d.Request.RequestedService, d.Request.ServiceCode, d.Request.DiagnosisCode,
		d.Request.RequestedDate, d.Request.Urgency, d.Request.ClinicalJustification,
		d.Denial.DenialDate, d.Denial.DenialReason, d.Denial.DenialCode,
		d.Denial.DenialDocument, d.Denial.DenialType,
		d.Deadlines.ResponseDeadline, d.Deadlines.UrgentResponseDeadline, d.Deadlines.ExternalReviewDeadline,
		flagsJSON, checksJSON, d.Validation.OverallStatus, d.Validation.CanSubmit, d.Validation.LastValidated,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) UpdateFlags(ctx context.Context, d *Dispute) error {
	flagsJSON, err := marshalFlags(d.Deadlines.Flags)
	if err != nil {
		return fmt.Errorf("encode deadline flags: %w", err)
	}
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE disputes SET deadline_flags=$2, updated_at=NOW() WHERE id = $1 AND deleted_at IS NULL`,
		d.ID, flagsJSON)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE disputes SET deleted_at=NOW(), updated_at=NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, status string, patientID uuid.UUID, limit, offset int) ([]*Dispute, int, error) {
	where := "deleted_at IS NULL"
	args := []interface{}{}
	if status != "" {
		args = append(args, status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if patientID != uuid.Nil {
		args = append(args, patientID)
		where += fmt.Sprintf(" AND patient_id = $%d", len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM disputes WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	sql := fmt.Sprintf(`SELECT %s FROM disputes WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		disputeCols, where, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectDisputes(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

var activeStatusList = []string{StatusPending, StatusInProgress, StatusSubmitted, StatusUnderReview}

func (r *repoPG) ListActive(ctx context.Context) ([]*Dispute, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+disputeCols+` FROM disputes
		 WHERE status = ANY($1) AND deleted_at IS NULL
		 ORDER BY response_deadline`, activeStatusList)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDisputes(rows)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, since time.Time) ([]*Dispute, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+disputeCols+` FROM disputes
		 WHERE patient_id = $1 AND created_at >= $2 AND deleted_at IS NULL
		 ORDER BY created_at DESC`, patientID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDisputes(rows)
}

func collectDisputes(rows pgx.Rows) ([]*Dispute, error) {
	var items []*Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}
