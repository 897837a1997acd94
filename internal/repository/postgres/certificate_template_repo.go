package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eventcertificates/internal/domain"
)

type certificateTemplateRepository struct {
	DB  *sql.DB
	now func() time.Time
}

func NewCertificateTemplateRepository(db *sql.DB) domain.CertificateTemplateRepository {
	return &certificateTemplateRepository{
		DB:  db,
		now: time.Now,
	}
}

func (r *certificateTemplateRepository) Create(ctx context.Context, tpl *domain.CertificateTemplate) error {
	query := `
		INSERT INTO certificate_templates (event_id, template_type, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query, tpl.EventID, tpl.TemplateType, tpl.Active, tpl.CreatedAt, tpl.UpdatedAt).Scan(&tpl.ID)
}

func (r *certificateTemplateRepository) GetActiveByEventID(ctx context.Context, eventID string) (*domain.CertificateTemplate, error) {
	query := `
		SELECT id, event_id, template_type, active, created_at, updated_at
		FROM certificate_templates
		WHERE event_id = $1 AND active = TRUE
		ORDER BY created_at DESC
		LIMIT 1
	`
	tpl := &domain.CertificateTemplate{}
	err := r.DB.QueryRowContext(ctx, query, eventID).Scan(
		&tpl.ID, &tpl.EventID, &tpl.TemplateType, &tpl.Active, &tpl.CreatedAt, &tpl.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	records, err := r.listRecords(ctx, tpl.ID)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	tpl.Records = records
	return tpl, nil
}

func (r *certificateTemplateRepository) listRecords(ctx context.Context, templateID string) ([]*domain.GenerationRecord, error) {
	query := `
		SELECT participant_id, certificate_path, certificate_url, generated_at, sent_at
		FROM certificate_records
		WHERE template_id = $1
		ORDER BY generated_at ASC, participant_id ASC
	`
	rows, err := r.DB.QueryContext(ctx, query, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*domain.GenerationRecord, 0)
	for rows.Next() {
		rec := &domain.GenerationRecord{}
		var sentAt sql.NullTime
		if err := rows.Scan(&rec.ParticipantID, &rec.CertificatePath, &rec.CertificateURL, &rec.GeneratedAt, &sentAt); err != nil {
			return nil, err
		}
		if sentAt.Valid {
			rec.SentAt = &sentAt.Time
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Save upserts every record of the template in one transaction, so a partially written
// batch never becomes visible.
func (r *certificateTemplateRepository) Save(ctx context.Context, tpl *domain.CertificateTemplate) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := r.now()
	if _, err = tx.ExecContext(ctx, `UPDATE certificate_templates SET updated_at = $1 WHERE id = $2`, now, tpl.ID); err != nil {
		return err
	}

	query := `
		INSERT INTO certificate_records (template_id, participant_id, certificate_path, certificate_url, generated_at, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (template_id, participant_id) DO UPDATE
		SET certificate_path = EXCLUDED.certificate_path, certificate_url = EXCLUDED.certificate_url,
			generated_at = EXCLUDED.generated_at, sent_at = EXCLUDED.sent_at
	`
	for _, rec := range tpl.Records {
		var sentAt sql.NullTime
		if rec.SentAt != nil {
			sentAt = sql.NullTime{Time: *rec.SentAt, Valid: true}
		}
		if _, err = tx.ExecContext(ctx, query, tpl.ID, rec.ParticipantID, rec.CertificatePath, rec.CertificateURL, rec.GeneratedAt, sentAt); err != nil {
			return fmt.Errorf("upsert record for participant %s: %w", rec.ParticipantID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	tpl.UpdatedAt = now
	return nil
}
