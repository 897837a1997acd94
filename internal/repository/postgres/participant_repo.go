package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"eventcertificates/internal/domain"
)

type participantRepository struct {
	DB *sql.DB
}

func NewParticipantRepository(db *sql.DB) domain.ParticipantRepository {
	return &participantRepository{
		DB: db,
	}
}

// Create inserts the participant. A second registration of the same email to the event
// returns domain.ErrDuplicateParticipant.
func (r *participantRepository) Create(ctx context.Context, p *domain.Participant) error {
	query := `
		INSERT INTO participants (event_id, name, email, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := r.DB.QueryRowContext(ctx, query, p.EventID, p.Name, p.Email, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		var perr *pq.Error
		if errors.As(err, &perr) && perr.Code == "23505" {
			return domain.ErrDuplicateParticipant
		}
		return err
	}
	return nil
}

func (r *participantRepository) ListByEventID(ctx context.Context, eventID string) ([]*domain.Participant, error) {
	query := `
		SELECT id, event_id, name, email, certificate_sent, certificate_sent_at, created_at
		FROM participants
		WHERE event_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.DB.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]*domain.Participant, 0)
	for rows.Next() {
		p := &domain.Participant{}
		var sentAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.EventID, &p.Name, &p.Email, &p.CertificateSent, &sentAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		if sentAt.Valid {
			p.CertificateSentAt = &sentAt.Time
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return participants, nil
}

// Save persists the participant's certificate status.
func (r *participantRepository) Save(ctx context.Context, p *domain.Participant) error {
	query := `
		UPDATE participants
		SET certificate_sent = $1, certificate_sent_at = $2
		WHERE id = $3
	`
	var sentAt sql.NullTime
	if p.CertificateSentAt != nil {
		sentAt = sql.NullTime{Time: *p.CertificateSentAt, Valid: true}
	}
	result, err := r.DB.ExecContext(ctx, query, p.CertificateSent, sentAt, p.ID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
