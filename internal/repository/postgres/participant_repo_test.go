package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"eventcertificates/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestParticipantRepository_Create(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		mock    func(mock sqlmock.Sqlmock)
		wantID  string
		wantErr error
	}{
		{
			name: "success",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO participants \(event_id, name, email, created_at\)`).
					WithArgs("ev-1", "Ada", "ada@example.com", created).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p-1"))
			},
			wantID: "p-1",
		},
		{
			name: "unique violation returns ErrDuplicateParticipant",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO participants`).
					WillReturnError(&pq.Error{Code: "23505"})
			},
			wantErr: domain.ErrDuplicateParticipant,
		},
		{
			name: "db error",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO participants`).
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: sql.ErrConnDone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			p := domain.NewParticipant("ev-1", "Ada", "ada@example.com", created)
			err = NewParticipantRepository(db).Create(ctx, p)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantID, p.ID)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestParticipantRepository_ListByEventID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	sentAt := time.Date(2025, 3, 10, 19, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, event_id, name, email, certificate_sent, certificate_sent_at, created_at`).
		WithArgs("ev-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "name", "email", "certificate_sent", "certificate_sent_at", "created_at"}).
			AddRow("p-1", "ev-1", "Ada", "ada@example.com", true, sentAt, created).
			AddRow("p-2", "ev-1", "Linus", "linus@example.com", false, nil, created))

	got, err := NewParticipantRepository(db).ListByEventID(context.Background(), "ev-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[0].CertificateSent)
	require.NotNil(t, got[0].CertificateSentAt)
	require.Equal(t, sentAt, *got[0].CertificateSentAt)
	require.False(t, got[1].CertificateSent)
	require.Nil(t, got[1].CertificateSentAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantRepository_ListByEventID_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM participants`).WillReturnError(sql.ErrConnDone)

	got, err := NewParticipantRepository(db).ListByEventID(context.Background(), "ev-1")
	require.ErrorIs(t, err, sql.ErrConnDone)
	require.Nil(t, got)
}

func TestParticipantRepository_Save(t *testing.T) {
	ctx := context.Background()
	sentAt := time.Date(2025, 3, 10, 19, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		mock    func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "success",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE participants`).
					WithArgs(true, sentAt, "p-1").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "missing participant",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE participants`).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			p := &domain.Participant{ID: "p-1", EventID: "ev-1"}
			p.MarkCertificateSent(sentAt)
			err = NewParticipantRepository(db).Save(ctx, p)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
