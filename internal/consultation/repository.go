package consultation

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"medvoice/internal/persona"
)

type Repository interface {
	Create(ctx context.Context, ownerEmail, notes string, p persona.Persona) (*Session, error)
	ListByOwner(ctx context.Context, ownerEmail string) ([]Session, error)
	GetBySessionID(ctx context.Context, sessionID string) (*Session, error)
	UpdateReport(ctx context.Context, sessionID string, report Report, transcript []Turn) (*Session, error)
	Delete(ctx context.Context, sessionID, ownerEmail string) error
	CountReported(ctx context.Context, ownerEmail string) (int, error)
}

type postgresRepo struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepo{db: db}
}

const sessionColumns = `id, session_id, COALESCE(notes, '') AS notes, selected_doctor, conversation, report, created_by, created_on`

type sessionRow struct {
	ID             int64  `db:"id"`
	SessionID      string `db:"session_id"`
	Notes          string `db:"notes"`
	SelectedDoctor []byte `db:"selected_doctor"`
	Conversation   []byte `db:"conversation"`
	Report         []byte `db:"report"`
	CreatedBy      string `db:"created_by"`
	CreatedOn      string `db:"created_on"`
}

func (row sessionRow) toSession() (*Session, error) {
	s := &Session{
		ID:           row.ID,
		SessionID:    row.SessionID,
		Notes:        row.Notes,
		Conversation: []Turn{},
		CreatedBy:    row.CreatedBy,
		CreatedOn:    row.CreatedOn,
	}
	if len(row.SelectedDoctor) > 0 {
		if err := json.Unmarshal(row.SelectedDoctor, &s.Persona); err != nil {
			return nil, fmt.Errorf("failed to unmarshal persona: %w", err)
		}
	}
	if len(row.Conversation) > 0 {
		if err := json.Unmarshal(row.Conversation, &s.Conversation); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
		}
		if s.Conversation == nil {
			s.Conversation = []Turn{}
		}
	}
	if len(row.Report) > 0 && !bytes.Equal(bytes.TrimSpace(row.Report), []byte("null")) {
		var rep Report
		if err := json.Unmarshal(row.Report, &rep); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report: %w", err)
		}
		s.Report = &rep
	}
	return s, nil
}

func (r *postgresRepo) Create(ctx context.Context, ownerEmail, notes string, p persona.Persona) (*Session, error) {
	personaJSON, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO consultation_sessions (session_id, notes, selected_doctor, created_by, created_on)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + sessionColumns

	var row sessionRow
	err = r.db.GetContext(ctx, &row, query,
		uuid.New().String(), notes, string(personaJSON), ownerEmail, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return row.toSession()
}

func (r *postgresRepo) ListByOwner(ctx context.Context, ownerEmail string) ([]Session, error) {
	var rows []sessionRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+sessionColumns+` FROM consultation_sessions WHERE created_by = $1 ORDER BY id DESC`, ownerEmail)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	out := make([]Session, 0, len(rows))
	for _, row := range rows {
		s, err := row.toSession()
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

func (r *postgresRepo) GetBySessionID(ctx context.Context, sessionID string) (*Session, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+sessionColumns+` FROM consultation_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select session: %w", err)
	}
	return row.toSession()
}

func (r *postgresRepo) UpdateReport(ctx context.Context, sessionID string, report Report, transcript []Turn) (*Session, error) {
	if transcript == nil {
		transcript = []Turn{}
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	transcriptJSON, err := json.Marshal(transcript)
	if err != nil {
		return nil, err
	}

	var row sessionRow
	err = r.db.GetContext(ctx, &row, `
		UPDATE consultation_sessions SET report = $2, conversation = $3
		WHERE session_id = $1
		RETURNING `+sessionColumns,
		sessionID, string(reportJSON), string(transcriptJSON))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update session report: %w", err)
	}
	return row.toSession()
}

// Delete removes the session only when ownerEmail owns it; a foreign session looks missing.
func (r *postgresRepo) Delete(ctx context.Context, sessionID, ownerEmail string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM consultation_sessions WHERE session_id = $1 AND created_by = $2`, sessionID, ownerEmail)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepo) CountReported(ctx context.Context, ownerEmail string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM consultation_sessions
		WHERE created_by = $1 AND report IS NOT NULL AND COALESCE(btrim(report->>'summary', E' \t\n\x0b\f\r'), '') <> ''`,
		ownerEmail)
	if err != nil {
		return 0, fmt.Errorf("count reported sessions: %w", err)
	}
	return n, nil
}
