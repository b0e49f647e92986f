package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"finmatch/pkg/core/match"
)

// SessionRepo persists matching sessions and their results.
type SessionRepo struct {
	pool *pgxpool.Pool
}

// NewSessionRepo creates a new session repository
func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

// SaveSession stores a session header, its summary, and every match result.
func (r *SessionRepo) SaveSession(ctx context.Context, session *match.Session) error {
	if r.pool == nil {
		return fmt.Errorf("database pool not configured")
	}

	statsJSON, err := json.Marshal(session.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	summaryJSON, err := json.Marshal(session.Summary())
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO matching_sessions (session_id, created_at, section_type, stats, summary)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id)
		DO UPDATE SET stats = EXCLUDED.stats, summary = EXCLUDED.summary
	`, session.ID, session.CreatedAt, session.SectionType, statsJSON, summaryJSON)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM matching_results WHERE session_id = $1`, session.ID)
	if err != nil {
		return fmt.Errorf("failed to clear previous results: %w", err)
	}

	for _, result := range session.Results {
		payload, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO matching_results (session_id, term_key, match_type, confidence, line_number, payload)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, session.ID, result.TermKey, result.MatchType, result.Confidence, result.LineNumber, payload)
		if err != nil {
			return fmt.Errorf("failed to save result for %s: %w", result.TermKey, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// LoadResults reads back all results for a session in line order.
func (r *SessionRepo) LoadResults(ctx context.Context, sessionID string) ([]match.MatchResult, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("database pool not configured")
	}

	rows, err := r.pool.Query(ctx, `
		SELECT payload FROM matching_results
		WHERE session_id = $1
		ORDER BY line_number, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []match.MatchResult
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		var result match.MatchResult
		if err := json.Unmarshal(payload, &result); err != nil {
			return nil, fmt.Errorf("failed to decode result: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}
