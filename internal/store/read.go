package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/raycorr/internal/engine"
)

// Filter narrows ReadResolutions. Zero-valued fields do not filter.
type Filter struct {
	Session string
	Subject engine.Subject
	Outcome engine.Outcome
	// Limit caps the number of rows returned; 0 means no limit.
	Limit int
}

// Summary aggregates one session's journal.
type Summary struct {
	Session       string  `json:"session"`
	Casts         int     `json:"casts"`
	Hits          int     `json:"hits"`
	Misses        int     `json:"misses"`
	Stale         int     `json:"stale"`
	HandlerErrors int     `json:"handler_errors"`
	MeanHitScore  float64 `json:"mean_hit_score"`
	// Outstanding is casts journalled without a resolution.
	Outstanding int `json:"outstanding"`
}

// ReadResolutions returns resolutions matching f.
// Results are ordered deterministically: ORDER BY session, seq ASC.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadResolutions(ctx context.Context, f Filter) ([]engine.Resolution, error) {
	var where []string
	var args []any
	if f.Session != "" {
		where = append(where, "session = ?")
		args = append(args, f.Session)
	}
	if f.Subject != "" {
		where = append(where, "subject = ?")
		args = append(args, string(f.Subject))
	}
	if f.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, string(f.Outcome))
	}

	query := `
		SELECT session, seq, request_id, subject, outcome, start_point, end_point,
		       point, normal, score, age_ns, resolved_at, handler_error
		FROM resolutions`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY session COLLATE BINARY ASC, seq ASC"
	if f.Limit > 0 {
		query += "\n\t\tLIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query resolutions: %w", err)
	}
	defer rows.Close()

	resolutions := []engine.Resolution{}
	for rows.Next() {
		res, err := scanResolution(rows)
		if err != nil {
			return nil, err
		}
		resolutions = append(resolutions, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resolutions: %w", err)
	}

	return resolutions, nil
}

// ReadResolution returns the resolution of one request.
// Returns sql.ErrNoRows if the request has not been journalled as resolved.
func (s *Store) ReadResolution(ctx context.Context, session string, id engine.RequestID) (engine.Resolution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session, seq, request_id, subject, outcome, start_point, end_point,
		       point, normal, score, age_ns, resolved_at, handler_error
		FROM resolutions
		WHERE session = ? AND request_id = ?
	`, session, int64(id))
	if err != nil {
		return engine.Resolution{}, fmt.Errorf("query resolution: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return engine.Resolution{}, fmt.Errorf("iterate resolution: %w", err)
		}
		return engine.Resolution{}, sql.ErrNoRows
	}
	return scanResolution(rows)
}

// ReadCasts returns a session's journalled casts ordered by request id.
func (s *Store) ReadCasts(ctx context.Context, session string) ([]engine.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, subject, start_point, end_point, total_distance, created_at
		FROM casts
		WHERE session = ?
		ORDER BY request_id ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query casts: %w", err)
	}
	defer rows.Close()

	casts := []engine.Request{}
	for rows.Next() {
		var req engine.Request
		var id, created int64
		var subject, start, end string
		if err := rows.Scan(&id, &subject, &start, &end, &req.TotalDistance, &created); err != nil {
			return nil, fmt.Errorf("scan cast: %w", err)
		}
		req.ID = engine.RequestID(id)
		req.Subject = engine.Subject(subject)
		req.CreatedAt = fromNanos(created)
		if req.Start, err = unmarshalPoint(start); err != nil {
			return nil, err
		}
		if req.End, err = unmarshalPoint(end); err != nil {
			return nil, err
		}
		casts = append(casts, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate casts: %w", err)
	}

	return casts, nil
}

// Sessions returns every session in the journal, in lexical order.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session FROM casts
		UNION
		SELECT session FROM resolutions
		ORDER BY 1 COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []string{}
	for rows.Next() {
		var session string
		if err := rows.Scan(&session); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// Summary aggregates the journal for one session.
func (s *Store) Summary(ctx context.Context, session string) (Summary, error) {
	sum := Summary{Session: session}

	var meanScore sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(outcome = 'hit'), 0),
			COALESCE(SUM(outcome = 'miss'), 0),
			COALESCE(SUM(outcome = 'stale'), 0),
			COALESCE(SUM(handler_error != ''), 0),
			AVG(score)
		FROM resolutions
		WHERE session = ?
	`, session).Scan(&sum.Hits, &sum.Misses, &sum.Stale, &sum.HandlerErrors, &meanScore)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize resolutions: %w", err)
	}
	if meanScore.Valid {
		sum.MeanHitScore = meanScore.Float64
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(NOT EXISTS (
				SELECT 1 FROM resolutions r
				WHERE r.session = c.session AND r.request_id = c.request_id
			)), 0)
		FROM casts c
		WHERE c.session = ?
	`, session).Scan(&sum.Casts, &sum.Outstanding)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize casts: %w", err)
	}

	return sum, nil
}

// scanResolution scans a row into a Resolution.
func scanResolution(rows *sql.Rows) (engine.Resolution, error) {
	var res engine.Resolution
	var id, age, at int64
	var subject, outcome, start, end string
	var point, normal sql.NullString
	var score sql.NullFloat64

	if err := rows.Scan(
		&res.Session, &res.Seq, &id, &subject, &outcome, &start, &end,
		&point, &normal, &score, &age, &at, &res.HandlerError,
	); err != nil {
		return engine.Resolution{}, fmt.Errorf("scan resolution: %w", err)
	}

	res.RequestID = engine.RequestID(id)
	res.Subject = engine.Subject(subject)
	res.Outcome = engine.Outcome(outcome)
	res.Age = time.Duration(age)
	res.At = fromNanos(at)

	var err error
	if res.Start, err = unmarshalPoint(start); err != nil {
		return engine.Resolution{}, err
	}
	if res.End, err = unmarshalPoint(end); err != nil {
		return engine.Resolution{}, err
	}
	if point.Valid {
		if res.Point, err = unmarshalPoint(point.String); err != nil {
			return engine.Resolution{}, err
		}
	}
	if normal.Valid {
		if res.Normal, err = unmarshalPoint(normal.String); err != nil {
			return engine.Resolution{}, err
		}
	}
	if score.Valid {
		res.Score = score.Float64
	}

	return res, nil
}
