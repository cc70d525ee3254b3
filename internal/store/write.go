package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/raycorr/internal/engine"
)

// WriteCast records a registered request.
// Uses ON CONFLICT DO NOTHING for idempotency: writing the same request twice
// in one session is silently ignored.
func (s *Store) WriteCast(ctx context.Context, session string, req engine.Request) error {
	start, err := marshalPoint(req.Start)
	if err != nil {
		return fmt.Errorf("write cast: %w", err)
	}
	end, err := marshalPoint(req.End)
	if err != nil {
		return fmt.Errorf("write cast: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO casts
		(session, request_id, subject, start_point, end_point, total_distance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		session,
		int64(req.ID),
		string(req.Subject),
		start,
		end,
		req.TotalDistance,
		toNanos(req.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("write cast: %w", err)
	}

	return nil
}

// WriteResolution records how a request was resolved.
//
// Uses ON CONFLICT DO NOTHING for idempotency. Both (session, seq) and
// (session, request_id) are unique, so a request can never be journalled as
// resolved twice.
//
// Point, normal and score are stored only for hits; they are NULL otherwise.
func (s *Store) WriteResolution(ctx context.Context, res engine.Resolution) error {
	_, err := s.insertResolution(ctx, res)
	return err
}

// insertResolution is WriteResolution reporting whether a row was added.
func (s *Store) insertResolution(ctx context.Context, res engine.Resolution) (bool, error) {
	start, err := marshalPoint(res.Start)
	if err != nil {
		return false, fmt.Errorf("write resolution: %w", err)
	}
	end, err := marshalPoint(res.End)
	if err != nil {
		return false, fmt.Errorf("write resolution: %w", err)
	}

	isHit := res.Outcome == engine.OutcomeHit
	point, err := nullablePoint(res.Point, isHit)
	if err != nil {
		return false, fmt.Errorf("write resolution: %w", err)
	}
	normal, err := nullablePoint(res.Normal, isHit)
	if err != nil {
		return false, fmt.Errorf("write resolution: %w", err)
	}
	var score sql.NullFloat64
	if isHit {
		score = sql.NullFloat64{Float64: res.Score, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO resolutions
		(session, seq, request_id, subject, outcome, start_point, end_point,
		 point, normal, score, age_ns, resolved_at, handler_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		res.Session,
		res.Seq,
		int64(res.RequestID),
		string(res.Subject),
		string(res.Outcome),
		start,
		end,
		point,
		normal,
		score,
		int64(res.Age),
		toNanos(res.At),
		res.HandlerError,
	)
	if err != nil {
		return false, fmt.Errorf("write resolution: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write resolution: %w", err)
	}
	return n == 1, nil
}
