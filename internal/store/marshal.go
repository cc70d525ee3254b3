package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/raycorr/internal/geom"
)

// marshalPoint converts a point to JSON TEXT for storage.
// HTML escaping is disabled and the trailing newline trimmed, so the stored
// text is byte-stable across runs.
func marshalPoint(p geom.Point3) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return "", fmt.Errorf("marshal point: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalPoint parses JSON TEXT written by marshalPoint.
func unmarshalPoint(data string) (geom.Point3, error) {
	var p geom.Point3
	if data == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return geom.Point3{}, fmt.Errorf("unmarshal point: %w", err)
	}
	return p, nil
}

// nullablePoint is marshalPoint for columns that are NULL unless set.
func nullablePoint(p geom.Point3, set bool) (sql.NullString, error) {
	if !set {
		return sql.NullString{}, nil
	}
	s, err := marshalPoint(p)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: s, Valid: true}, nil
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
