package indexdb

import (
	"context"
	"database/sql"
	"os"
	"strings"

	"voxelmind.ai/internal/sim/level"
	"voxelmind.ai/internal/sim/nav"
)

// IncidentFilter narrows ListIncidents. Zero fields match everything.
type IncidentFilter struct {
	EntityID  string
	Kind      nav.IncidentKind
	SinceTick uint64
	Limit     int
}

type SnapshotInfo struct {
	Tick       uint64 `json:"tick"`
	Path       string `json:"path"`
	Seed       int64  `json:"seed"`
	Mobs       int    `json:"mobs"`
	Memories   int    `json:"memories"`
	RecordedAt string `json:"recorded_at"`
}

// IncidentCount is the number of incidents of one kind for one entity.
type IncidentCount struct {
	EntityID string           `json:"entity_id"`
	Kind     nav.IncidentKind `json:"kind"`
	Count    int              `json:"count"`
}

// OpenReader opens an existing index for queries without starting a writer.
func OpenReader(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return sql.Open("sqlite", path)
}

// ListIncidents returns matching incidents, newest first.
func ListIncidents(ctx context.Context, db *sql.DB, f IncidentFilter) ([]nav.Incident, error) {
	var (
		where []string
		args  []any
	)
	if f.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.SinceTick > 0 {
		where = append(where, "tick >= ?")
		args = append(args, int64(f.SinceTick))
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	q := `SELECT tick,entity_id,kind,x,y,z,target_x,target_y,target_z,nodes FROM incidents`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY tick DESC, id DESC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []nav.Incident
	for rows.Next() {
		var (
			in   nav.Incident
			tick int64
			kind string
			tgt  level.BlockPos
		)
		if err := rows.Scan(&tick, &in.EntityID, &kind, &in.Pos.X, &in.Pos.Y, &in.Pos.Z, &tgt.X, &tgt.Y, &tgt.Z, &in.Nodes); err != nil {
			return nil, err
		}
		in.Tick = uint64(tick)
		in.Kind = nav.IncidentKind(kind)
		in.Target = tgt
		out = append(out, in)
	}
	return out, rows.Err()
}

// CountIncidents groups incidents by entity and kind, most frequent first.
func CountIncidents(ctx context.Context, db *sql.DB, limit int) ([]IncidentCount, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `SELECT entity_id,kind,COUNT(*) AS n FROM incidents GROUP BY entity_id,kind ORDER BY n DESC, entity_id, kind LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []IncidentCount
	for rows.Next() {
		var (
			c    IncidentCount
			kind string
		)
		if err := rows.Scan(&c.EntityID, &kind, &c.Count); err != nil {
			return nil, err
		}
		c.Kind = nav.IncidentKind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListSnapshots returns recorded snapshots, newest first.
func ListSnapshots(ctx context.Context, db *sql.DB, limit int) ([]SnapshotInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `SELECT tick,path,seed,mobs,memories,recorded_at FROM snapshots ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotInfo
	for rows.Next() {
		var (
			s    SnapshotInfo
			tick int64
		)
		if err := rows.Scan(&tick, &s.Path, &s.Seed, &s.Mobs, &s.Memories, &s.RecordedAt); err != nil {
			return nil, err
		}
		s.Tick = uint64(tick)
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the newest snapshot row, if any.
func LatestSnapshot(ctx context.Context, db *sql.DB) (SnapshotInfo, bool, error) {
	list, err := ListSnapshots(ctx, db, 1)
	if err != nil || len(list) == 0 {
		return SnapshotInfo{}, false, err
	}
	return list[0], true, nil
}
