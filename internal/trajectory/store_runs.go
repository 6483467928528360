package trajectory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vodrive/internal/engine"
)

// CreateRun inserts a new run.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO runs (id, mode, source, speed, started_at) VALUES (?, ?, ?, ?, ?)`,
			run.ID, run.Mode, nullableString(run.Source), run.Speed, formatTime(run.StartedAt),
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	})
}

// FinishRun stamps the run's finish time.
func (s *Store) FinishRun(ctx context.Context, runID string, at time.Time) error {
	return retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE runs SET finished_at = ? WHERE id = ?`, formatTime(at), runID)
		if err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil
	})
}

// GetRun fetches one run.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, mode, source, speed, started_at, finished_at FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs, most recent first.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT r.id, r.mode, r.source, r.speed, r.started_at, r.finished_at,
               (SELECT COUNT(1) FROM poses p WHERE p.run_id = r.id),
               (SELECT COUNT(1) FROM keyframes k WHERE k.run_id = r.id),
               (SELECT COUNT(1) FROM resets x WHERE x.run_id = r.id AND x.reason = 'reset')
        FROM runs r
        ORDER BY r.started_at DESC, r.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var (
			summary  RunSummary
			source   sql.NullString
			started  sql.NullString
			finished sql.NullString
		)
		if err := rows.Scan(&summary.ID, &summary.Mode, &source, &summary.Speed, &started, &finished,
			&summary.Poses, &summary.KeyFrames, &summary.Resets); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		summary.Source = source.String
		summary.StartedAt = parseTime(started)
		summary.FinishedAt = parseTime(finished)
		summary.Generations = summary.Resets + 1
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return summaries, nil
}

// Summarize loads a run with its counts and travelled path length.
func (s *Store) Summarize(ctx context.Context, runID string) (RunSummary, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return RunSummary{}, err
	}
	poses, err := s.Poses(ctx, runID)
	if err != nil {
		return RunSummary{}, err
	}
	keyFrames, err := s.KeyFrames(ctx, runID)
	if err != nil {
		return RunSummary{}, err
	}
	events, err := s.Resets(ctx, runID)
	if err != nil {
		return RunSummary{}, err
	}
	resets := 0
	for _, ev := range events {
		if ev.Reason == ReasonReset {
			resets++
		}
	}
	return RunSummary{
		Run:         run,
		Poses:       len(poses),
		KeyFrames:   len(keyFrames),
		Resets:      resets,
		Generations: resets + 1,
		PathLength:  PathLength(poses),
	}, nil
}

// DeleteRun removes a run and everything recorded for it.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"poses", "keyframes", "resets"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, runID); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil
	})
}

// AppendPoses inserts poses in one transaction.
func (s *Store) AppendPoses(ctx context.Context, runID string, poses []PoseRecord) error {
	if len(poses) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO poses
            (run_id, generation, frame_id, timestamp, tx, ty, tz, qx, qy, qz, qw)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare pose insert: %w", err)
		}
		defer stmt.Close()
		for _, p := range poses {
			t := p.Translation()
			qx, qy, qz, qw := p.Pose.Quaternion()
			if _, err := stmt.ExecContext(ctx, runID, p.Generation, p.FrameID, p.Timestamp,
				t.X, t.Y, t.Z, qx, qy, qz, qw); err != nil {
				return fmt.Errorf("insert pose: %w", err)
			}
		}
		return nil
	})
}

// ReplaceKeyFrames stores the keyframe set of one generation, replacing
// whatever was stored for it before.
func (s *Store) ReplaceKeyFrames(ctx context.Context, runID string, generation int, keyFrames []engine.KeyFrame) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM keyframes WHERE run_id = ? AND generation = ?`, runID, generation); err != nil {
			return fmt.Errorf("clear keyframes: %w", err)
		}
		for _, kf := range keyFrames {
			poseJSON, err := json.Marshal(kf.Pose)
			if err != nil {
				return fmt.Errorf("marshal keyframe pose: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO keyframes
                (run_id, generation, keyframe_id, frame_id, timestamp, pose_json, point_count)
                VALUES (?, ?, ?, ?, ?, ?, ?)`,
				runID, generation, kf.ID, kf.FrameID, kf.Timestamp, string(poseJSON), kf.PointCount); err != nil {
				return fmt.Errorf("insert keyframe: %w", err)
			}
		}
		return nil
	})
}

// AppendReset records the start of generation.
func (s *Store) AppendReset(ctx context.Context, runID string, reset ResetRecord) error {
	if reset.OccurredAt.IsZero() {
		reset.OccurredAt = time.Now()
	}
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO resets (run_id, generation, reason, frame_id, occurred_at) VALUES (?, ?, ?, ?, ?)`,
			runID, reset.Generation, reset.Reason, reset.FrameID, formatTime(reset.OccurredAt))
		if err != nil {
			return fmt.Errorf("insert reset: %w", err)
		}
		return nil
	})
}

// Poses returns a run's poses in publication order.
func (s *Store) Poses(ctx context.Context, runID string) ([]PoseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT generation, frame_id, timestamp, tx, ty, tz, qx, qy, qz, qw
        FROM poses WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query poses: %w", err)
	}
	defer rows.Close()

	var poses []PoseRecord
	for rows.Next() {
		var (
			rec            PoseRecord
			tx, ty, tz     float64
			qx, qy, qz, qw float64
		)
		if err := rows.Scan(&rec.Generation, &rec.FrameID, &rec.Timestamp, &tx, &ty, &tz, &qx, &qy, &qz, &qw); err != nil {
			return nil, fmt.Errorf("scan pose: %w", err)
		}
		rec.Pose = engine.FromTranslationQuaternion(tx, ty, tz, qx, qy, qz, qw)
		poses = append(poses, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate poses: %w", err)
	}
	return poses, nil
}

// KeyFrames returns a run's stored keyframes ordered by generation and id.
func (s *Store) KeyFrames(ctx context.Context, runID string) ([]KeyFrameRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT generation, keyframe_id, frame_id, timestamp, pose_json, point_count
        FROM keyframes WHERE run_id = ? ORDER BY generation, keyframe_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query keyframes: %w", err)
	}
	defer rows.Close()

	var keyFrames []KeyFrameRecord
	for rows.Next() {
		var (
			rec      KeyFrameRecord
			poseJSON string
		)
		if err := rows.Scan(&rec.Generation, &rec.ID, &rec.FrameID, &rec.Timestamp, &poseJSON, &rec.PointCount); err != nil {
			return nil, fmt.Errorf("scan keyframe: %w", err)
		}
		if err := json.Unmarshal([]byte(poseJSON), &rec.Pose); err != nil {
			return nil, fmt.Errorf("decode keyframe pose: %w", err)
		}
		keyFrames = append(keyFrames, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keyframes: %w", err)
	}
	return keyFrames, nil
}

// Resets returns a run's reset and loss markers in order.
func (s *Store) Resets(ctx context.Context, runID string) ([]ResetRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT generation, reason, frame_id, occurred_at
        FROM resets WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query resets: %w", err)
	}
	defer rows.Close()

	var resets []ResetRecord
	for rows.Next() {
		var (
			rec      ResetRecord
			frameID  sql.NullInt64
			occurred sql.NullString
		)
		if err := rows.Scan(&rec.Generation, &rec.Reason, &frameID, &occurred); err != nil {
			return nil, fmt.Errorf("scan reset: %w", err)
		}
		rec.FrameID = int(frameID.Int64)
		rec.OccurredAt = parseTime(occurred)
		resets = append(resets, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resets: %w", err)
	}
	return resets, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run      Run
		source   sql.NullString
		started  sql.NullString
		finished sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Mode, &source, &run.Speed, &started, &finished); err != nil {
		return Run{}, err
	}
	run.Source = source.String
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	return run, nil
}
