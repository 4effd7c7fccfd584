package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Strob0t/CloudLaunch/internal/domain/region"
	"github.com/Strob0t/CloudLaunch/internal/domain/run"
)

const runColumns = `id, status, provider, region_id, node_type, spot, node_disk, node_count,
	parent_run_id, pipeline_id, tool_id, version, docker_image, cmd_template, parameters,
	owner, pod_id, estimated_price, start_date, end_date`

func scanRun(row scannable) (run.Run, error) {
	var (
		r        run.Run
		status   string
		provider string
		params   []byte
	)
	err := row.Scan(&r.ID, &status, &provider, &r.Instance.CloudRegionID, &r.Instance.NodeType,
		&r.Instance.Spot, &r.Instance.NodeDisk, &r.Instance.NodeCount, &r.ParentRunID, &r.PipelineID,
		&r.ToolID, &r.Version, &r.DockerImage, &r.CmdTemplate, &params, &r.Owner, &r.PodID,
		&r.EstimatedPrice, &r.StartDate, &r.EndDate)
	if err != nil {
		return r, err
	}
	r.Status = run.Status(status)
	r.Instance.CloudProvider = region.Provider(provider)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &r.PipelineRunParameters); err != nil {
			return r, fmt.Errorf("unmarshal parameters of run %d: %w", r.ID, err)
		}
	}
	return r, nil
}

func (s *Store) NextRunID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, `SELECT nextval('run_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("next run id: %w", err)
	}
	return id, nil
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *Store) CreateRun(ctx context.Context, r *run.Run) error {
	return insertRun(ctx, s.pool, r)
}

func (s *Store) CreateRestartedRun(ctx context.Context, r *run.Run, link run.RestartLink) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := insertRun(ctx, tx, r); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO run_restarts (parent_run_id, restarted_run_id, initial_run_id, date)
			 VALUES ($1, $2, $3, $4)`,
			link.ParentRunID, link.RestartedRunID, link.InitialRunID, link.Date)
		if err != nil {
			return fmt.Errorf("create restart link %d -> %d: %w", link.ParentRunID, link.RestartedRunID, err)
		}
		return nil
	})
}

func insertRun(ctx context.Context, db execer, r *run.Run) error {
	params, err := json.Marshal(r.PipelineRunParameters)
	if err != nil {
		return fmt.Errorf("marshal run parameters: %w", err)
	}
	_, err = db.Exec(ctx,
		`INSERT INTO runs (`+runColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		r.ID, string(r.Status), string(r.Instance.CloudProvider), r.Instance.CloudRegionID,
		r.Instance.NodeType, r.Instance.Spot, r.Instance.NodeDisk, r.Instance.NodeCount,
		r.ParentRunID, r.PipelineID, r.ToolID, r.Version, r.DockerImage, r.CmdTemplate, params,
		r.Owner, r.PodID, r.EstimatedPrice, r.StartDate, nullTime(r.EndDate))
	if err != nil {
		return fmt.Errorf("create run %d: %w", r.ID, err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id int64) (*run.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	r, err := scanRun(row)
	if err != nil {
		return nil, dbErr(err, "get run %d", id)
	}

	links, err := s.queryRestartLinks(ctx, `parent_run_id = $1`, id)
	if err != nil {
		return nil, err
	}
	r.RestartedRuns = links
	return &r, nil
}

func (s *Store) UpdateRunStatus(ctx context.Context, id int64, status run.Status, endDate *time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $2, end_date = COALESCE($3, end_date) WHERE id = $1`,
		id, string(status), nullTime(endDate))
	return expectOne(tag, err, "update status of run %d", id)
}

func (s *Store) FindRestartByRestartedRunID(ctx context.Context, runID int64) (*run.RestartLink, error) {
	var l run.RestartLink
	err := s.pool.QueryRow(ctx,
		`SELECT parent_run_id, restarted_run_id, initial_run_id, date
		 FROM run_restarts WHERE restarted_run_id = $1`, runID,
	).Scan(&l.ParentRunID, &l.RestartedRunID, &l.InitialRunID, &l.Date)
	if err != nil {
		return nil, dbErr(err, "find restart of run %d", runID)
	}
	return &l, nil
}

func (s *Store) ListRestartLinks(ctx context.Context, initialRunID int64) ([]run.RestartLink, error) {
	return s.queryRestartLinks(ctx, `initial_run_id = $1`, initialRunID)
}

func (s *Store) queryRestartLinks(ctx context.Context, where string, arg int64) ([]run.RestartLink, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT parent_run_id, restarted_run_id, initial_run_id, date
		 FROM run_restarts WHERE `+where+` ORDER BY date ASC, restarted_run_id ASC`, arg)
	if err != nil {
		return nil, fmt.Errorf("list restart links: %w", err)
	}
	defer rows.Close()

	var links []run.RestartLink
	for rows.Next() {
		var l run.RestartLink
		if err := rows.Scan(&l.ParentRunID, &l.RestartedRunID, &l.InitialRunID, &l.Date); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}
