package repo

import (
	"context"
	"database/sql"

	"taskqueue/internal/apperr"
	"taskqueue/internal/domain"
)

// SQLStore keeps the collection in the projects and tasks tables. Save rewrites
// both tables in one transaction; positions preserve insertion order.
type SQLStore struct {
	DB *sql.DB
}

func (r SQLStore) Load(ctx context.Context) (*domain.Collection, error) {
	c := &domain.Collection{Projects: []domain.Project{}}
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id,initial_prompt,project_plan,completed,auto_approve FROM projects ORDER BY position`)
	if err != nil {
		return nil, apperr.Wrap(apperr.FileReadError, err, "failed to read projects")
	}
	defer rows.Close()
	index := map[string]int{}
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ProjectID, &p.InitialPrompt, &p.ProjectPlan, &p.Completed, &p.AutoApprove); err != nil {
			return nil, apperr.Wrap(apperr.FileParseError, err, "failed to scan project")
		}
		p.Tasks = []domain.Task{}
		index[p.ProjectID] = len(c.Projects)
		c.Projects = append(c.Projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.FileReadError, err, "failed to read projects")
	}

	taskRows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,title,description,status,approved,COALESCE(completed_details,''),COALESCE(tool_recommendations,''),COALESCE(rule_recommendations,'')
FROM tasks ORDER BY project_id, position`)
	if err != nil {
		return nil, apperr.Wrap(apperr.FileReadError, err, "failed to read tasks")
	}
	defer taskRows.Close()
	for taskRows.Next() {
		var t domain.Task
		var projectID, status string
		if err := taskRows.Scan(&t.ID, &projectID, &t.Title, &t.Description, &status, &t.Approved, &t.CompletedDetails, &t.ToolRecommendations, &t.RuleRecommendations); err != nil {
			return nil, apperr.Wrap(apperr.FileParseError, err, "failed to scan task")
		}
		t.Status = domain.Status(status)
		i, ok := index[projectID]
		if !ok {
			continue
		}
		c.Projects[i].Tasks = append(c.Projects[i].Tasks, t)
	}
	if err := taskRows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.FileReadError, err, "failed to read tasks")
	}
	normalize(c)
	return c, nil
}

func (r SQLStore) Save(ctx context.Context, c *domain.Collection) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.FileWriteError, err, "failed to begin write")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return apperr.Wrap(apperr.FileWriteError, err, "failed to clear tasks")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM projects`); err != nil {
		return apperr.Wrap(apperr.FileWriteError, err, "failed to clear projects")
	}
	for pi, p := range c.Projects {
		if _, err := tx.ExecContext(ctx, `INSERT INTO projects(project_id,position,initial_prompt,project_plan,completed,auto_approve) VALUES (?,?,?,?,?,?)`,
			p.ProjectID, pi, p.InitialPrompt, p.ProjectPlan, p.Completed, p.AutoApprove); err != nil {
			return apperr.Wrap(apperr.FileWriteError, err, "failed to insert project %s", p.ProjectID)
		}
		for ti, t := range p.Tasks {
			if _, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,project_id,position,title,description,status,approved,completed_details,tool_recommendations,rule_recommendations)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
				t.ID, p.ProjectID, ti, t.Title, t.Description, string(t.Status), t.Approved,
				nullable(t.CompletedDetails), nullable(t.ToolRecommendations), nullable(t.RuleRecommendations)); err != nil {
				return apperr.Wrap(apperr.FileWriteError, err, "failed to insert task %s", t.ID)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.FileWriteError, err, "failed to commit write")
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
