package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskqueue/internal/apperr"
	"taskqueue/internal/domain"
	"taskqueue/internal/engine"
	"taskqueue/internal/events"
	"taskqueue/internal/llm"
	"taskqueue/internal/repo"
)

type recordingSink struct {
	mu   sync.Mutex
	recs []events.Record
	err  error
}

func (s *recordingSink) Append(_ context.Context, rec events.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return s.err
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []string{}
	for _, r := range s.recs {
		out = append(out, r.Type)
	}
	return out
}

type testEnv struct {
	Engine engine.Engine
	Store  *repo.Memory
	Events *recordingSink
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	store := repo.NewMemory(nil)
	sink := &recordingSink{}
	eng := engine.New(store)
	eng.Events = sink
	return testEnv{Engine: eng, Store: store, Events: sink, Ctx: context.Background()}
}

func (env testEnv) createProject(t *testing.T, autoApprove bool, titles ...string) domain.Project {
	t.Helper()
	specs := []engine.TaskSpec{}
	for _, title := range titles {
		specs = append(specs, engine.TaskSpec{Title: title, Description: "do " + title})
	}
	res, err := env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{
		InitialPrompt: "build things",
		Tasks:         specs,
		AutoApprove:   autoApprove,
	})
	require.NoError(t, err)
	return res.Project
}

func ptr[T any](v T) *T { return &v }

func status(s domain.Status) *domain.Status { return &s }

func (env testEnv) setStatus(t *testing.T, projectID, taskID string, s domain.Status, details string) engine.UpdateTaskResult {
	t.Helper()
	opts := engine.TaskUpdateOptions{ProjectID: projectID, TaskID: taskID, Status: status(s)}
	if details != "" {
		opts.CompletedDetails = ptr(details)
	}
	res, err := env.Engine.UpdateTask(env.Ctx, opts)
	require.NoError(t, err)
	return res
}

func (env testEnv) snapshot(t *testing.T) *domain.Collection {
	t.Helper()
	c, err := env.Store.Load(env.Ctx)
	require.NoError(t, err)
	return c
}

func requireCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperr.CodeOf(err), "error: %v", err)
}

func TestValidateTransition(t *testing.T) {
	all := []domain.Status{domain.StatusNotStarted, domain.StatusInProgress, domain.StatusDone}
	allowed := map[[2]domain.Status]bool{
		{domain.StatusNotStarted, domain.StatusInProgress}: true,
		{domain.StatusInProgress, domain.StatusDone}:       true,
		{domain.StatusInProgress, domain.StatusNotStarted}: true,
		{domain.StatusDone, domain.StatusInProgress}:       true,
	}
	for _, from := range all {
		for _, to := range all {
			if from == to {
				continue
			}
			err := engine.ValidateTransition(from, to)
			if allowed[[2]domain.Status{from, to}] {
				assert.NoError(t, err, "%s -> %s", from, to)
				continue
			}
			requireCode(t, err, apperr.InvalidStatusTransition)
			assert.Contains(t, err.Error(), string(from))
			assert.Contains(t, err.Error(), string(to))
		}
	}
}

func TestCreateProjectAssignsIDsAndDefaults(t *testing.T) {
	env := newTestEnv(t)
	p1 := env.createProject(t, false, "T1", "T2")
	p2 := env.createProject(t, false, "T3")

	assert.Equal(t, "proj-1", p1.ProjectID)
	assert.Equal(t, "proj-2", p2.ProjectID)
	assert.Equal(t, "build things", p1.ProjectPlan)
	assert.Equal(t, []string{"task-1", "task-2"}, []string{p1.Tasks[0].ID, p1.Tasks[1].ID})
	assert.Equal(t, "task-3", p2.Tasks[0].ID)
	for _, task := range p1.Tasks {
		assert.Equal(t, domain.StatusNotStarted, task.Status)
		assert.False(t, task.Approved)
		assert.Empty(t, task.CompletedDetails)
	}
	assert.Equal(t, []string{
		"project.created", "task.created", "task.created",
		"project.created", "task.created",
	}, env.Events.types())
}

func TestCreateProjectEmitsTaskCreated(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, false, "a", "b", "c")

	created := []string{}
	for _, rec := range env.Events.recs {
		if rec.Type == "task.created" {
			assert.Equal(t, p.ProjectID, rec.ProjectID)
			assert.Equal(t, "task", rec.EntityKind)
			created = append(created, rec.EntityID)
		}
	}
	assert.Equal(t, []string{"task-1", "task-2", "task-3"}, created)
	assert.Equal(t, "project.created", env.Events.recs[0].Type)
}

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{Tasks: []engine.TaskSpec{{Title: "a", Description: "b"}}})
	requireCode(t, err, apperr.MissingParameter)

	_, err = env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{InitialPrompt: "p"})
	requireCode(t, err, apperr.MissingParameter)

	_, err = env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{InitialPrompt: "p", Tasks: []engine.TaskSpec{{Title: "a", Description: "b"}, {Title: "c"}}})
	requireCode(t, err, apperr.MissingParameter)
	assert.Zero(t, env.Store.Saves())
}

func TestDuplicateTitlesAllowed(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, false, "same", "same")
	assert.NotEqual(t, p.Tasks[0].ID, p.Tasks[1].ID)
}

func TestUUIDIDs(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.IDs = engine.UUIDIDs{}
	p := env.createProject(t, false, "a", "b")
	assert.Regexp(t, `^proj-[0-9a-f-]{36}$`, p.ProjectID)
	assert.Regexp(t, `^task-[0-9a-f-]{36}$`, p.Tasks[0].ID)
	assert.NotEqual(t, p.Tasks[0].ID, p.Tasks[1].ID)
}

func TestSequentialIDsSkipForeignIDs(t *testing.T) {
	seed := &domain.Collection{Projects: []domain.Project{{
		ProjectID: "proj-7", InitialPrompt: "p", ProjectPlan: "p",
		Tasks: []domain.Task{{ID: "legacy", Title: "t", Description: "d", Status: domain.StatusNotStarted}, {ID: "task-9", Title: "t", Description: "d", Status: domain.StatusNotStarted}},
	}}}
	eng := engine.New(repo.NewMemory(seed))
	res, err := eng.CreateProject(context.Background(), engine.CreateProjectOptions{InitialPrompt: "x", Tasks: []engine.TaskSpec{{Title: "a", Description: "b"}}})
	require.NoError(t, err)
	assert.Equal(t, "proj-8", res.Project.ProjectID)
	assert.Equal(t, "task-10", res.Project.Tasks[0].ID)
}

func TestStatusTransitionsThroughUpdate(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, false, "T1")
	id := p.Tasks[0].ID

	_, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ProjectID: p.ProjectID, TaskID: id, Status: status(domain.StatusDone), CompletedDetails: ptr("x")})
	requireCode(t, err, apperr.InvalidStatusTransition)

	env.setStatus(t, p.ProjectID, id, domain.StatusInProgress, "")
	env.setStatus(t, p.ProjectID, id, domain.StatusNotStarted, "")
	env.setStatus(t, p.ProjectID, id, domain.StatusInProgress, "")
	res := env.setStatus(t, p.ProjectID, id, domain.StatusDone, "finished")
	assert.Equal(t, "finished", res.Task.CompletedDetails)

	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ProjectID: p.ProjectID, TaskID: id, Status: status(domain.StatusNotStarted)})
	requireCode(t, err, apperr.InvalidStatusTransition)

	res = env.setStatus(t, p.ProjectID, id, domain.StatusInProgress, "")
	assert.Empty(t, res.Task.CompletedDetails, "details are cleared when leaving done")
}

func TestDoneRequiresCompletedDetails(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, false, "T1")
	id := p.Tasks[0].ID
	env.setStatus(t, p.ProjectID, id, domain.StatusInProgress, "")
	before := env.snapshot(t)

	_, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ProjectID: p.ProjectID, TaskID: id, Status: status(domain.StatusDone), Title: ptr("renamed")})
	requireCode(t, err, apperr.CompletedDetailsRequired)

	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ProjectID: p.ProjectID, TaskID: id, Status: status(domain.StatusDone), CompletedDetails: ptr("   ")})
	requireCode(t, err, apperr.CompletedDetailsRequired)

	assert.Equal(t, before, env.snapshot(t), "failed updates leave the store untouched")
}

func TestCompletedDetailsOnlyWithDone(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, false, "T1")
	_, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ProjectID: p.ProjectID, TaskID: p.Tasks[0].ID, Status: status(domain.StatusInProgress), CompletedDetails: ptr("early")})
	requireCode(t, err, apperr.InvalidArgument)
}

func TestUpdateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, false, "T1")
	id := p.Tasks[0].ID

	_, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ProjectID: p.ProjectID, TaskID: id, Status: status("blocked")})
	requireCode(t, err, apperr.InvalidArgument)

	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ProjectID: p.ProjectID, TaskID: id, Title: ptr(" ")})
	requireCode(t, err, apperr.InvalidArgument)

	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ProjectID: "proj-404", TaskID: id, Title: ptr("x")})
	requireCode(t, err, apperr.ProjectNotFound)

	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ProjectID: p.ProjectID, TaskID: "task-404", Title: ptr("x")})
	requireCode(t, err, apperr.TaskNotFound)
}

func TestUpdateTaskFields(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, false, "T1")
	saves := env.Store.Saves()

	res, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ProjectID: p.ProjectID, TaskID: p.Tasks[0].ID})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, saves, env.Store.Saves(), "an empty update does not write")

	res, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ProjectID: p.ProjectID, TaskID: p.Tasks[0].ID,
		Title: ptr("new"), Description: ptr("desc"), ToolRecommendations: ptr("grep"), RuleRecommendations: ptr("be brief"),
	})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "new", res.Task.Title)
	assert.Equal(t, "desc", res.Task.Description)
	assert.Equal(t, "grep", res.Task.ToolRecommendations)
	assert.Equal(t, "be brief", res.Task.RuleRecommendations)
	assert.Equal(t, domain.StatusNotStarted, res.Task.Status)
}

func TestApprovedTaskIsFrozen(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, false, "T1")
	id := p.Tasks[0].ID
	env.setStatus(t, p.ProjectID, id, domain.StatusInProgress, "")
	env.setStatus(t, p.ProjectID, id, domain.StatusDone, "x")
	_, err := env.Engine.ApproveTask(env.Ctx, p.ProjectID, id)
	require.NoError(t, err)
	before := env.snapshot(t)

	attempts := []engine.TaskUpdateOptions{
		{Title: ptr("t")},
		{Description: ptr("d")},
		{Status: status(domain.StatusInProgress)},
		{ToolRecommendations: ptr("x")},
		{RuleRecommendations: ptr("x")},
		{},
	}
	for _, opts := range attempts {
		opts.ProjectID, opts.TaskID = p.ProjectID, id
		_, err := env.Engine.UpdateTask(env.Ctx, opts)
		requireCode(t, err, apperr.CannotModifyApprovedTask)
	}
	assert.Equal(t, before, env.snapshot(t))
}

func TestApproveTask(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, false, "T1", "T2")
	id := p.Tasks[0].ID

	_, err := env.Engine.ApproveTask(env.Ctx, p.ProjectID, id)
	requireCode(t, err, apperr.TaskNotDone)

	env.setStatus(t, p.ProjectID, id, domain.StatusInProgress, "")
	_, err = env.Engine.ApproveTask(env.Ctx, p.ProjectID, id)
	requireCode(t, err, apperr.TaskNotDone)

	env.setStatus(t, p.ProjectID, id, domain.StatusDone, "x")
	res, err := env.Engine.ApproveTask(env.Ctx, p.ProjectID, id)
	require.NoError(t, err)
	assert.True(t, res.Task.Approved)
	assert.False(t, res.AlreadyApproved)

	saves := env.Store.Saves()
	res, err = env.Engine.ApproveTask(env.Ctx, p.ProjectID, id)
	require.NoError(t, err)
	assert.True(t, res.AlreadyApproved)
	assert.Equal(t, saves, env.Store.Saves(), "a second approval writes nothing")

	_, err = env.Engine.ApproveTask(env.Ctx, p.ProjectID, "task-404")
	requireCode(t, err, apperr.TaskNotFound)
}

func TestNextTaskIsPositionFirst(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, false, "A", "B")
	a, b := p.Tasks[0].ID, p.Tasks[1].ID

	// B done and approved, A untouched: A wins.
	env.setStatus(t, p.ProjectID, b, domain.StatusInProgress, "")
	env.setStatus(t, p.ProjectID, b, domain.StatusDone, "x")
	_, err := env.Engine.ApproveTask(env.Ctx, p.ProjectID, b)
	require.NoError(t, err)

	next, err := env.Engine.NextTask(env.Ctx, p.ProjectID)
	require.NoError(t, err)
	require.NotNil(t, next.Task)
	assert.Equal(t, a, next.Task.ID)
	assert.False(t, next.AllTasksDone)

	// A done but unapproved is still next.
	env.setStatus(t, p.ProjectID, a, domain.StatusInProgress, "")
	env.setStatus(t, p.ProjectID, a, domain.StatusDone, "y")
	next, err = env.Engine.NextTask(env.Ctx, p.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, a, next.Task.ID)

	_, err = env.Engine.ApproveTask(env.Ctx, p.ProjectID, a)
	require.NoError(t, err)
	next, err = env.Engine.NextTask(env.Ctx, p.ProjectID)
	require.NoError(t, err)
	assert.Nil(t, next.Task)
	assert.True(t, next.AllTasksDone)

	_, err = env.Engine.NextTask(env.Ctx, "proj-404")
	requireCode(t, err, apperr.ProjectNotFound)
}

func TestFinalizeProject(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, false, "T1")
	id := p.Tasks[0].ID

	_, err := env.Engine.FinalizeProject(env.Ctx, p.ProjectID)
	requireCode(t, err, apperr.TasksNotAllDone)

	env.setStatus(t, p.ProjectID, id, domain.StatusInProgress, "")
	env.setStatus(t, p.ProjectID, id, domain.StatusDone, "x")
	_, err = env.Engine.FinalizeProject(env.Ctx, p.ProjectID)
	requireCode(t, err, apperr.TasksNotAllApproved)

	_, err = env.Engine.ApproveTask(env.Ctx, p.ProjectID, id)
	require.NoError(t, err)
	done, err := env.Engine.FinalizeProject(env.Ctx, p.ProjectID)
	require.NoError(t, err)
	assert.True(t, done.Completed)

	_, err = env.Engine.FinalizeProject(env.Ctx, p.ProjectID)
	requireCode(t, err, apperr.ProjectAlreadyCompleted)

	_, err = env.Engine.AddTasks(env.Ctx, p.ProjectID, []engine.TaskSpec{{Title: "late", Description: "late"}})
	requireCode(t, err, apperr.ProjectAlreadyCompleted)
	_, err = env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ProjectID: p.ProjectID, ProjectPlan: ptr("new")})
	requireCode(t, err, apperr.ProjectAlreadyCompleted)
}

func TestScenarioManualApproval(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{
		InitialPrompt: "scenario",
		Tasks:         []engine.TaskSpec{{Title: "T1", Description: "D1"}},
	})
	require.NoError(t, err)
	pid, tid := res.Project.ProjectID, res.Project.Tasks[0].ID

	env.setStatus(t, pid, tid, domain.StatusInProgress, "")
	upd := env.setStatus(t, pid, tid, domain.StatusDone, "x")
	assert.Equal(t, domain.StatusDone, upd.Task.Status)
	assert.False(t, upd.Task.Approved)
	assert.True(t, upd.ApprovalRequired)
	assert.Contains(t, upd.Message, "approved")

	appr, err := env.Engine.ApproveTask(env.Ctx, pid, tid)
	require.NoError(t, err)
	assert.True(t, appr.Task.Approved)

	proj, err := env.Engine.FinalizeProject(env.Ctx, pid)
	require.NoError(t, err)
	assert.True(t, proj.Completed)

	assert.Equal(t, []string{"project.created", "task.created", "task.updated", "task.updated", "task.approved", "project.finalized"}, env.Events.types())
}

func TestScenarioAutoApprove(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, true, "T1")
	pid, tid := p.ProjectID, p.Tasks[0].ID

	env.setStatus(t, pid, tid, domain.StatusInProgress, "")
	upd := env.setStatus(t, pid, tid, domain.StatusDone, "x")
	assert.True(t, upd.Task.Approved)
	assert.False(t, upd.ApprovalRequired)

	proj, err := env.Engine.FinalizeProject(env.Ctx, pid)
	require.NoError(t, err)
	assert.True(t, proj.Completed)
}

func TestListProjectsByState(t *testing.T) {
	env := newTestEnv(t)
	open := env.createProject(t, false, "a")
	pending := env.createProject(t, false, "b")
	completed := env.createProject(t, true, "c")

	bid := pending.Tasks[0].ID
	env.setStatus(t, pending.ProjectID, bid, domain.StatusInProgress, "")
	env.setStatus(t, pending.ProjectID, bid, domain.StatusDone, "x")

	cid := completed.Tasks[0].ID
	env.setStatus(t, completed.ProjectID, cid, domain.StatusInProgress, "")
	env.setStatus(t, completed.ProjectID, cid, domain.StatusDone, "x")
	_, err := env.Engine.FinalizeProject(env.Ctx, completed.ProjectID)
	require.NoError(t, err)

	ids := func(state string) []string {
		list, err := env.Engine.ListProjects(env.Ctx, state)
		require.NoError(t, err)
		out := []string{}
		for _, p := range list {
			out = append(out, p.ProjectID)
		}
		return out
	}
	assert.Equal(t, []string{open.ProjectID}, ids("open"))
	assert.Equal(t, []string{pending.ProjectID}, ids("pending_approval"))
	assert.Equal(t, []string{completed.ProjectID}, ids("completed"))
	assert.Equal(t, []string{open.ProjectID, pending.ProjectID, completed.ProjectID}, ids(""))
	assert.Equal(t, ids(""), ids("all"))

	list, err := env.Engine.ListProjects(env.Ctx, "pending_approval")
	require.NoError(t, err)
	assert.Equal(t, domain.Summary{Total: 1, Done: 1, Approved: 0}, list[0].Summary)

	_, err = env.Engine.ListProjects(env.Ctx, "someday")
	requireCode(t, err, apperr.InvalidState)
}

func TestListTasksByState(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, false, "a", "b", "c")
	other := env.createProject(t, false, "d")
	b, c := p.Tasks[1].ID, p.Tasks[2].ID
	for _, id := range []string{b, c} {
		env.setStatus(t, p.ProjectID, id, domain.StatusInProgress, "")
		env.setStatus(t, p.ProjectID, id, domain.StatusDone, "x")
	}
	_, err := env.Engine.ApproveTask(env.Ctx, p.ProjectID, c)
	require.NoError(t, err)

	ids := func(f engine.TaskFilters) []string {
		list, err := env.Engine.ListTasks(env.Ctx, f)
		require.NoError(t, err)
		out := []string{}
		for _, t := range list {
			out = append(out, t.ID)
		}
		return out
	}
	assert.Equal(t, []string{p.Tasks[0].ID, b}, ids(engine.TaskFilters{ProjectID: p.ProjectID, State: "open"}))
	assert.Equal(t, []string{b}, ids(engine.TaskFilters{ProjectID: p.ProjectID, State: "pending_approval"}))
	assert.Equal(t, []string{c}, ids(engine.TaskFilters{ProjectID: p.ProjectID, State: "completed"}))
	assert.Equal(t, []string{p.Tasks[0].ID, b, c, other.Tasks[0].ID}, ids(engine.TaskFilters{}))

	list, err := env.Engine.ListTasks(env.Ctx, engine.TaskFilters{State: "open"})
	require.NoError(t, err)
	assert.Equal(t, other.ProjectID, list[len(list)-1].ProjectID)

	_, err = env.Engine.ListTasks(env.Ctx, engine.TaskFilters{State: "bogus"})
	requireCode(t, err, apperr.InvalidState)
	_, err = env.Engine.ListTasks(env.Ctx, engine.TaskFilters{ProjectID: "proj-404"})
	requireCode(t, err, apperr.ProjectNotFound)
}

func TestAddAndDeleteTasks(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, false, "a")

	added, err := env.Engine.AddTasks(env.Ctx, p.ProjectID, []engine.TaskSpec{{Title: "b", Description: "b"}, {Title: "c", Description: "c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"task-2", "task-3"}, []string{added[0].ID, added[1].ID})

	_, err = env.Engine.AddTasks(env.Ctx, p.ProjectID, []engine.TaskSpec{{Title: "ok", Description: "ok"}, {Title: "", Description: "x"}})
	requireCode(t, err, apperr.MissingParameter)
	got, err := env.Engine.GetProject(env.Ctx, p.ProjectID)
	require.NoError(t, err)
	assert.Len(t, got.Tasks, 3, "a rejected batch adds nothing")

	_, err = env.Engine.AddTasks(env.Ctx, "proj-404", []engine.TaskSpec{{Title: "x", Description: "x"}})
	requireCode(t, err, apperr.ProjectNotFound)

	// Approved tasks may still be deleted.
	env.setStatus(t, p.ProjectID, "task-2", domain.StatusInProgress, "")
	env.setStatus(t, p.ProjectID, "task-2", domain.StatusDone, "x")
	_, err = env.Engine.ApproveTask(env.Ctx, p.ProjectID, "task-2")
	require.NoError(t, err)
	require.NoError(t, env.Engine.DeleteTask(env.Ctx, p.ProjectID, "task-2"))

	got, err = env.Engine.GetProject(env.Ctx, p.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, []string{"task-1", "task-3"}, []string{got.Tasks[0].ID, got.Tasks[1].ID})

	requireCode(t, env.Engine.DeleteTask(env.Ctx, p.ProjectID, "task-2"), apperr.TaskNotFound)

	single, err := env.Engine.CreateTask(env.Ctx, p.ProjectID, engine.TaskSpec{Title: "d", Description: "d"})
	require.NoError(t, err)
	assert.Equal(t, "task-4", single.ID)
}

func TestGetTask(t *testing.T) {
	env := newTestEnv(t)
	env.createProject(t, false, "a")
	p := env.createProject(t, false, "b")

	details, err := env.Engine.GetTask(env.Ctx, p.Tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, p.ProjectID, details.ProjectID)
	assert.Equal(t, "b", details.Task.Title)

	_, err = env.Engine.GetTask(env.Ctx, "task-404")
	requireCode(t, err, apperr.TaskNotFound)
	_, err = env.Engine.GetTask(env.Ctx, "")
	requireCode(t, err, apperr.MissingParameter)

	task, err := env.Engine.GetProjectTask(env.Ctx, p.ProjectID, p.Tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, p.Tasks[0], task)
	_, err = env.Engine.GetProjectTask(env.Ctx, p.ProjectID, "task-1")
	requireCode(t, err, apperr.TaskNotFound)
}

func TestUpdateAndDeleteProject(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, false, "a", "b")

	got, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ProjectID: p.ProjectID, ProjectPlan: ptr("step by step")})
	require.NoError(t, err)
	assert.Equal(t, "step by step", got.ProjectPlan)
	assert.Equal(t, "build things", got.InitialPrompt)

	_, err = env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ProjectID: p.ProjectID, InitialPrompt: ptr("")})
	requireCode(t, err, apperr.InvalidArgument)

	require.NoError(t, env.Engine.DeleteProject(env.Ctx, p.ProjectID))
	_, err = env.Engine.GetProject(env.Ctx, p.ProjectID)
	requireCode(t, err, apperr.ProjectNotFound)
	_, err = env.Engine.GetTask(env.Ctx, p.Tasks[0].ID)
	requireCode(t, err, apperr.TaskNotFound)
	requireCode(t, env.Engine.DeleteProject(env.Ctx, p.ProjectID), apperr.ProjectNotFound)

	assert.Contains(t, env.Events.types(), "project.updated")
	assert.Contains(t, env.Events.types(), "project.deleted")
}

func TestStoreFailuresPropagate(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, false, "a")

	env.Store.SaveErr = apperr.New(apperr.FileWriteError, "disk full")
	_, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ProjectID: p.ProjectID, TaskID: p.Tasks[0].ID, Status: status(domain.StatusInProgress)})
	requireCode(t, err, apperr.FileWriteError)

	env.Store.SaveErr = nil
	env.Store.LoadErr = apperr.New(apperr.FileParseError, "garbage")
	_, err = env.Engine.ListProjects(env.Ctx, "")
	requireCode(t, err, apperr.FileParseError)
}

func TestEventFailureDoesNotFailOperation(t *testing.T) {
	env := newTestEnv(t)
	env.Events.err = errors.New("events table locked")
	p := env.createProject(t, false, "a")
	_, err := env.Engine.GetProject(env.Ctx, p.ProjectID)
	require.NoError(t, err)
}

func TestConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, false, "seed")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Engine.AddTasks(env.Ctx, p.ProjectID, []engine.TaskSpec{{Title: "t", Description: "d"}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := env.Engine.GetProject(env.Ctx, p.ProjectID)
	require.NoError(t, err)
	assert.Len(t, got.Tasks, 21)
	seen := map[string]bool{}
	for _, task := range got.Tasks {
		assert.False(t, seen[task.ID], "duplicate id %s", task.ID)
		seen[task.ID] = true
	}
}

type fakeGenerator struct {
	plan llm.Plan
	err  error
	got  llm.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req llm.Request) (llm.Plan, error) {
	f.got = req
	return f.plan, f.err
}

func TestGenerateProject(t *testing.T) {
	env := newTestEnv(t)
	gen := &fakeGenerator{plan: llm.Plan{ProjectPlan: "the plan", Tasks: []llm.PlanTask{{Title: "T1", Description: "D1", RuleRecommendations: "r"}}}}

	res, err := env.Engine.GenerateProject(env.Ctx, gen, engine.GenerateOptions{Prompt: "make it", Provider: "openai", AutoApprove: true})
	require.NoError(t, err)
	assert.Equal(t, "make it", res.Project.InitialPrompt)
	assert.Equal(t, "the plan", res.Project.ProjectPlan)
	assert.True(t, res.Project.AutoApprove)
	assert.Equal(t, "r", res.Project.Tasks[0].RuleRecommendations)
	assert.Equal(t, "openai", gen.got.Provider)

	gen.err = apperr.New(apperr.LLMGenerationError, "model down")
	_, err = env.Engine.GenerateProject(env.Ctx, gen, engine.GenerateOptions{Prompt: "again"})
	requireCode(t, err, apperr.LLMGenerationError)

	_, err = env.Engine.GenerateProject(env.Ctx, nil, engine.GenerateOptions{Prompt: "again"})
	requireCode(t, err, apperr.ConfigurationError)
}
