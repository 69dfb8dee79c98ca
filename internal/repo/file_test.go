package repo_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskqueue/internal/apperr"
	"taskqueue/internal/domain"
	"taskqueue/internal/repo"
)

func sample() *domain.Collection {
	return &domain.Collection{Projects: []domain.Project{
		{
			ProjectID: "proj-1", InitialPrompt: "build", ProjectPlan: "plan",
			Tasks: []domain.Task{
				{ID: "task-1", Title: "a", Description: "da", Status: domain.StatusDone, Approved: true, CompletedDetails: "ok"},
				{ID: "task-2", Title: "b", Description: "db", Status: domain.StatusInProgress, ToolRecommendations: "go vet"},
			},
		},
		{ProjectID: "proj-2", InitialPrompt: "second", ProjectPlan: "second", Tasks: []domain.Task{}, AutoApprove: true},
	}}
}

func TestFileStoreMissingFileIsEmptyOnFirstAccess(t *testing.T) {
	ctx := context.Background()
	s := repo.NewFileStore(filepath.Join(t.TempDir(), "tasks.json"))

	c, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, c.Projects)
	assert.NotNil(t, c.Projects)

	// Reads before the first save still see an empty store.
	c, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, c.Projects)
}

func TestFileStoreVanishedFileIsReadError(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.json")
	s := repo.NewFileStore(path)
	require.NoError(t, s.Save(ctx, sample()))
	require.NoError(t, os.Remove(path))

	_, err := s.Load(ctx)
	assert.True(t, apperr.Is(err, apperr.FileReadError), "got %v", err)
}

func TestFileStoreParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := repo.NewFileStore(path).Load(context.Background())
	assert.True(t, apperr.Is(err, apperr.FileParseError), "got %v", err)
}

func TestFileStoreBlankFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o644))

	c, err := repo.NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, c.Projects)
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "tasks.json")
	require.NoError(t, repo.NewFileStore(path).Save(ctx, sample()))

	c, err := repo.NewFileStore(path).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sample(), c)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileStoreDefaultsMissingStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	doc := `{"projects":[{"projectId":"proj-1","initialPrompt":"p","projectPlan":"p","tasks":[{"id":"task-1","title":"t","description":"d"}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	c, err := repo.NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNotStarted, c.Projects[0].Tasks[0].Status)
}

func TestMemoryIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	m := repo.NewMemory(sample())
	c, err := m.Load(ctx)
	require.NoError(t, err)
	c.Projects[0].Tasks[0].Title = "changed"

	again, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", again.Projects[0].Tasks[0].Title)
	assert.Zero(t, m.Saves())
}
