package apperr

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeCategories(t *testing.T) {
	tests := []struct {
		code Code
		want Category
	}{
		{MissingParameter, CategoryValidation},
		{InvalidState, CategoryValidation},
		{ProjectNotFound, CategoryNotFound},
		{TaskNotFound, CategoryNotFound},
		{InvalidStatusTransition, CategoryStateTransition},
		{CannotModifyApprovedTask, CategoryStateTransition},
		{TasksNotAllApproved, CategoryStateTransition},
		{FileWriteError, CategoryFileSystem},
		{LLMGenerationError, CategoryExternalProvider},
		{ConfigurationError, CategoryExternalProvider},
		{Code("SomethingElse"), CategoryInternal},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.Category())
		})
	}
}

func TestEveryCodeHasCategory(t *testing.T) {
	for code := range categories {
		assert.NotEmpty(t, code.Category(), code)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(FileReadError, os.ErrPermission, "read %s", "tasks.json")
	wrapped := fmt.Errorf("load: %w", err)

	require.True(t, errors.Is(wrapped, os.ErrPermission))
	assert.Equal(t, FileReadError, CodeOf(wrapped))
	assert.Equal(t, CategoryFileSystem, As(wrapped).Category())
	assert.Contains(t, err.Error(), "read tasks.json")
}

func TestAsUnclassified(t *testing.T) {
	got := As(errors.New("boom"))
	assert.Equal(t, Unknown, got.Code)
	assert.Equal(t, "boom", got.Message)
	assert.Nil(t, As(nil))
	assert.Equal(t, Code(""), CodeOf(nil))
}

func TestWithDetails(t *testing.T) {
	err := New(TaskNotFound, "task %s not found", "task-9").With("task_id", "task-9")
	assert.True(t, Is(err, TaskNotFound))
	assert.False(t, Is(err, ProjectNotFound))
	assert.Equal(t, "task-9", err.Details["task_id"])
}
