package upgrade

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionMode(t *testing.T) {
	tests := []struct {
		mode     ExecutionMode
		isUpdate bool
		valid    bool
	}{
		{"", true, true},
		{ModeUpdate, true, true},
		{ModeBranch, false, true},
		{"weekly", false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			assert.Equal(t, tt.isUpdate, tt.mode.IsUpdate())
			assert.Equal(t, tt.valid, tt.mode.Valid())
		})
	}
}

func TestUnit_DepName(t *testing.T) {
	u := &Unit{DepNames: []string{"lodash", "react"}}
	assert.Equal(t, "lodash react", u.DepName())
	assert.False(t, u.HasCommands())
}

func TestBranchConfig_HasChangedFiles(t *testing.T) {
	b := &BranchConfig{}
	assert.False(t, b.HasChangedFiles())

	b.UpdatedArtifacts = []FileChange{{Path: "a.lock", Type: ChangeDeletion}}
	assert.True(t, b.HasChangedFiles())
}

func TestExecutionResult_CloneDoesNotAlias(t *testing.T) {
	orig := &ExecutionResult{
		UpdatedArtifacts: []FileChange{{Path: "a", Type: ChangeAddition, Contents: []byte("x")}},
	}

	clone := orig.Clone()
	clone.UpdatedArtifacts[0].Contents[0] = 'y'
	clone.UpdatedArtifacts = append(clone.UpdatedArtifacts, FileChange{Path: "b"})

	assert.Equal(t, "x", string(orig.UpdatedArtifacts[0].Contents))
	assert.Len(t, orig.UpdatedArtifacts, 1)
}

func TestExecutionResult_NilClone(t *testing.T) {
	var r *ExecutionResult
	out := r.Clone()
	require.NotNil(t, out)
	assert.Empty(t, out.UpdatedArtifacts)
	assert.Empty(t, out.ArtifactErrors)
}

func TestExecutionResult_WithErrorsAppends(t *testing.T) {
	base := &ExecutionResult{ArtifactErrors: []ArtifactError{{Stderr: "one"}}}
	next := base.WithErrors(ArtifactError{Stderr: "one"})

	assert.Len(t, base.ArtifactErrors, 1)
	assert.Len(t, next.ArtifactErrors, 2, "errors are never deduplicated")
}

func TestCommandError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w",
		NewCommandError(KindTemplateRenderFailed, "echo {{", errors.New("unexpected EOF")))

	assert.ErrorIs(t, err, ErrTemplateRenderFailed)
	assert.NotErrorIs(t, err, ErrCommandRejected)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "echo {{", cmdErr.Command)
	assert.Equal(t, "unexpected EOF", cmdErr.Error())
}

func TestParseTemplatePolicy(t *testing.T) {
	p, err := ParseTemplatePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyArtifactError, p)

	p, err = ParseTemplatePolicy("abort")
	require.NoError(t, err)
	assert.Equal(t, PolicyAbort, p)

	_, err = ParseTemplatePolicy("retry")
	assert.ErrorContains(t, err, `unknown template failure policy "retry"`)
}
