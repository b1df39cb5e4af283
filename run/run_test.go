package run

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	rc := New("check my code", "", -1)
	require.NotEmpty(t, rc.RunID)
	assert.Equal(t, ModeAuto, rc.Mode)
	assert.Equal(t, 0, rc.MaxReplans)
	assert.Equal(t, StatusPending, rc.Status)
	require.Len(t, rc.Messages, 1)
	assert.Equal(t, "user", rc.Messages[0].Role)
	assert.Equal(t, "check my code", rc.Messages[0].Content)
	assert.False(t, rc.Terminal())
}

func TestTerminal(t *testing.T) {
	for _, status := range []Status{StatusDone, StatusFailed, StatusRejected} {
		rc := New("r", ModeAuto, 2)
		rc.Status = status
		assert.True(t, rc.Terminal(), "status %s", status)
	}
	rc := New("r", ModeAuto, 2)
	rc.Status = StatusExecuting
	assert.False(t, rc.Terminal())
}

func TestAgentsUsed(t *testing.T) {
	rc := New("r", ModeAuto, 2)
	rc.TaskResults = []Task{
		{ID: "t1", WorkerName: "Zeta", Status: TaskCompleted},
		{ID: "t2", WorkerName: "Alpha", Status: TaskCompleted},
		{ID: "t3", WorkerName: "Zeta", Status: TaskCompleted},
		{ID: "t4", WorkerName: "Failed", Status: TaskFailed},
		{ID: "t5", WorkerName: "", Status: TaskCompleted},
	}
	assert.Equal(t, []string{"Alpha", "Zeta"}, rc.AgentsUsed())
}

func TestAgentsUsedEmpty(t *testing.T) {
	rc := New("r", ModeAuto, 2)
	assert.Nil(t, rc.AgentsUsed())
}

func TestMergeResultsNewerWins(t *testing.T) {
	rc := New("r", ModeAuto, 2)
	rc.TaskResults = []Task{
		{ID: "t1", Status: TaskFailed, Error: "boom"},
		{ID: "t2", Status: TaskCompleted, Result: "ok"},
	}
	rc.MergeResults([]Task{
		{ID: "t1", Status: TaskCompleted, Result: "retried"},
		{ID: "t3", Status: TaskCompleted, Result: "new"},
	})
	require.Len(t, rc.TaskResults, 3)
	byID := rc.ResultsByID()
	assert.Equal(t, TaskCompleted, byID["t1"].Status)
	assert.Equal(t, "retried", byID["t1"].Result)
	assert.Equal(t, "ok", byID["t2"].Result)
	assert.Equal(t, "new", byID["t3"].Result)
}

func TestPlanAcyclic(t *testing.T) {
	cases := []struct {
		name  string
		tasks []Task
		want  bool
	}{
		{"empty", nil, true},
		{"chain", []Task{
			{ID: "a"},
			{ID: "b", Dependencies: []string{"a"}},
			{ID: "c", Dependencies: []string{"b"}},
		}, true},
		{"diamond", []Task{
			{ID: "a"},
			{ID: "b", Dependencies: []string{"a"}},
			{ID: "c", Dependencies: []string{"a"}},
			{ID: "d", Dependencies: []string{"b", "c"}},
		}, true},
		{"self loop", []Task{
			{ID: "a", Dependencies: []string{"a"}},
		}, false},
		{"two cycle", []Task{
			{ID: "a", Dependencies: []string{"b"}},
			{ID: "b", Dependencies: []string{"a"}},
		}, false},
		{"unknown refs ignored", []Task{
			{ID: "a", Dependencies: []string{"ghost"}},
		}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Plan{Tasks: tc.tasks}
			assert.Equal(t, tc.want, p.Acyclic())
		})
	}
}

func TestDependenciesMet(t *testing.T) {
	done := map[string]Task{
		"a": {ID: "a", Status: TaskCompleted},
		"b": {ID: "b", Status: TaskFailed},
	}
	assert.True(t, DependenciesMet(Task{ID: "x"}, done))
	assert.True(t, DependenciesMet(Task{ID: "x", Dependencies: []string{"a"}}, done))
	assert.False(t, DependenciesMet(Task{ID: "x", Dependencies: []string{"b"}}, done))
	assert.False(t, DependenciesMet(Task{ID: "x", Dependencies: []string{"missing"}}, done))
	assert.False(t, DependenciesMet(Task{ID: "x", Dependencies: []string{"a", "b"}}, done))
}

func TestPlanTaskByID(t *testing.T) {
	p := Plan{Tasks: []Task{{ID: "a", Description: "first"}}}
	got, ok := p.TaskByID("a")
	require.True(t, ok)
	assert.Equal(t, "first", got.Description)
	_, ok = p.TaskByID("missing")
	assert.False(t, ok)
}
