package run

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestPlanAcyclicProperty verifies that plans whose dependencies only point
// at strictly earlier tasks are always acyclic, for any random shape.
func TestPlanAcyclicProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("backward-only dependencies never form a cycle", prop.ForAll(
		func(edges [][]bool) bool {
			p := planFromEdges(edges)
			return p.Acyclic()
		},
		genBackwardEdges(),
	))

	properties.Property("adding a back edge to a chain creates a cycle", prop.ForAll(
		func(n int) bool {
			tasks := make([]Task, n)
			for i := range tasks {
				tasks[i].ID = fmt.Sprintf("t%d", i)
				if i > 0 {
					tasks[i].Dependencies = []string{fmt.Sprintf("t%d", i-1)}
				}
			}
			// Close the chain into a ring.
			tasks[0].Dependencies = []string{fmt.Sprintf("t%d", n-1)}
			p := Plan{Tasks: tasks}
			return !p.Acyclic()
		},
		gen.IntRange(2, 20),
	))

	properties.TestingRun(t)
}

// TestMergeResultsProperty verifies that merging preserves the invariant
// that each task id appears exactly once and the newest entry wins.
func TestMergeResultsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("ids are unique after merge and newest entry wins", prop.ForAll(
		func(firstN, secondN int) bool {
			rc := New("request", ModeAuto, 2)
			for i := 0; i < firstN; i++ {
				rc.TaskResults = append(rc.TaskResults, Task{
					ID: fmt.Sprintf("t%d", i), Status: TaskFailed, Error: "old",
				})
			}
			var settled []Task
			for i := 0; i < secondN; i++ {
				settled = append(settled, Task{
					ID: fmt.Sprintf("t%d", i), Status: TaskCompleted, Result: "new",
				})
			}
			rc.MergeResults(settled)

			seen := make(map[string]int)
			for _, task := range rc.TaskResults {
				seen[task.ID]++
				if seen[task.ID] > 1 {
					return false
				}
			}
			for i := 0; i < secondN && i < firstN; i++ {
				got := rc.ResultsByID()[fmt.Sprintf("t%d", i)]
				if got.Status != TaskCompleted || got.Result != "new" {
					return false
				}
			}
			return len(rc.TaskResults) == max(firstN, secondN)
		},
		gen.IntRange(0, 30),
		gen.IntRange(0, 30),
	))

	properties.TestingRun(t)
}

// planFromEdges builds a plan of len(edges) tasks where task i depends on
// task j iff j < i and edges[i][j] is set.
func planFromEdges(edges [][]bool) Plan {
	tasks := make([]Task, len(edges))
	for i := range tasks {
		tasks[i].ID = fmt.Sprintf("t%d", i)
		for j := 0; j < i && j < len(edges[i]); j++ {
			if edges[i][j] {
				tasks[i].Dependencies = append(tasks[i].Dependencies, fmt.Sprintf("t%d", j))
			}
		}
	}
	return Plan{Tasks: tasks}
}

func genBackwardEdges() gopter.Gen {
	return gen.SliceOf(gen.SliceOf(gen.Bool()))
}
