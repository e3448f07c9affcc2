package testutil

import "testing"

// Step is one clause of a Scenario.
type Step struct {
	Clause string
	Run    func(t *testing.T)
}

func Given(desc string, fn func(t *testing.T)) Step { return Step{Clause: "Given " + desc, Run: fn} }

func When(desc string, fn func(t *testing.T)) Step { return Step{Clause: "When " + desc, Run: fn} }

func Then(desc string, fn func(t *testing.T)) Step { return Step{Clause: "Then " + desc, Run: fn} }

// Scenario runs steps in order as subtests of name and stops at the first
// failing step. Mocks shared between steps must be created on the outer t.
func Scenario(t *testing.T, name string, steps ...Step) {
	t.Helper()
	t.Run(name, func(t *testing.T) {
		for _, step := range steps {
			if !t.Run(step.Clause, step.Run) {
				return
			}
		}
	})
}
