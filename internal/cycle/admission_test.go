package cycle

import (
	"testing"

	"github.com/madhatter5501/workloop/internal/config"
	"github.com/madhatter5501/workloop/internal/model"
)

// fakeCounter is a scriptable AgentCounter: each dimension is looked up
// independently, matching how the real agent manager counts active handles.
type fakeCounter struct {
	global    int
	byProject map[string]int
	byRole    map[model.Role]int
}

func (f *fakeCounter) ActiveCount(projectID string, role model.Role) int {
	switch {
	case projectID == "" && role == "":
		return f.global
	case role == "":
		return f.byProject[projectID]
	default:
		return f.byRole[role]
	}
}

func testConfig() config.Config {
	return config.Config{
		MaxAgentsGlobal:     6,
		MaxAgentsPerProject: 3,
		MaxDevAgents:        4,
		MaxReviewerAgents:   2,
	}
}

// TestAdmission_Check verifies §4.7's ordering: global, then per-project,
// then per-role, and that under every limit returns DenialNone.
func TestAdmission_Check(t *testing.T) {
	cases := []struct {
		name    string
		counter *fakeCounter
		role    model.Role
		want    DenialReason
	}{
		{
			name:    "under every limit",
			counter: &fakeCounter{global: 1, byProject: map[string]int{"p1": 0}, byRole: map[model.Role]int{model.RoleDev: 0}},
			role:    model.RoleDev,
			want:    DenialNone,
		},
		{
			name:    "global limit reached",
			counter: &fakeCounter{global: 6, byProject: map[string]int{"p1": 0}, byRole: map[model.Role]int{model.RoleDev: 0}},
			role:    model.RoleDev,
			want:    DenialGlobal,
		},
		{
			name:    "project limit reached, global still clear",
			counter: &fakeCounter{global: 4, byProject: map[string]int{"p1": 3}, byRole: map[model.Role]int{model.RoleDev: 0}},
			role:    model.RoleDev,
			want:    DenialProject,
		},
		{
			name:    "dev role limit reached",
			counter: &fakeCounter{global: 4, byProject: map[string]int{"p1": 1}, byRole: map[model.Role]int{model.RoleDev: 4}},
			role:    model.RoleDev,
			want:    DenialDev,
		},
		{
			name:    "reviewer role limit reached",
			counter: &fakeCounter{global: 4, byProject: map[string]int{"p1": 1}, byRole: map[model.Role]int{model.RoleReviewer: 2}},
			role:    model.RoleReviewer,
			want:    DenialReviewer,
		},
		{
			name:    "global checked before project, even if project is also over",
			counter: &fakeCounter{global: 6, byProject: map[string]int{"p1": 3}, byRole: map[model.Role]int{model.RoleDev: 4}},
			role:    model.RoleDev,
			want:    DenialGlobal,
		},
		{
			name:    "project checked before role",
			counter: &fakeCounter{global: 4, byProject: map[string]int{"p1": 3}, byRole: map[model.Role]int{model.RoleDev: 4}},
			role:    model.RoleDev,
			want:    DenialProject,
		},
		{
			name:    "role outside dev/reviewer is never limited",
			counter: &fakeCounter{global: 4, byProject: map[string]int{"p1": 1}, byRole: map[model.Role]int{}},
			role:    model.RolePM,
			want:    DenialNone,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a := NewAdmission(testConfig(), c.counter)
			if got := a.Check("p1", c.role); got != c.want {
				t.Fatalf("Check() = %q, want %q", got, c.want)
			}
		})
	}
}
