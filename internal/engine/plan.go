package engine

import (
	"branchwarden/internal/decision"
	"branchwarden/internal/policy"
)

// RepoPlan is the outcome of reconciling one repository.
type RepoPlan struct {
	Project    policy.Project
	Repository policy.Repository
	// Decisions lists desired-policy decisions in scope-filter order,
	// followed by delete or would-delete decisions in server order.
	Decisions []decision.Decision
	// Claimed holds the ids of server policies matched by a desired policy.
	Claimed map[int]struct{}
}

func newRepoPlan(project policy.Project, repo policy.Repository) *RepoPlan {
	return &RepoPlan{
		Project:    project,
		Repository: repo,
		Claimed:    make(map[int]struct{}),
	}
}

func (p *RepoPlan) claim(id int) {
	p.Claimed[id] = struct{}{}
}

// IsClaimed reports whether the server policy id was matched.
func (p *RepoPlan) IsClaimed(id int) bool {
	_, ok := p.Claimed[id]
	return ok
}

// Count returns how many decisions carry the given action.
func (p *RepoPlan) Count(action decision.Action) int {
	n := 0
	for _, d := range p.Decisions {
		if d.Action == action {
			n++
		}
	}
	return n
}
