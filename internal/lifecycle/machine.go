package lifecycle

import (
	"slices"

	"github.com/aryan0dhankhar/stratahub/internal/domain"
)

// machine describes the statuses of one record kind. Along the happy path a
// record may move to any later status, but never past a checkpoint it has not
// reached; detours lists extra targets allowed from a given status. Terminal
// statuses have no way out.
type machine struct {
	kind        string
	path        []string
	checkpoints []string
	detours     map[string][]string
	terminal    []string
}

var repairRequestMachine = machine{
	kind: "repair request",
	path: []string{
		domain.RequestSuggested,
		domain.RequestApproved,
		domain.RequestPlanned,
		domain.RequestScheduled,
		domain.RequestInProgress,
		domain.RequestCompleted,
	},
	// approval stamps approvedBy/approvedAt and cannot be skipped
	checkpoints: []string{domain.RequestApproved},
	detours: map[string][]string{
		domain.RequestSuggested: {domain.RequestRejected},
		domain.RequestApproved:  {domain.RequestRejected},
	},
	terminal: []string{domain.RequestRejected, domain.RequestCompleted},
}

var projectMachine = machine{
	kind: "maintenance project",
	path: []string{
		domain.ProjectPlanned,
		domain.ProjectScheduled,
		domain.ProjectInProgress,
		domain.ProjectCompleted,
	},
	detours: map[string][]string{
		domain.ProjectPlanned:    {domain.ProjectCancelled},
		domain.ProjectScheduled:  {domain.ProjectCancelled},
		domain.ProjectInProgress: {domain.ProjectCancelled},
	},
	terminal: []string{domain.ProjectCompleted, domain.ProjectCancelled},
}

func (m machine) known(status string) bool {
	if slices.Contains(m.path, status) {
		return true
	}
	for _, targets := range m.detours {
		if slices.Contains(targets, status) {
			return true
		}
	}
	return false
}

func (m machine) isTerminal(status string) bool {
	return slices.Contains(m.terminal, status)
}

func (m machine) allowed(from, to string) bool {
	if m.isTerminal(from) {
		return false
	}
	if slices.Contains(m.detours[from], to) {
		return true
	}
	i, j := slices.Index(m.path, from), slices.Index(m.path, to)
	if i < 0 || j <= i {
		return false
	}
	for _, skipped := range m.path[i+1 : j] {
		if slices.Contains(m.checkpoints, skipped) {
			return false
		}
	}
	return true
}
