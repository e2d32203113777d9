package policy

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Verdict is the outcome of matching one desired policy.
type Verdict int

const (
	VerdictCreate Verdict = iota
	VerdictUpdate
	VerdictNoOp
)

func (v Verdict) String() string {
	switch v {
	case VerdictCreate:
		return "create"
	case VerdictUpdate:
		return "update"
	case VerdictNoOp:
		return "noop"
	default:
		return "unknown"
	}
}

// Match is the result of Matcher.Match.
type Match struct {
	Verdict Verdict
	// TypeID is the resolved server type id; uuid.Nil when unresolved.
	TypeID   uuid.UUID
	Resolved bool
	// Server is the matched server policy, nil for VerdictCreate.
	Server *ServerPolicy
}

// TypeIndex resolves kinds against the policy types listed for a project.
type TypeIndex struct {
	byName map[string]PolicyType
	byID   map[uuid.UUID]PolicyType
}

func NewTypeIndex(types []PolicyType) *TypeIndex {
	ix := &TypeIndex{
		byName: make(map[string]PolicyType, len(types)),
		byID:   make(map[uuid.UUID]PolicyType, len(types)),
	}
	for _, t := range types {
		name := strings.ToLower(strings.TrimSpace(t.DisplayName))
		if _, exists := ix.byName[name]; !exists && name != "" {
			ix.byName[name] = t
		}
		ix.byID[t.ID] = t
	}
	return ix
}

// Resolve finds the server type for k, by display name first and by the
// kind's well-known id second.
func (ix *TypeIndex) Resolve(k Kind) (PolicyType, bool) {
	if ix == nil || k == nil {
		return PolicyType{}, false
	}
	if t, ok := ix.byName[strings.ToLower(k.DisplayName())]; ok {
		return t, true
	}
	t, ok := ix.byID[k.TypeID()]
	return t, ok
}

func (ix *TypeIndex) Lookup(id uuid.UUID) (PolicyType, bool) {
	if ix == nil {
		return PolicyType{}, false
	}
	t, ok := ix.byID[id]
	return t, ok
}

// BranchEquivalent reports whether a desired branch selector and a server
// branch selector target the same refs.
func BranchEquivalent(desiredBranch string, desiredKind MatchKind, serverBranch string, serverKind MatchKind) bool {
	if desiredBranch == "" && serverBranch == "" {
		return true
	}
	if desiredBranch == "" || serverBranch == "" {
		return false
	}
	return desiredBranch == serverBranch && desiredKind == serverKind
}

// Matcher finds and classifies the server counterpart of desired policies
// within one repository.
type Matcher struct {
	Types *TypeIndex
	Log   *zap.Logger
}

func (m *Matcher) logger() *zap.Logger {
	if m.Log == nil {
		return zap.NewNop()
	}
	return m.Log
}

// Match looks for the first server policy with the same type and an
// equivalent branch. An unresolvable type never matches.
func (m *Matcher) Match(p Policy, servers []ServerPolicy) Match {
	kind, ok := LookupKind(p.Type)
	if !ok {
		m.logger().Warn("policy type unresolved", zap.String("type", p.Type), zap.String("reason", "unknown kind"))
		return Match{Verdict: VerdictCreate}
	}
	pt, ok := m.Types.Resolve(kind)
	if !ok {
		m.logger().Warn("policy type unresolved",
			zap.String("type", kind.Name()),
			zap.String("display_name", kind.DisplayName()),
			zap.String("branch", p.Branch))
		return Match{Verdict: VerdictCreate}
	}

	for i := range servers {
		s := &servers[i]
		if s.TypeID != pt.ID {
			continue
		}
		if !BranchEquivalent(p.Branch, p.MatchKind, s.Branch, s.MatchKind) {
			continue
		}
		verdict := VerdictUpdate
		if m.upToDate(kind, p, *s) {
			verdict = VerdictNoOp
		}
		return Match{Verdict: verdict, TypeID: pt.ID, Resolved: true, Server: s}
	}
	return Match{Verdict: VerdictCreate, TypeID: pt.ID, Resolved: true}
}

func (m *Matcher) upToDate(kind Kind, p Policy, s ServerPolicy) bool {
	if p.Enabled != s.Enabled || p.Blocking != s.Blocking {
		return false
	}
	current, err := kind.DecodeServerSettings(s.Settings)
	if err != nil {
		m.logger().Warn("server policy settings unreadable",
			zap.Int("policy_id", s.ID),
			zap.String("type", kind.Name()),
			zap.Error(err))
		return false
	}
	return kind.EqualSettings(p.Settings, current)
}
