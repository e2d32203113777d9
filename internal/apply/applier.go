// Package apply carries out create, update and delete decisions against
// the remote service.
package apply

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"branchwarden/internal/azdo"
	"branchwarden/internal/decision"
	"branchwarden/internal/policy"

	"github.com/google/uuid"
)

// Applier executes decisions for one policy type. Create and Update return
// the id of the resulting server policy.
type Applier interface {
	Create(ctx context.Context, d decision.Decision) (int, error)
	Update(ctx context.Context, d decision.Decision) (int, error)
	Delete(ctx context.Context, d decision.Decision) error
}

// Writer is the write side of the Azure DevOps API.
type Writer interface {
	CreatePolicyConfiguration(ctx context.Context, project string, cfg azdo.PolicyConfiguration) (*azdo.PolicyConfiguration, error)
	UpdatePolicyConfiguration(ctx context.Context, project string, id int, cfg azdo.PolicyConfiguration) (*azdo.PolicyConfiguration, error)
	DeletePolicyConfiguration(ctx context.Context, project string, id int) error
}

var ErrUnsupported = errors.New("operation not supported for this policy type")

// kindApplier writes configurations of one registered kind.
type kindApplier struct {
	kind   policy.Kind
	remote Writer
}

func (a *kindApplier) configuration(d decision.Decision) (azdo.PolicyConfiguration, error) {
	if d.Desired == nil {
		return azdo.PolicyConfiguration{}, fmt.Errorf("%s: decision has no desired policy", d.Action)
	}
	if d.Repository.ID == uuid.Nil {
		return azdo.PolicyConfiguration{}, fmt.Errorf("%s: repository id is required", d.Action)
	}

	settings, err := a.kind.EncodeSettings(d.Desired.Settings)
	if err != nil {
		return azdo.PolicyConfiguration{}, err
	}

	repoID := d.Repository.ID
	scope := azdo.Scope{RepositoryID: &repoID}
	if branch := d.Desired.Branch; branch != "" {
		scope.RefName = policy.RefName(branch)
		scope.MatchKind = string(d.Desired.MatchKind)
	}
	raw, err := azdo.ConfigurationSettings(settings, scope)
	if err != nil {
		return azdo.PolicyConfiguration{}, fmt.Errorf("%s settings: %w", a.kind.Name(), err)
	}

	typeID := d.TypeID
	if typeID == uuid.Nil {
		// Unresolved against the project's types; let the server judge the
		// well-known id.
		typeID = a.kind.TypeID()
	}
	return azdo.PolicyConfiguration{
		IsEnabled:  d.Desired.Enabled,
		IsBlocking: d.Desired.Blocking,
		Type:       azdo.PolicyTypeRef{ID: typeID},
		Settings:   raw,
	}, nil
}

func (a *kindApplier) Create(ctx context.Context, d decision.Decision) (int, error) {
	cfg, err := a.configuration(d)
	if err != nil {
		return 0, err
	}
	out, err := a.remote.CreatePolicyConfiguration(ctx, d.Project.Name, cfg)
	if err != nil {
		return 0, err
	}
	return out.ID, nil
}

func (a *kindApplier) Update(ctx context.Context, d decision.Decision) (int, error) {
	if d.Server == nil {
		return 0, fmt.Errorf("update: decision has no server policy")
	}
	cfg, err := a.configuration(d)
	if err != nil {
		return 0, err
	}
	out, err := a.remote.UpdatePolicyConfiguration(ctx, d.Project.Name, d.Server.ID, cfg)
	if err != nil {
		return 0, err
	}
	return out.ID, nil
}

func (a *kindApplier) Delete(ctx context.Context, d decision.Decision) error {
	return deleteServerPolicy(ctx, a.remote, d)
}

// deleteOnly serves server policies whose type has no registered kind.
type deleteOnly struct {
	remote Writer
}

func (a *deleteOnly) Create(_ context.Context, d decision.Decision) (int, error) {
	return 0, fmt.Errorf("create %s: %w", d.PolicyType, ErrUnsupported)
}

func (a *deleteOnly) Update(_ context.Context, d decision.Decision) (int, error) {
	return 0, fmt.Errorf("update %s: %w", d.PolicyType, ErrUnsupported)
}

func (a *deleteOnly) Delete(ctx context.Context, d decision.Decision) error {
	return deleteServerPolicy(ctx, a.remote, d)
}

func deleteServerPolicy(ctx context.Context, remote Writer, d decision.Decision) error {
	if d.Server == nil {
		return fmt.Errorf("delete: decision has no server policy")
	}
	return remote.DeletePolicyConfiguration(ctx, d.Project.Name, d.Server.ID)
}

// Execute dispatches d to the matching Applier method. NoOp and
// would-delete decisions are not executed.
func Execute(ctx context.Context, a Applier, d decision.Decision) (int, error) {
	switch d.Action {
	case decision.ActionCreate:
		return a.Create(ctx, d)
	case decision.ActionUpdate:
		return a.Update(ctx, d)
	case decision.ActionDelete:
		if err := a.Delete(ctx, d); err != nil {
			return 0, err
		}
		return d.ServerPolicyID(), nil
	default:
		return 0, fmt.Errorf("action %q is not executable", strings.TrimSpace(string(d.Action)))
	}
}
