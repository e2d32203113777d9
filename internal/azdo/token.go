package azdo

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
)

type AuthScheme string

const (
	SchemeBasic  AuthScheme = "basic"
	SchemeBearer AuthScheme = "bearer"
)

type AuthTokenSource string

const (
	AuthTokenSourceExplicit AuthTokenSource = "explicit"
	AuthTokenSourcePAT      AuthTokenSource = "env:AZURE_DEVOPS_EXT_PAT"
	AuthTokenSourcePipeline AuthTokenSource = "env:SYSTEM_ACCESSTOKEN"
	AuthTokenSourceAzureCLI AuthTokenSource = "az"
)

// azureDevOpsResource is the Entra ID application id of Azure DevOps.
const azureDevOpsResource = "499b84ac-1321-427f-aa17-267ca6975798"

// Credential is a resolved token and how to present it.
type Credential struct {
	Token  string
	Scheme AuthScheme
	Source AuthTokenSource
}

// ResolveCredential resolves an Azure DevOps credential.
//
// Precedence:
//  1. provided (if non-empty), sent as a personal access token
//  2. AZURE_DEVOPS_EXT_PAT env var (personal access token)
//  3. SYSTEM_ACCESSTOKEN env var (pipeline job token, bearer)
//  4. Azure CLI: `az account get-access-token` (bearer)
//
// It never prints the token. An empty Credential means none was found.
func ResolveCredential(ctx context.Context, provided string) (Credential, error) {
	if tok := strings.TrimSpace(provided); tok != "" {
		return Credential{Token: tok, Scheme: SchemeBasic, Source: AuthTokenSourceExplicit}, nil
	}
	if env := strings.TrimSpace(os.Getenv("AZURE_DEVOPS_EXT_PAT")); env != "" {
		return Credential{Token: env, Scheme: SchemeBasic, Source: AuthTokenSourcePAT}, nil
	}
	if env := strings.TrimSpace(os.Getenv("SYSTEM_ACCESSTOKEN")); env != "" {
		return Credential{Token: env, Scheme: SchemeBearer, Source: AuthTokenSourcePipeline}, nil
	}

	tok, ok, err := tokenFromAzureCLI(ctx)
	if err != nil {
		return Credential{}, err
	}
	if ok {
		return Credential{Token: tok, Scheme: SchemeBearer, Source: AuthTokenSourceAzureCLI}, nil
	}
	return Credential{}, nil
}

func tokenFromAzureCLI(ctx context.Context) (token string, ok bool, err error) {
	if _, lookErr := exec.LookPath("az"); lookErr != nil {
		return "", false, nil
	}

	// Keep this bounded so a broken az login doesn't hang runs.
	cmdCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(cmdCtx, "az", "account", "get-access-token",
		"--resource", azureDevOpsResource, "--output", "json")
	out, runErr := cmd.Output()
	if runErr != nil {
		if cmdCtx.Err() != nil {
			return "", false, cmdCtx.Err()
		}
		// Not logged in or otherwise failing: treat as "no token" without
		// surfacing az output.
		return "", false, nil
	}

	var payload struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return "", false, errors.New("invalid output from az account get-access-token")
	}
	tok := strings.TrimSpace(payload.AccessToken)
	if tok == "" {
		return "", false, nil
	}
	if strings.ContainsAny(tok, " \t\n\r") {
		return "", false, errors.New("invalid token returned by az: contains whitespace")
	}
	return tok, true, nil
}
