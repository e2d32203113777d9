package cli

import (
	"bytes"
	"strings"
	"testing"

	"branchwarden/internal/policy"

	"github.com/google/uuid"
)

type fakeKind struct {
	policy.Kind
	fields []policy.Field
}

func (k fakeKind) Name() string           { return "Fake" }
func (k fakeKind) DisplayName() string    { return "Fake policy" }
func (k fakeKind) TypeID() uuid.UUID      { return uuid.MustParse("12345678-1234-1234-1234-123456789abc") }
func (k fakeKind) Description() string    { return "A fake kind." }
func (k fakeKind) Fields() []policy.Field { return k.fields }

func TestPrintKind(t *testing.T) {
	tests := []struct {
		name        string
		kind        policy.Kind
		expected    []string
		notExpected []string
	}{
		{
			name: "no settings",
			kind: fakeKind{},
			expected: []string{
				"KIND: Fake",
				"Fake policy (12345678-1234-1234-1234-123456789abc)",
				"A fake kind.",
			},
			notExpected: []string{"Settings:"},
		},
		{
			name: "with settings",
			kind: fakeKind{fields: []policy.Field{
				{Name: "count", Description: "How many.", Default: "1"},
				{Name: "label", Description: "Shown name."},
			}},
			expected: []string{
				"Settings:",
				"  count",
				"Description: How many.",
				"Default:     1",
				"  label",
				"Default:     \"\"",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printKind(&buf, tt.kind)
			out := buf.String()
			for _, exp := range tt.expected {
				if !strings.Contains(out, exp) {
					t.Errorf("expected output to contain %q\noutput:\n%s", exp, out)
				}
			}
			for _, notExp := range tt.notExpected {
				if strings.Contains(out, notExp) {
					t.Errorf("expected output NOT to contain %q\noutput:\n%s", notExp, out)
				}
			}
		})
	}
}

func TestKindsList_Quiet(t *testing.T) {
	code, stdout, _ := execute(t, "kinds", "list", "-q")
	if code != 0 {
		t.Fatalf("want exit 0, got %d", code)
	}
	want := []string{"Build", "CommentRequirements", "MergeStrategy", "MinimumReviewers", "RequiredReviewers", "WorkItemLinking"}
	got := strings.Fields(stdout)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("want %v, got %v", want, got)
	}
}

func TestKindsList_Full(t *testing.T) {
	code, stdout, _ := execute(t, "kinds", "list")
	if code != 0 {
		t.Fatalf("want exit 0, got %d", code)
	}
	if n := strings.Count(stdout, "KIND: "); n != len(policy.Kinds()) {
		t.Fatalf("want %d kinds, got %d\n%s", len(policy.Kinds()), n, stdout)
	}
}

func TestKindsShow(t *testing.T) {
	code, stdout, _ := execute(t, "kinds", "show", "Minimum number of reviewers")
	if code != 0 {
		t.Fatalf("want exit 0, got %d", code)
	}
	if !strings.Contains(stdout, "KIND: MinimumReviewers") || !strings.Contains(stdout, "minimumApproverCount") {
		t.Fatalf("unexpected output:\n%s", stdout)
	}

	code, _, stderr := execute(t, "kinds", "show", "Nope")
	if code != 3 || !strings.Contains(stderr, "policy kind not found: Nope") {
		t.Fatalf("want exit 3 and not-found error, got %d %q", code, stderr)
	}
}
