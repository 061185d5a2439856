package transfer

import (
	"testing"

	"github.com/pkg/errors"
)

func TestPolicyFromFlags(t *testing.T) {
	tests := []struct {
		name         string
		skipExisting bool
		overwrite    bool
		want         ExistingPolicy
		wantErr      bool
	}{
		{name: "default", want: PolicyError},
		{name: "skip existing", skipExisting: true, want: PolicySkip},
		{name: "overwrite", overwrite: true, want: PolicyOverwrite},
		{name: "both flags conflict", skipExisting: true, overwrite: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PolicyFromFlags(tt.skipExisting, tt.overwrite)
			if tt.wantErr {
				if !errors.Is(err, ErrConflictingPolicy) {
					t.Fatalf("expected ErrConflictingPolicy, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("got policy %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		exists bool
		policy ExistingPolicy
		want   Action
	}{
		{name: "absent with error policy", policy: PolicyError, want: ActionCreate},
		{name: "absent with skip policy", policy: PolicySkip, want: ActionCreate},
		{name: "absent with overwrite policy", policy: PolicyOverwrite, want: ActionCreate},
		{name: "existing with error policy", exists: true, policy: PolicyError, want: ActionFail},
		{name: "existing with skip policy", exists: true, policy: PolicySkip, want: ActionSkip},
		{name: "existing with overwrite policy", exists: true, policy: PolicyOverwrite, want: ActionOverwrite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.exists, tt.policy); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}
