package extension

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/store/sqldb"
)

func TestMergeWithDefaults(t *testing.T) {
	got := mergeWithDefaults(Config{DryRun: true})
	want := Config{DryRun: true, StaleClaimAfter: 30 * time.Minute, IdentityThreshold: 80}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mergeWithDefaults (-want +got):\n%s", diff)
	}
}

func TestMergeConfigurations(t *testing.T) {
	yamlCfg := Config{StaleClaimAfter: time.Hour}
	prog := Config{
		StaleClaimAfter:   5 * time.Minute,
		IdentityThreshold: 90,
		DisableMigrate:    true,
		GroveDriver:       "sqlite",
	}

	got := mergeConfigurations(yamlCfg, prog)
	want := Config{
		StaleClaimAfter:   time.Hour,
		IdentityThreshold: 90,
		DisableMigrate:    true,
		GroveDriver:       "sqlite",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mergeConfigurations (-want +got):\n%s", diff)
	}
}

func TestNeedsCollaborator(t *testing.T) {
	if needsCollaborator(memory.New()) {
		t.Error("memory store: got true, want false")
	}
	if !needsCollaborator(sqldb.New(nil)) {
		t.Error("sql store: got false, want true")
	}
}
