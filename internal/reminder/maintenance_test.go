package reminder

import (
	"context"
	"testing"
	"time"
)

func TestValidateSpec(t *testing.T) {
	t.Parallel()
	for _, ok := range []string{"", "@every 10m", "0 4 * * *", "@daily"} {
		if err := ValidateSpec(ok); err != nil {
			t.Fatalf("ValidateSpec(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"every ten minutes", "* * *", "61 * * * *"} {
		if err := ValidateSpec(bad); err == nil {
			t.Fatalf("ValidateSpec(%q) should fail", bad)
		}
	}
}

func TestMaintenanceJobs(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	m, err := NewMaintenance(h.svc, MaintenanceConfig{
		ResyncSpec: DefaultResyncSpec,
		PruneSpec:  DefaultPruneSpec,
		Retention:  30 * 24 * time.Hour,
	}, h.svc.log)
	if err != nil {
		t.Fatalf("NewMaintenance: %v", err)
	}
	if m.Jobs() != 2 {
		t.Fatalf("jobs = %d, want 2", m.Jobs())
	}

	noPrune, err := NewMaintenance(h.svc, MaintenanceConfig{ResyncSpec: DefaultResyncSpec, PruneSpec: DefaultPruneSpec}, h.svc.log)
	if err != nil {
		t.Fatalf("NewMaintenance: %v", err)
	}
	if noPrune.Jobs() != 1 {
		t.Fatalf("jobs without retention = %d, want 1", noPrune.Jobs())
	}

	if _, err := NewMaintenance(h.svc, MaintenanceConfig{ResyncSpec: "bogus"}, h.svc.log); err == nil {
		t.Fatal("expected error for bad resync spec")
	}
}

func TestMaintenanceResyncJob(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{RecoveryLimit: 1})
	h.store.put(storageTask(1, t0.Add(time.Minute)))
	h.store.put(storageTask(2, t0.Add(2*time.Minute)))
	h.init(t)

	m, err := NewMaintenance(h.svc, MaintenanceConfig{ResyncSpec: "@every 1h"}, h.svc.log)
	if err != nil {
		t.Fatalf("NewMaintenance: %v", err)
	}
	h.timers.fire(context.Background(), 1)
	m.resync()
	if !h.timers.Has(2) {
		t.Fatal("resync job should schedule task 2")
	}

	m.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Stop(ctx)
}
