package escrow

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/agrilock/agrilock/internal/testutil"
)

func insertTestFarmer(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	now := time.Now().UTC()
	_, err := db.Exec(`
		INSERT INTO farmers (id, name, wallet_address, region, farm_size_ha, created_at, updated_at)
		VALUES ($1, $2, $3, NULL, 0, $4, $4)`,
		id, "Test Farmer "+id, "rWallet"+id+"aaaaaaaaaaaaaaaaaaaaaa", now)
	if err != nil {
		t.Fatalf("insert farmer: %v", err)
	}
}

func testEscrow(farmerID string) *Escrow {
	now := time.Now().UTC().Truncate(time.Microsecond)
	cond, _ := NewCondition()
	return &Escrow{
		ID:             "esc_pg1",
		FarmerID:       farmerID,
		AmountDrops:    50_000_000,
		PracticeType:   PracticeAgroforestry,
		Status:         StatusPending,
		ConditionHash:  cond.Condition,
		Fulfillment:    cond.Fulfillment,
		LedgerSequence: 77,
		FinishAfter:    now.Add(5 * time.Minute),
		Deadline:       now.Add(30 * 24 * time.Hour),
		CancelAfter:    now.Add(30*24*time.Hour + 5*time.Minute),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	insertTestFarmer(t, db, "frm_esc1")

	e := testEscrow("frm_esc1")
	if err := store.Create(ctx, e); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.AmountDrops != e.AmountDrops || got.LedgerSequence != 77 || got.Status != StatusPending {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.ConditionHash != e.ConditionHash || got.Fulfillment != e.Fulfillment {
		t.Fatal("condition and fulfillment must survive storage")
	}

	if _, err := store.Get(ctx, "esc_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStoreCompareAndSet(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	insertTestFarmer(t, db, "frm_esc2")

	e := testEscrow("frm_esc2")
	e.ID = "esc_pg_cas"
	if err := store.Create(ctx, e); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	now := time.Now().UTC()
	wr := 40.0
	patch := Patch{
		Status:        StatusReleased,
		Evidence:      &Evidence{Type: EvidenceIrrigation, WaterReduction: &wr},
		ReleaseTxHash: "ABCDEF",
		VerifiedAt:    &now,
		ResolvedAt:    &now,
		UpdatedAt:     now,
	}

	ok, err := store.UpdateIfStatus(ctx, e.ID, StatusPending, patch)
	if err != nil || !ok {
		t.Fatalf("first CAS should win: %v %v", ok, err)
	}

	// Same transition again must lose: the row is no longer pending.
	ok, err = store.UpdateIfStatus(ctx, e.ID, StatusPending, patch)
	if err != nil {
		t.Fatalf("second CAS errored: %v", err)
	}
	if ok {
		t.Fatal("second CAS must not win")
	}

	if _, err := store.UpdateIfStatus(ctx, "esc_missing", StatusPending, patch); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing row, got %v", err)
	}

	got, _ := store.Get(ctx, e.ID)
	if got.Status != StatusReleased || got.ReleaseTxHash != "ABCDEF" {
		t.Fatalf("transition not persisted: %+v", got)
	}
	if got.Evidence == nil || got.Evidence.Type != EvidenceIrrigation {
		t.Fatal("evidence not persisted")
	}
}

func TestPostgresStoreListExpiring(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	insertTestFarmer(t, db, "frm_esc3")

	past := testEscrow("frm_esc3")
	past.ID = "esc_past"
	past.Deadline = time.Now().UTC().Add(-time.Hour)
	future := testEscrow("frm_esc3")
	future.ID = "esc_future"

	for _, e := range []*Escrow{past, future} {
		if err := store.Create(ctx, e); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	due, err := store.ListExpiring(ctx, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("ListExpiring failed: %v", err)
	}
	if len(due) != 1 || due[0].ID != "esc_past" {
		t.Fatalf("expected only the lapsed escrow, got %d", len(due))
	}

	n, err := store.CountByFarmer(ctx, "frm_esc3")
	if err != nil || n != 2 {
		t.Fatalf("CountByFarmer = %d, %v; want 2", n, err)
	}
}
