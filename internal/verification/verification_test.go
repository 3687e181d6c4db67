package verification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agrilock/agrilock/internal/escrow"
)

func TestRecordAndList(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	wr := 35.0
	ev := &escrow.Evidence{Type: escrow.EvidenceIrrigation, SystemType: "drip", WaterReduction: &wr}

	if err := svc.Record(ctx, "esc_1", escrow.EvidenceIrrigation, OutcomeReleased, ev, time.Now()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := svc.Record(ctx, "esc_2", escrow.EvidenceSatellite, OutcomeRejected, nil, time.Now()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	logs, err := svc.List(ctx, "esc_1", 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 entry for esc_1, got %d", len(logs))
	}
	if logs[0].Method != escrow.EvidenceIrrigation || logs[0].Outcome != OutcomeReleased {
		t.Fatalf("unexpected entry: %+v", logs[0])
	}

	var decoded escrow.Evidence
	if err := json.Unmarshal(logs[0].Evidence, &decoded); err != nil {
		t.Fatalf("evidence payload must round-trip: %v", err)
	}
	if decoded.SystemType != "drip" {
		t.Fatalf("evidence content lost: %+v", decoded)
	}

	all, _ := svc.List(ctx, "", 10)
	if len(all) != 2 {
		t.Fatalf("expected 2 entries total, got %d", len(all))
	}
}

func TestStats(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = svc.Record(ctx, "esc_1", escrow.EvidenceSatellite, OutcomeReleased, nil, time.Now())
	}
	_ = svc.Record(ctx, "esc_2", escrow.EvidenceCertification, OutcomeRejected, nil, time.Now())

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 4 || stats.Released != 3 || stats.Rejected != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.ByMethod[escrow.EvidenceSatellite] != 3 {
		t.Fatalf("by-method count wrong: %+v", stats.ByMethod)
	}
}

func TestVerificationEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewService(NewMemoryStore())
	_ = svc.Record(context.Background(), "esc_1", escrow.EvidenceSatellite, OutcomeReleased, nil, time.Now())

	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/v1"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/verifications?escrowId=esc_1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list: status %d", w.Code)
	}
	var resp struct {
		Count int `json:"count"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/verifications/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("stats: status %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/escrows/esc_1/verifications", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("nested list: status %d", w.Code)
	}
	resp.Count = 0
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Count != 1 {
		t.Fatalf("nested count = %d, want 1", resp.Count)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/verifications?limit=0", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: status %d, want 400", w.Code)
	}
}
