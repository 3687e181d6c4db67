package farmer

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(counts stubCounter) (*gin.Engine, *Service) {
	gin.SetMode(gin.TestMode)
	svc := newTestService(counts)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/v1"))
	return r, svc
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestFarmerCRUDEndpoints(t *testing.T) {
	counts := stubCounter{}
	r, _ := newTestRouter(counts)

	w := doJSON(t, r, http.MethodPost, "/v1/farmers", gin.H{
		"name":          "Amina Okafor",
		"walletAddress": "rFarmer1aaaaaaaaaaaaaaaaaaaaaaaaa",
		"region":        "Kano",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d: %s", w.Code, w.Body.String())
	}
	var created Farmer
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if w := doJSON(t, r, http.MethodGet, "/v1/farmers/"+created.ID, nil); w.Code != http.StatusOK {
		t.Fatalf("get: status %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPatch, "/v1/farmers/"+created.ID, gin.H{"region": "Kaduna"})
	if w.Code != http.StatusOK {
		t.Fatalf("patch: status %d: %s", w.Code, w.Body.String())
	}

	// Referenced farmers cannot be deleted.
	counts[created.ID] = 1
	if w := doJSON(t, r, http.MethodDelete, "/v1/farmers/"+created.ID, nil); w.Code != http.StatusConflict {
		t.Fatalf("referenced delete: status %d, want 409", w.Code)
	}

	counts[created.ID] = 0
	if w := doJSON(t, r, http.MethodDelete, "/v1/farmers/"+created.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/v1/farmers/"+created.ID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status %d, want 404", w.Code)
	}
}

func TestCreateFarmerEndpointValidation(t *testing.T) {
	r, svc := newTestRouter(nil)

	w := doJSON(t, r, http.MethodPost, "/v1/farmers", gin.H{
		"name":          "No Wallet",
		"walletAddress": "not-an-address",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400: %s", w.Code, w.Body.String())
	}

	farmers, _ := svc.List(context.Background(), 10)
	if len(farmers) != 0 {
		t.Fatal("invalid farmer must not be persisted")
	}
}
