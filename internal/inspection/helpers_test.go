package inspection

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/autoerp-inspection/backend/internal/config"
	"github.com/autoerp-inspection/backend/internal/erpclient"
	"github.com/autoerp-inspection/backend/internal/models"
	"github.com/autoerp-inspection/backend/internal/persistence"
	"github.com/autoerp-inspection/backend/internal/photo"
)

type call struct {
	Method string
	Path   string
	Body   []byte
}

// fakeERP is an in-memory stand-in for the ERP REST API that records every
// request.
type fakeERP struct {
	mu            sync.Mutex
	calls         []call
	invTypes      string
	points        string
	items         string
	answers       string
	failMutations bool
	failPatches   bool
	nextID        int64
}

func newFakeERP() *fakeERP {
	return &fakeERP{
		invTypes: `[{"inv_type_id": 1, "name": "Carroceria", "position": 1, "is_active": true, "kind": "bodywork"}]`,
		points:   `[]`,
		items:    `{"items": []}`,
		nextID:   100,
	}
}

func (f *fakeERP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Method: r.Method, Path: r.URL.Path, Body: body})

	if r.Method != http.MethodGet && f.failMutations {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"detail": "database unavailable"}`)
		return
	}

	if r.Method == http.MethodPatch && f.failPatches {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"detail": "update rejected"}`)
		return
	}

	p := r.URL.Path
	switch {
	case r.Method == http.MethodGet && p == "/orders/inventory-types/":
		_, _ = io.WriteString(w, f.invTypes)
	case r.Method == http.MethodGet && p == "/orders/bodywork-detail-types/":
		_, _ = io.WriteString(w, `[{"detail_type_id": 1, "type": "Rayón", "color": "rojo"}, {"detail_type_id": 2, "type": "Golpe", "color": "azul"}]`)
	case r.Method == http.MethodGet && strings.HasPrefix(p, "/orders/bodywork-details/"):
		_, _ = io.WriteString(w, f.points)
	case r.Method == http.MethodGet && strings.HasPrefix(p, "/orders/inventory-items/"):
		_, _ = io.WriteString(w, f.items)
	case r.Method == http.MethodGet && strings.HasPrefix(p, "/orders/inventory-data/"):
		if f.answers == "" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"detail": "Not found."}`)
			return
		}
		_, _ = io.WriteString(w, f.answers)
	case r.Method == http.MethodPost && p == "/orders/bodywork-details/":
		f.createPoints(w, body)
	case r.Method == http.MethodPatch, r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost && p == "/orders/inventory-data/":
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeERP) createPoints(w http.ResponseWriter, body []byte) {
	var in []map[string]any
	if err := json.Unmarshal(body, &in); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	out := make([]map[string]any, 0, len(in))
	for _, p := range in {
		f.nextID++
		entry := map[string]any{
			"detail_id":    f.nextID,
			"view":         p["view"],
			"x":            p["x"],
			"y":            p["y"],
			"detail_notes": p["detail_notes"],
			"picture_path": p["picture_path"],
		}
		if id, ok := p["detail_type_id"]; ok {
			entry["detail_type"] = map[string]any{"detail_type_id": id}
		}
		out = append(out, entry)
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(out)
}

// mutations returns every non-GET request seen so far.
func (f *fakeERP) mutations() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Method != http.MethodGet {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeERP) setFailPatches(v bool) {
	f.mu.Lock()
	f.failPatches = v
	f.mu.Unlock()
}

// count returns how many requests matched method and path.
func (f *fakeERP) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

func (f *fakeERP) setFailMutations(v bool) {
	f.mu.Lock()
	f.failMutations = v
	f.mu.Unlock()
}

// fakePhotos is an in-memory Photos implementation.
type fakePhotos struct {
	mu        sync.Mutex
	next      int
	uploaded  []string
	deleted   []string
	deleteErr error
}

func (p *fakePhotos) Upload(ctx context.Context, f photo.File, t photo.Target) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	url := fmt.Sprintf("http://blobs/%d/%s/%s/%d.jpg", t.OrderID, t.InventoryType, t.Segment, p.next)
	p.uploaded = append(p.uploaded, url)
	return url, nil
}

func (p *fakePhotos) Replace(ctx context.Context, f photo.File, t photo.Target, oldURL string) (string, error) {
	url, err := p.Upload(ctx, f, t)
	if err != nil {
		return "", err
	}
	if err := p.Delete(ctx, oldURL); err != nil {
		return url, err
	}
	return url, nil
}

func (p *fakePhotos) Delete(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleteErr != nil {
		return &photo.DeleteError{URL: url, Err: p.deleteErr}
	}
	p.deleted = append(p.deleted, url)
	return nil
}

type noticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *noticeLog) push(level NoticeLevel, message string) {
	n.mu.Lock()
	n.notices = append(n.notices, Notice{Level: level, Message: message})
	n.mu.Unlock()
}

func newTestDeps(t *testing.T, erp *fakeERP) (Deps, *fakePhotos) {
	t.Helper()
	srv := httptest.NewServer(erp)
	t.Cleanup(srv.Close)

	logger := zap.NewNop()
	client := erpclient.New(&config.Config{APIURL: srv.URL, HTTPTimeout: 5 * time.Second}, logger)
	photos := &fakePhotos{}
	return Deps{
		Catalog: client,
		Records: client,
		Engine:  persistence.NewEngine(client, client, logger),
		Photos:  photos,
		Logger:  logger,
	}, photos
}

var (
	bodyworkType = models.InventoryType{ID: 1, Name: "Carroceria", Position: 1, Active: true, Kind: models.KindBodywork}
	interiorType = models.InventoryType{ID: 2, Name: "Interior", Position: 2, Active: true, Kind: models.KindGeneric}
)

func loadBodywork(t *testing.T, erp *fakeERP) (*BodyworkStep, *fakePhotos, *noticeLog) {
	t.Helper()
	deps, photos := newTestDeps(t, erp)
	notices := &noticeLog{}
	s := newBodyworkStep(12, bodyworkType, deps, notices.push)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load bodywork: %v", err)
	}
	return s, photos, notices
}

// localIDFor returns the local id of the point with the given server id on
// the current view.
func localIDFor(t *testing.T, s *BodyworkStep, serverID int64) string {
	t.Helper()
	for _, p := range s.board().Points() {
		if p.ServerID != nil && *p.ServerID == serverID {
			return p.LocalID
		}
	}
	t.Fatalf("no point with server id %d", serverID)
	return ""
}
