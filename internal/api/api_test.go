package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"violation-service/internal/config"
	"violation-service/internal/db/memory"
	"violation-service/internal/evidence"
	"violation-service/internal/lifecycle"
	"violation-service/internal/logging"
	"violation-service/internal/models"
	"violation-service/internal/notification"
	"violation-service/internal/realtime"
)

var (
	adminID = identity{1, models.RoleAdmin}
	guardID = identity{2, models.RoleSecurity}
	ownerID = identity{42, models.RoleOwner}
	otherID = identity{43, models.RoleOwner}
)

type identity struct {
	user int64
	role models.Role
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logging.Nop()
	store := memory.New()
	hub := realtime.NewHub(logger, 0, 0)
	emitter := notification.New(store, hub, logger, notification.Options{})
	engine := lifecycle.NewEngine(store, emitter, evidence.NewMemoryStore(), logger)

	var cfg config.Config
	cfg.API.BasePath = "/api/v0"
	return NewRouter(Deps{Engine: engine, Emitter: emitter, Hub: hub}, logger, cfg)
}

func do(t *testing.T, r http.Handler, id identity, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/api/v0"+path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if id.user != 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(id.user, 10))
		req.Header.Set("X-User-Role", string(id.role))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doJSON(t *testing.T, r http.Handler, id identity, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	return do(t, r, id, method, path, raw, "application/json")
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type upload struct {
	name string
	data []byte
}

func appealForm(t *testing.T, explanation string, files ...upload) ([]byte, string) {
	t.Helper()
	fields := make([]fieldUpload, len(files))
	for i, f := range files {
		fields[i] = fieldUpload{"evidence", f}
	}
	return appealFormFields(t, explanation, fields...)
}

type fieldUpload struct {
	field string
	upload
}

func appealFormFields(t *testing.T, explanation string, files ...fieldUpload) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("explanation", explanation))
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func png(size int) []byte {
	sig := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	return append(sig, make([]byte, size-len(sig))...)
}

func createViolation(t *testing.T, r http.Handler) models.Violation {
	t.Helper()
	w := doJSON(t, r, guardID, http.MethodPost, "/violations", models.ViolationCreate{
		VehicleID: "veh-7", OwnerID: ownerID.user, ViolationTypeID: "no-permit", Location: "Lot B",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Violation](t, w)
}

func TestIdentityRequired(t *testing.T) {
	r := newTestRouter(t)
	w := do(t, r, identity{}, http.MethodGet, "/violations", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, r, identity{5, "visitor"}, http.MethodGet, "/violations", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAppealAndDenyFlow(t *testing.T) {
	r := newTestRouter(t)
	v := createViolation(t, r)

	body, ct := appealForm(t, "vehicle was not on campus at the stated time", upload{"gate.png", png(2 << 20)})
	w := do(t, r, ownerID, http.MethodPost, "/violations/"+v.ID+"/appeal", body, ct)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	contest := decode[models.Contest](t, w)
	assert.Equal(t, models.ContestPending, contest.Status)
	require.NotNil(t, contest.Evidence)

	w = doJSON(t, r, ownerID, http.MethodGet, "/violations/"+v.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ViolationContested, decode[models.Violation](t, w).Status)

	w = doJSON(t, r, adminID, http.MethodGet, "/contests?status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Contest](t, w), 1)

	w = doJSON(t, r, adminID, http.MethodPost, "/contests/"+contest.ID+"/review",
		gin.H{"action": "deny", "notes": "no supporting evidence provided"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.ContestDenied, decode[models.Contest](t, w).Status)

	w = doJSON(t, r, adminID, http.MethodPost, "/contests/"+contest.ID+"/review", gin.H{"action": "approve"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "state_conflict", decode[map[string]string](t, w)["code"])

	w = doJSON(t, r, ownerID, http.MethodGet, "/violations/"+v.ID, nil)
	assert.Equal(t, models.ViolationClosed, decode[models.Violation](t, w).Status)

	w = doJSON(t, r, ownerID, http.MethodGet, "/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resolved int
	for _, n := range decode[[]models.Notification](t, w) {
		if n.Type == models.NotifyAppealResolved {
			resolved++
		}
	}
	assert.Equal(t, 1, resolved)
}

func TestAppealRejections(t *testing.T) {
	r := newTestRouter(t)
	v := createViolation(t, r)
	path := "/violations/" + v.ID + "/appeal"

	body, ct := appealForm(t, "not mine")
	w := do(t, r, otherID, http.MethodPost, path, body, ct)
	assert.Equal(t, http.StatusForbidden, w.Code)

	body, ct = appealForm(t, "  ")
	w = do(t, r, ownerID, http.MethodPost, path, body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decode[map[string]string](t, w)["code"])

	body, ct = appealForm(t, "two photos", upload{"a.png", png(128)}, upload{"b.png", png(128)})
	w = do(t, r, ownerID, http.MethodPost, path, body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, ct = appealFormFields(t, "split across fields",
		fieldUpload{"evidence", upload{"a.png", png(128)}},
		fieldUpload{"attachment", upload{"b.png", png(128)}})
	w = do(t, r, ownerID, http.MethodPost, path, body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decode[map[string]string](t, w)["code"])

	body, ct = appealForm(t, "too big", upload{"big.png", png(evidence.MaxSize + 1)})
	w = do(t, r, ownerID, http.MethodPost, path, body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, ct = appealForm(t, "first")
	w = do(t, r, ownerID, http.MethodPost, path, body, ct)
	require.Equal(t, http.StatusCreated, w.Code)
	body, ct = appealForm(t, "second")
	w = do(t, r, ownerID, http.MethodPost, path, body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, ownerID, http.MethodPost, "/violations/missing/appeal", body, ct)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReviewRequestValidation(t *testing.T) {
	r := newTestRouter(t)
	w := do(t, r, adminID, http.MethodPost, "/contests/c1/review", []byte(`{`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, adminID, http.MethodPost, "/contests/c1/review", gin.H{"action": "approve"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, ownerID, http.MethodPost, "/contests/c1/review", gin.H{"action": "approve"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestNotificationReadFlags(t *testing.T) {
	r := newTestRouter(t)
	createViolation(t, r)
	createViolation(t, r)

	w := doJSON(t, r, ownerID, http.MethodGet, "/notifications/unread-count", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[map[string]int](t, w)["count"])

	w = doJSON(t, r, ownerID, http.MethodGet, "/notifications?unread=true&limit=1", nil)
	list := decode[[]models.Notification](t, w)
	require.Len(t, list, 1)

	for i := 0; i < 2; i++ {
		w = doJSON(t, r, ownerID, http.MethodPut, "/notifications/"+list[0].ID+"/read", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w = doJSON(t, r, otherID, http.MethodPut, "/notifications/"+list[0].ID+"/read", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, ownerID, http.MethodPut, "/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[map[string]int](t, w)["updated"])

	w = doJSON(t, r, ownerID, http.MethodGet, "/notifications/unread-count", nil)
	assert.Equal(t, 0, decode[map[string]int](t, w)["count"])
}

func TestDashboardAndOps(t *testing.T) {
	r := newTestRouter(t)
	createViolation(t, r)

	w := doJSON(t, r, adminID, http.MethodGet, "/dashboard/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[models.DashboardStats](t, w)
	assert.Equal(t, 1, stats.ViolationsByStatus[models.ViolationPending])

	w = doJSON(t, r, ownerID, http.MethodGet, "/dashboard/stats", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	for _, path := range []string{"/health", "/metrics"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
