package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"dokflow/api/internal/config"
	"dokflow/api/internal/rowstate"
	"dokflow/api/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestServer(t *testing.T) (http.Handler, *testDeps) {
	t.Helper()
	svc, deps := newTestService(config.Config{Env: "development"})
	return NewHTTPServer(svc, "*").Handler(), deps
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func createDraftMom(t *testing.T, h http.Handler) uint {
	t.Helper()
	rr := doJSON(t, h, http.MethodPost, "/api/mom", map[string]any{"title": "Draft", "company_id": 1})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var mom store.Mom
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &mom))
	return mom.ID
}

func TestRegisterNDACreatesOneProgressAndDocument(t *testing.T) {
	h, deps := newTestServer(t)

	rr := doJSON(t, h, http.MethodPost, "/api/document", map[string]any{"companyId": 1, "fileUrl": "https://files.local/nda.pdf"})

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Len(t, deps.store.progresses, 1)
	require.Len(t, deps.store.documents, 1)
	assert.Equal(t, deps.store.progresses[0].ID, deps.store.documents[0].ProgressID)
	assert.Equal(t, "https://files.local/nda.pdf", deps.store.documents[0].FileURL)

	list := doJSON(t, h, http.MethodGet, "/api/nda", nil)
	require.Equal(t, http.StatusOK, list.Code)
	items := decodeMap(t, list)["items"].([]any)
	assert.Len(t, items, 1)
}

func TestRegisterNDAMissingFieldsListsEveryField(t *testing.T) {
	h, deps := newTestServer(t)

	rr := doJSON(t, h, http.MethodPost, "/api/document", map[string]any{})

	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeMap(t, rr)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	details := body["details"].(map[string]any)
	assert.Equal(t, "required", details["companyId"])
	assert.Equal(t, "required", details["fileUrl"])
	assert.Zero(t, deps.store.writes)
}

func TestRegisterNDAUnknownCompany(t *testing.T) {
	h, deps := newTestServer(t)

	rr := doJSON(t, h, http.MethodPost, "/api/document", map[string]any{"companyId": 42, "fileUrl": "x.pdf"})

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Empty(t, deps.store.progresses)
	assert.Empty(t, deps.store.documents)
}

func TestUpdateMomKickoffScenario(t *testing.T) {
	h, deps := newTestServer(t)
	id := createDraftMom(t, h)

	rr := doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/mom/%d", id), map[string]any{
		"title":      "Kickoff",
		"company_id": 1,
		"date":       "2024-01-10",
		"approvers":  []map[string]any{{"name": "A", "type": "Inisiator"}},
	})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	stored := deps.store.moms[id]
	assert.Equal(t, "Kickoff", stored.Title)
	require.NotNil(t, stored.Date)
	assert.Equal(t, "2024-01-10", stored.Date.Format("2006-01-02"))
	require.Len(t, stored.Approvers, 1)
	assert.Equal(t, "A", stored.Approvers[0].Name)
	require.NotNil(t, stored.Approvers[0].Type)
	assert.Equal(t, "Inisiator", *stored.Approvers[0].Type)
}

func TestUpdateMomNullDateClearsAndOmittedDateKeeps(t *testing.T) {
	h, deps := newTestServer(t)
	id := createDraftMom(t, h)
	path := fmt.Sprintf("/api/mom/%d", id)

	rr := doJSON(t, h, http.MethodPut, path, map[string]any{"date": "2024-01-10"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doJSON(t, h, http.MethodPut, path, map[string]any{"venue": "Ruang 2"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NotNil(t, deps.store.moms[id].Date)

	rr = doJSON(t, h, http.MethodPut, path, `{"date": null}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Nil(t, deps.store.moms[id].Date)
	assert.Equal(t, "Ruang 2", deps.store.moms[id].Venue)
}

func TestUpdateMomReplacesApproversAndKeepsOmittedChildren(t *testing.T) {
	h, deps := newTestServer(t)
	id := createDraftMom(t, h)

	first := doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/mom/%d", id), map[string]any{
		"approvers":    []map[string]any{{"name": "Old 1"}, {"name": "Old 2"}},
		"next_actions": []map[string]any{{"action": "Send draft", "target": "Friday", "pic": "Budi"}},
	})
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	second := doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/mom/%d", id), map[string]any{
		"approvers": []map[string]any{{"name": "New", "email": "new@example.com"}},
	})
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())

	stored := deps.store.moms[id]
	require.Len(t, stored.Approvers, 1)
	assert.Equal(t, "New", stored.Approvers[0].Name)
	require.Len(t, stored.NextActions, 1)
	assert.Equal(t, "Send draft", stored.NextActions[0].Action)
}

func TestUpdateMomValidationListsEveryViolation(t *testing.T) {
	h, deps := newTestServer(t)
	id := createDraftMom(t, h)
	writes := deps.store.writes

	rr := doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/mom/%d", id), map[string]any{
		"title":           "  ",
		"date":            "10/01/2024",
		"count_attendees": -1,
		"approvers":       []map[string]any{{"name": ""}, {"name": "B", "email": "not-an-email"}},
		"content":         "plain text",
	})

	require.Equal(t, http.StatusBadRequest, rr.Code)
	details := decodeMap(t, rr)["details"].(map[string]any)
	assert.Equal(t, "required", details["title"])
	assert.Equal(t, "datetime", details["date"])
	assert.Equal(t, "gte", details["count_attendees"])
	assert.Equal(t, "required", details["approvers[0].name"])
	assert.Equal(t, "email", details["approvers[1].email"])
	assert.Equal(t, "sections", details["content"])
	assert.Equal(t, writes, deps.store.writes)
}

func TestUpdateMomRejectsLineBreaksInTitles(t *testing.T) {
	h, deps := newTestServer(t)
	id := createDraftMom(t, h)
	writes := deps.store.writes

	rr := doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/mom/%d", id), map[string]any{
		"title":     "Kickoff\r\nBcc: evil@x.io",
		"approvers": []map[string]any{{"name": "A\nB"}},
	})

	require.Equal(t, http.StatusBadRequest, rr.Code)
	details := decodeMap(t, rr)["details"].(map[string]any)
	assert.Equal(t, "singleline", details["title"])
	assert.Equal(t, "singleline", details["approvers[0].name"])
	assert.Equal(t, writes, deps.store.writes)
}

func TestUpdateMissingMomIsNotFound(t *testing.T) {
	h, deps := newTestServer(t)

	rr := doJSON(t, h, http.MethodPut, "/api/mom/999", map[string]any{"title": "Ghost"})

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Zero(t, deps.store.writes)
}

func TestDeleteMissingMomIsNotFound(t *testing.T) {
	h, deps := newTestServer(t)

	rr := doJSON(t, h, http.MethodDelete, "/api/mom/999", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", decodeMap(t, rr)["code"])
	assert.Zero(t, deps.store.writes)
	assert.Empty(t, deps.search.removed)
}

func TestRequestIDReachesServiceLogs(t *testing.T) {
	svc, _ := newTestService(config.Config{Env: "development"})
	core, logs := observer.New(zapcore.InfoLevel)
	svc.log = zap.New(core)
	h := NewHTTPServer(svc, "*").Handler()
	id := createDraftMom(t, h)

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/mom/%d", id), nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "req-42", rr.Header().Get("X-Request-ID"))
	for _, msg := range []string{"mom deleted", "request"} {
		entries := logs.FilterMessage(msg).FilterField(zap.String("request_id", "req-42")).All()
		assert.Len(t, entries, 1, msg)
	}
}

func TestSoftDeletedMomIsHiddenButRetained(t *testing.T) {
	h, deps := newTestServer(t)
	id := createDraftMom(t, h)

	rr := doJSON(t, h, http.MethodDelete, fmt.Sprintf("/api/mom/%d", id), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, http.StatusNotFound, doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/mom/%d", id), nil).Code)

	list := doJSON(t, h, http.MethodGet, "/api/mom", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Empty(t, decodeMap(t, list)["items"])

	_, retained := deps.store.moms[id]
	assert.True(t, retained)
	assert.Equal(t, []string{fmt.Sprintf("mom-%d", id)}, deps.search.removed)
}

func TestListMomsWithQueryUsesSearch(t *testing.T) {
	h, deps := newTestServer(t)
	first := createDraftMom(t, h)
	second := createDraftMom(t, h)
	deps.search.ids = []uint{second, first}

	rr := doJSON(t, h, http.MethodGet, "/api/mom?q=maju", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Items []store.Mom `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)
	assert.Equal(t, second, body.Items[0].ID)
	require.Len(t, deps.search.queries, 1)
	assert.Equal(t, store.KindMom, deps.search.queries[0].Kind)
	assert.Equal(t, "maju", deps.search.queries[0].Text)
}

func TestGeneratePDFUsesPageFilename(t *testing.T) {
	h, _ := newTestServer(t)
	id := createDraftMom(t, h)

	rr := doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/mom/generate-pdf?id=%d", id), nil)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="page.pdf"`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "%BYTES%", rr.Body.String())
}

func TestGenerateDOCXRoutes(t *testing.T) {
	h, _ := newTestServer(t)

	mom := doJSON(t, h, http.MethodPost, "/api/mom/generate-docx", map[string]any{"momId": 7})
	require.Equal(t, http.StatusOK, mom.Code, mom.Body.String())
	assert.Equal(t, `attachment; filename="MOM-Kickoff.docx"`, mom.Header().Get("Content-Disposition"))

	jik := doJSON(t, h, http.MethodPost, "/api/jik/generate-docx", map[string]any{"jikId": 3})
	require.Equal(t, http.StatusOK, jik.Code, jik.Body.String())
	assert.Equal(t, `attachment; filename="JIK-Kerja-Sama.docx"`, jik.Header().Get("Content-Disposition"))

	missing := doJSON(t, h, http.MethodPost, "/api/mom/generate-docx", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestExportOfMissingDocumentIsJSONNotFound(t *testing.T) {
	h, deps := newTestServer(t)
	deps.exporter.err = fmt.Errorf("get mom: %w", store.ErrNotFound)

	rr := doJSON(t, h, http.MethodPost, "/api/mom/generate-docx", map[string]any{"momId": 404})

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Empty(t, rr.Header().Get("Content-Disposition"))
}

func TestActionsListsRowsWithExportInFlight(t *testing.T) {
	h, deps := newTestServer(t)

	var during *httptest.ResponseRecorder
	deps.exporter.during = func() {
		during = doJSON(t, h, http.MethodGet, "/api/mom/actions", nil)
	}

	rr := doJSON(t, h, http.MethodGet, "/api/mom/generate-pdf?id=5", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	require.NotNil(t, during)
	var body struct {
		Items []rowstate.Entry `json:"items"`
	}
	require.NoError(t, json.Unmarshal(during.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, uint(5), body.Items[0].ID)
	assert.Equal(t, rowstate.ActionGenerating, body.Items[0].Action)

	after := doJSON(t, h, http.MethodGet, "/api/mom/actions", nil)
	assert.Empty(t, decodeMap(t, after)["items"])
}

func TestUploadStoresEveryFile(t *testing.T) {
	h, deps := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range []string{"agenda.pdf", "photo.png"} {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("content of " + name))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var body struct {
		Files []store.File `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Files, 2)
	assert.Equal(t, "agenda.pdf", body.Files[0].Name)
	assert.Equal(t, []string{"agenda.pdf", "photo.png"}, deps.uploader.names)
}

func TestUploadWithoutStorageIsUnavailable(t *testing.T) {
	svc, _ := newTestService(config.Config{})
	svc.uploader = nil
	h := NewHTTPServer(svc, "*").Handler()

	rr := doJSON(t, h, http.MethodPost, "/api/upload", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestServerErrorDetailIsMaskedInProduction(t *testing.T) {
	for _, tc := range []struct {
		env         string
		wantDetails bool
	}{
		{env: "development", wantDetails: true},
		{env: "production", wantDetails: false},
	} {
		t.Run(tc.env, func(t *testing.T) {
			svc, deps := newTestService(config.Config{Env: tc.env})
			h := NewHTTPServer(svc, "*").Handler()
			id := createDraftMom(t, h)
			deps.store.updateErr = errors.New("connection reset by peer")

			rr := doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/mom/%d", id), map[string]any{"venue": "Room 1"})

			require.Equal(t, http.StatusInternalServerError, rr.Code)
			details, present := decodeMap(t, rr)["details"]
			assert.Equal(t, tc.wantDetails, present)
			if tc.wantDetails {
				assert.Equal(t, "connection reset by peer", details)
			}
		})
	}
}

func TestCreateJikValidatesApproverBuckets(t *testing.T) {
	h, _ := newTestServer(t)

	rr := doJSON(t, h, http.MethodPost, "/api/jik", map[string]any{
		"title":        "Kerja Sama",
		"company_id":   1,
		"invest_value": "-5",
		"approvers":    []map[string]any{{"name": "A", "type": "Direktur"}},
	})

	require.Equal(t, http.StatusBadRequest, rr.Code)
	details := decodeMap(t, rr)["details"].(map[string]any)
	assert.Equal(t, "oneof", details["approvers[0].type"])
	assert.Equal(t, "gte", details["invest_value"])
}

func TestCreateJikUnknownCompanyIsNotFound(t *testing.T) {
	h, _ := newTestServer(t)

	rr := doJSON(t, h, http.MethodPost, "/api/jik", map[string]any{"title": "X", "company_id": 77})

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMomHistoryListsRecordedRevisions(t *testing.T) {
	h, _ := newTestServer(t)
	id := createDraftMom(t, h)
	require.Equal(t, http.StatusOK, doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/mom/%d", id), map[string]any{
		"content": []map[string]any{{"title": "Agenda", "content": map[string]any{"type": "doc"}}},
	}).Code)

	rr := doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/mom/%d/history", id), nil)

	require.Equal(t, http.StatusOK, rr.Code)
	commits := decodeMap(t, rr)["commits"].([]any)
	assert.Len(t, commits, 2)

	missing := doJSON(t, h, http.MethodGet, "/api/mom/999/history", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestInvalidIDIsRejected(t *testing.T) {
	h, _ := newTestServer(t)

	rr := doJSON(t, h, http.MethodGet, "/api/mom/abc", nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestReadyEndpointReportsDatabaseFailure(t *testing.T) {
	h, deps := newTestServer(t)
	deps.store.pingFn = func(context.Context) error { return errors.New("connection refused") }

	rr := doJSON(t, h, http.MethodGet, "/api/ready", nil)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := decodeMap(t, rr)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "not_ready", body["status"])
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	rr := doJSON(t, h, http.MethodGet, "/api/health", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decodeMap(t, rr)["ok"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}
