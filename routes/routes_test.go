package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/phillip/farewell-fund-go/cache"
	config "github.com/phillip/farewell-fund-go/config"
	models "github.com/phillip/farewell-fund-go/models"
	services "github.com/phillip/farewell-fund-go/services"
	"github.com/phillip/farewell-fund-go/store"
	utils "github.com/phillip/farewell-fund-go/utils"
)

const (
	secret  = "route-test-secret"
	eventID = "ev-1"
)

type fakeBlobs struct{ uploads int }

func (f *fakeBlobs) UploadReceipt(_ context.Context, eventID string, body io.Reader) (string, error) {
	if _, err := io.ReadAll(body); err != nil {
		return "", err
	}
	f.uploads++
	return "https://res.cloudinary.com/demo/image/upload/receipts/" + eventID + "/r.png", nil
}

type server struct {
	t     *testing.T
	r     *gin.Engine
	mem   *store.Memory
	blobs *fakeBlobs
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	mem := store.NewMemory()
	now := time.Now()
	require.NoError(t, mem.InsertEvent(ctx, &models.Event{
		ID: eventID, OwnerID: "admin-1", Title: "Farewell",
		Financial: models.FinancialSettings{TargetAmount: decimal.NewFromInt(5000), AcceptingPayments: true},
		Status:    "ACTIVE", CreatedAt: now, UpdatedAt: now,
	}))
	for _, m := range []models.Member{
		{EventID: eventID, UserID: "admin-1", Name: "Asha", Role: models.RoleAdmin},
		{EventID: eventID, UserID: "u-1", Name: "Ravi", Role: models.RoleStudent},
		{EventID: eventID, UserID: "u-2", Name: "Meera", Role: models.RoleStudent},
	} {
		m := m
		require.NoError(t, mem.UpsertMember(ctx, &m))
	}

	svc := services.New(services.Deps{Store: mem, Cache: cache.NewLocal(), Logger: zap.NewNop()})
	t.Cleanup(mem.OnChange(svc.Ledger.HandleChange, models.TableContributions, models.TableEvents))

	blobs := &fakeBlobs{}
	r := gin.New()
	SetupRoutes(r, &config.Config{JWTSecret: secret, Logger: zap.NewNop()}, svc, blobs)
	return &server{t: t, r: r, mem: mem, blobs: blobs}
}

func (s *server) token(userID string, roles map[string]models.Role) string {
	tok, err := utils.GenerateToken(secret, userID, userID+"@example.com", roles, time.Hour)
	require.NoError(s.t, err)
	return tok
}

func (s *server) do(method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestContributionLifecycleOverHTTP(t *testing.T) {
	s := newServer(t)
	admin := s.token("admin-1", nil)
	member := s.token("u-1", map[string]models.Role{eventID: models.RoleStudent})

	w := s.do(http.MethodPost, "/contributions", member, gin.H{"event_id": eventID, "amount": 500, "method": "UPI"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.Contribution](t, w)
	assert.Equal(t, models.StatusPending, created.Status)

	w = s.do(http.MethodPost, "/contributions/"+created.ID+"/approve", member, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/contributions/"+created.ID+"/verify", admin, gin.H{"notes": "seen in bank app"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.StatusVerified, decode[models.Contribution](t, w).Status)

	w = s.do(http.MethodPost, "/contributions/"+created.ID+"/approve", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.StatusApproved, decode[models.Contribution](t, w).Status)

	w = s.do(http.MethodPost, "/contributions/"+created.ID+"/approve", admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already processed")

	w = s.do(http.MethodGet, "/events/"+eventID+"/snapshot", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[services.FinancialSnapshot](t, w)
	assert.True(t, snap.Collected.Equal(decimal.NewFromInt(500)), "collected %s", snap.Collected)
	assert.Equal(t, 1, snap.ContributorCount)
	assert.True(t, snap.ProgressPercent.Equal(decimal.NewFromInt(10)))

	w = s.do(http.MethodGet, "/events/"+eventID+"/snapshot", member, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/contributions/"+created.ID+"/refund", admin, gin.H{"kind": "partial"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.RefundPartial, decode[models.Contribution](t, w).RefundStatus)
}

func TestCreateContribution_Errors(t *testing.T) {
	s := newServer(t)
	member := s.token("u-1", nil)

	w := s.do(http.MethodPost, "/contributions", "", gin.H{"event_id": eventID, "amount": 10, "method": "upi"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/contributions", member, gin.H{"event_id": eventID, "amount": 0, "method": "upi"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "amount", decode[map[string]string](t, w)["field"])

	w = s.do(http.MethodPost, "/contributions", member, gin.H{"event_id": eventID, "amount": "12.50", "method": "crypto"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "method", decode[map[string]string](t, w)["field"])

	w = s.do(http.MethodPost, "/contributions", member, gin.H{"event_id": "nope", "amount": 10, "method": "upi"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/contributions", s.token("stranger", nil), gin.H{"event_id": eventID, "amount": 10, "method": "upi"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListMine_ETag(t *testing.T) {
	s := newServer(t)
	member := s.token("u-1", nil)

	w := s.do(http.MethodGet, "/events/"+eventID+"/contributions/mine", member, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = s.do(http.MethodPost, "/contributions", member, gin.H{"event_id": eventID, "amount": 10, "method": "cash"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(http.MethodGet, "/events/"+eventID+"/contributions/mine", member, nil)
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Len(t, decode[[]models.Contribution](t, w), 1)

	w = s.do(http.MethodGet, "/events/"+eventID+"/contributions/mine", member, nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Equal(t, etag, w.Header().Get("ETag"))

	w = s.do(http.MethodGet, "/events/"+eventID+"/contributions?status=pending", member, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/events/"+eventID+"/contributions?status=pending", s.token("admin-1", nil), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Contribution](t, w), 1)
}

func TestBudgetAndLeaderboardOverHTTP(t *testing.T) {
	s := newServer(t)
	admin := s.token("admin-1", map[string]models.Role{eventID: models.RoleAdmin})
	member := s.token("u-2", nil)

	w := s.do(http.MethodPost, "/events/"+eventID+"/budget/distribute", admin, gin.H{"total_budget": 3000})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rows := decode[[]models.BudgetAssignment](t, w)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.True(t, r.AssignedAmount.Equal(decimal.NewFromInt(1000)))
	}

	w = s.do(http.MethodPut, "/events/"+eventID+"/budget/u-2", admin, gin.H{"amount": "1500"})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodPut, "/events/"+eventID+"/budget/ghost", admin, gin.H{"amount": "1500"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(http.MethodGet, "/events/"+eventID+"/budget", member, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/contributions", member, gin.H{"event_id": eventID, "amount": 700, "method": "upi"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[models.Contribution](t, w).ID
	w = s.do(http.MethodPost, "/contributions/"+id+"/verify", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/events/"+eventID+"/leaderboard?limit=5", member, nil)
	require.Equal(t, http.StatusOK, w.Code)
	board := decode[[]services.LeaderboardEntry](t, w)
	require.Len(t, board, 1)
	assert.Equal(t, "Meera", board[0].Name)

	w = s.do(http.MethodGet, "/events/"+eventID+"/rank", member, nil)
	require.Equal(t, http.StatusOK, w.Code)
	rank := decode[services.RankResult](t, w)
	assert.Equal(t, 1, rank.Rank)
	assert.Equal(t, 100, rank.Percentile)

	w = s.do(http.MethodGet, "/events/"+eventID+"/leaderboard?limit=-1", member, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventsAndMembersOverHTTP(t *testing.T) {
	s := newServer(t)
	owner := s.token("owner-9", nil)

	w := s.do(http.MethodPost, "/events", owner, gin.H{"title": "Batch of 2026", "target_amount": 20000, "owner_name": "Kiran"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	event := decode[models.Event](t, w)
	assert.True(t, event.Financial.AcceptingPayments)

	w = s.do(http.MethodGet, "/events/"+event.ID, owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	w = s.do(http.MethodGet, "/events/"+event.ID, owner, nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Equal(t, etag, w.Header().Get("ETag"))

	w = s.do(http.MethodPost, "/events/"+event.ID+"/members", owner, gin.H{"user_id": "u-7", "role": "teacher", "name": "Mr. Rao"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = s.do(http.MethodPost, "/events/"+event.ID+"/members", owner, gin.H{"user_id": "u-8", "role": "dean"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/events/"+event.ID+"/members", s.token("u-7", nil), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Member](t, w), 2)

	w = s.do(http.MethodPatch, "/events/"+event.ID+"/financial-settings", owner, gin.H{"maintenance_mode": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[models.Event](t, w).Financial.MaintenanceMode)

	w = s.do(http.MethodPost, "/contributions", s.token("u-7", nil), gin.H{"event_id": event.ID, "amount": 10, "method": "upi"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestManualAutoApproveFailureStillReportsCreatedRow(t *testing.T) {
	s := newServer(t)
	s.mem.FailLedgerCredit(errors.New("socket closed"))

	w := s.do(http.MethodPost, "/contributions", s.token("admin-1", nil), gin.H{
		"event_id": eventID, "amount": 900, "method": "cash",
		"manual": true, "contributor_id": "u-2", "auto_approve": true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode[struct {
		Contribution models.Contribution `json:"contribution"`
		ApproveError string              `json:"approve_error"`
	}](t, w)
	assert.Equal(t, models.StatusVerified, body.Contribution.Status)
	assert.Equal(t, "internal error", body.ApproveError)

	s.mem.FailLedgerCredit(nil)
	w = s.do(http.MethodPost, "/contributions/"+body.Contribution.ID+"/approve", s.token("admin-1", nil), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.StatusApproved, decode[models.Contribution](t, w).Status)
}

// 1x1 PNG header and IHDR chunk; enough for type sniffing.
var pngHeader = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89,
}

func (s *server) upload(token, eventID, filename string, content []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(s.t, mw.WriteField("event_id", eventID))
	fw, err := mw.CreateFormFile("receipt", filename)
	require.NoError(s.t, err)
	_, err = fw.Write(content)
	require.NoError(s.t, err)
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/contributions/receipt", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func TestUploadReceipt(t *testing.T) {
	s := newServer(t)
	member := s.token("u-1", nil)

	w := s.upload(member, eventID, "r.png", pngHeader)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, decode[map[string]string](t, w)["receipt_url"], "receipts/"+eventID)

	w = s.upload(member, eventID, "r.txt", []byte("just text, not an image"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.upload(s.token("stranger", nil), eventID, "r.png", pngHeader)
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.Equal(t, 1, s.blobs.uploads)
}
