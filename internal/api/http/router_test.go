package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	stdhttp "net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gocloud.dev/blob/memblob"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/complaint-service/internal/api/http/handlers"
	"github.com/spec-kit/complaint-service/internal/auth"
	"github.com/spec-kit/complaint-service/internal/config"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/observability"
	"github.com/spec-kit/complaint-service/internal/repository"
	"github.com/spec-kit/complaint-service/internal/service"
	"github.com/spec-kit/complaint-service/internal/storage"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00\x90wS\xde")

type userStore struct {
	mu   sync.Mutex
	rows map[string]domain.User
}

func (s *userStore) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now()
	s.rows[user.ID] = *user
	return nil
}

func (s *userStore) Update(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	s.rows[user.ID] = *user
	return nil
}

func (s *userStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &row, nil
}

func (s *userStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.Email == email {
			user := row
			return &user, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *userStore) List(context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := []domain.User{}
	for _, row := range s.rows {
		users = append(users, row)
	}
	return users, nil
}

func (s *userStore) CountByRole(context.Context) (map[domain.Role]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[domain.Role]int{}
	for _, row := range s.rows {
		counts[row.Role]++
	}
	return counts, nil
}

type complaintStore struct {
	mu   sync.Mutex
	rows map[string]domain.Complaint
}

func (s *complaintStore) Create(_ context.Context, complaint *domain.Complaint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	complaint.ID = uuid.NewString()
	complaint.CreatedAt = time.Now()
	complaint.UpdatedAt = complaint.CreatedAt
	s.rows[complaint.ID] = *complaint
	return nil
}

func (s *complaintStore) GetByID(_ context.Context, id string) (*domain.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &row, nil
}

func (s *complaintStore) List(_ context.Context, filter repository.ComplaintFilter) ([]domain.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := []domain.Complaint{}
	for _, row := range s.rows {
		if filter.ReporterID != nil && row.ReporterID != *filter.ReporterID {
			continue
		}
		if filter.RoutedTo != nil && row.RoutedTo() != *filter.RoutedTo {
			continue
		}
		result = append(result, row)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// Mutate keys the stored row by the id it was handed, so a handler passing a string that still
// aliases the request buffer shows up as a lost complaint on a later request.
func (s *complaintStore) Mutate(_ context.Context, id string, fn repository.MutateFunc) (*domain.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	row.FeedbackHistory = append([]domain.FeedbackEntry(nil), row.FeedbackHistory...)
	if err := fn(&row); err != nil {
		return nil, err
	}
	s.rows[id] = row
	return &row, nil
}

func (s *complaintStore) CountByStatus(context.Context) (map[domain.ComplaintStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[domain.ComplaintStatus]int{}
	for _, row := range s.rows {
		counts[row.Status]++
	}
	return counts, nil
}

func (s *complaintStore) CountByCategory(context.Context) (map[domain.Category]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[domain.Category]int{}
	for _, row := range s.rows {
		counts[row.Category]++
	}
	return counts, nil
}

type testServer struct {
	app    *fiber.App
	users  *userStore
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	users := &userStore{rows: map[string]domain.User{}}
	complaints := &complaintStore{rows: map[string]domain.Complaint{}}

	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { _ = bucket.Close() })
	blobs := storage.NewBlobStore(bucket, "/media")

	gate, err := auth.NewDefaultGate()
	require.NoError(t, err)

	cfg := config.Config{Auth: config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 60,
		BcryptCost:            bcrypt.MinCost,
	}}
	authService := service.NewAuthService(cfg, users, logger)
	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		ComplaintRepo: complaints,
		Blobs:         blobs,
		Gate:          gate,
		Dispatcher:    events.NewInMemoryDispatcher(),
		Logger:        logger,
	})

	metrics := observability.NewMetrics()
	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("complaint-service", "test", nil, metrics),
		Users:          handlers.NewUsersHandler(authService, service.NewUserService(users, gate)),
		Complaints:     handlers.NewComplaintsHandler(lifecycle),
		Stats:          handlers.NewStatsHandler(service.NewStatsService(complaints, users, gate)),
		Media:          handlers.NewMediaHandler(blobs),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), users),
		Gate:           gate,
	})
	return &testServer{app: app, users: users, tokens: authService.TokenManager()}
}

// tokenFor stores a user with the given role and returns a bearer token for it.
func (s *testServer) tokenFor(t *testing.T, role domain.Role, department *domain.Category) string {
	t.Helper()
	user := &domain.User{Name: string(role), Email: uuid.NewString() + "@example.com", Role: role, Department: department}
	require.NoError(t, s.users.Create(context.Background(), user))
	token, _, err := s.tokens.GenerateToken(user)
	require.NoError(t, err)
	return token
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, req *stdhttp.Request, token string) (int, envelope) {
	t.Helper()
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body envelope
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	}
	return resp.StatusCode, body
}

func jsonRequest(method, target string, payload any) *stdhttp.Request {
	raw, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

func multipartRequest(t *testing.T, target string, fields map[string]string, files map[string][]byte) *stdhttp.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for key, data := range files {
		part, err := writer.CreateFormFile(key, key+".bin")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(stdhttp.MethodPost, target, &buf)
	req.Header.Set(fiber.HeaderContentType, writer.FormDataContentType())
	return req
}

func complaintFields() map[string]string {
	return map[string]string{
		"title":        "Pothole on Main St",
		"description":  "dangerous pothole near the school",
		"category":     string(domain.CategoryRoads),
		"latitude":     "12.97",
		"longitude":    "77.59",
		"locationName": "Main St",
	}
}

type complaintBody struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	Priority        string `json:"priority"`
	ImageURL        string `json:"imageUrl"`
	IsFinal         bool   `json:"isFinal"`
	FeedbackHistory []struct {
		Rating   *int   `json:"rating"`
		ProofURL string `json:"proofUrl"`
	} `json:"feedbackHistory"`
}

func decodeComplaint(t *testing.T, body envelope) complaintBody {
	t.Helper()
	var out complaintBody
	require.NoError(t, json.Unmarshal(body.Data, &out))
	return out
}

func TestHealthLive(t *testing.T) {
	srv := newTestServer(t)
	status, _ := srv.do(t, httptest.NewRequest(stdhttp.MethodGet, "/health/live", nil), "")
	assert.Equal(t, stdhttp.StatusOK, status)
}

func TestRegisterAndLogin(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, jsonRequest(stdhttp.MethodPost, "/api/auth/register", map[string]string{
		"name": "Asha", "email": "Asha@Example.com", "password": "secret1",
	}), "")
	require.Equal(t, stdhttp.StatusCreated, status)
	var session struct {
		Auth struct {
			Token string `json:"token"`
			Role  string `json:"role"`
		} `json:"auth"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &session))
	assert.NotEmpty(t, session.Auth.Token)
	assert.Equal(t, "citizen", session.Auth.Role)

	status, _ = srv.do(t, jsonRequest(stdhttp.MethodPost, "/api/auth/login", map[string]string{
		"email": "asha@example.com", "password": "secret1",
	}), "")
	assert.Equal(t, stdhttp.StatusOK, status)

	status, body = srv.do(t, jsonRequest(stdhttp.MethodPost, "/api/auth/login", map[string]string{
		"email": "asha@example.com", "password": "wrong-password",
	}), "")
	assert.Equal(t, stdhttp.StatusUnauthorized, status)
	require.NotNil(t, body.Error)
	assert.Equal(t, "UNAUTHORIZED", body.Error.Code)

	status, body = srv.do(t, jsonRequest(stdhttp.MethodPost, "/api/auth/register", map[string]string{
		"name": "Asha", "email": "not-an-email", "password": "secret1",
	}), "")
	assert.Equal(t, stdhttp.StatusBadRequest, status)
	require.NotNil(t, body.Error)
	assert.Equal(t, "VALIDATION_FAILED", body.Error.Code)
	assert.Equal(t, "email", body.Error.Details["email"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, httptest.NewRequest(stdhttp.MethodGet, "/api/complaints/mycomplaints", nil), "")
	assert.Equal(t, stdhttp.StatusUnauthorized, status)
	require.NotNil(t, body.Error)
	assert.Equal(t, "UNAUTHORIZED", body.Error.Code)

	status, _ = srv.do(t, httptest.NewRequest(stdhttp.MethodGet, "/api/complaints/mycomplaints", nil), "garbage")
	assert.Equal(t, stdhttp.StatusUnauthorized, status)
}

func TestCreateComplaintMultipart(t *testing.T) {
	srv := newTestServer(t)
	citizen := srv.tokenFor(t, domain.RoleCitizen, nil)

	status, body := srv.do(t, multipartRequest(t, "/api/complaints", complaintFields(), map[string][]byte{"image": pngBytes}), citizen)
	require.Equal(t, stdhttp.StatusCreated, status)
	created := decodeComplaint(t, body)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, "High", created.Priority)
	assert.True(t, strings.HasPrefix(created.ImageURL, "/media/civic_issues/"))

	status, body = srv.do(t, httptest.NewRequest(stdhttp.MethodGet, "/api/complaints/mycomplaints", nil), citizen)
	require.Equal(t, stdhttp.StatusOK, status)
	var mine []complaintBody
	require.NoError(t, json.Unmarshal(body.Data, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, created.ID, mine[0].ID)

	resp, err := srv.app.Test(httptest.NewRequest(stdhttp.MethodGet, created.ImageURL, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get(fiber.HeaderContentType))
}

func TestCreateComplaintValidation(t *testing.T) {
	srv := newTestServer(t)
	citizen := srv.tokenFor(t, domain.RoleCitizen, nil)

	status, body := srv.do(t, multipartRequest(t, "/api/complaints", complaintFields(), nil), citizen)
	assert.Equal(t, stdhttp.StatusBadRequest, status)
	require.NotNil(t, body.Error)
	assert.Equal(t, "VALIDATION_FAILED", body.Error.Code)

	fields := complaintFields()
	fields["latitude"] = "123.4"
	status, _ = srv.do(t, multipartRequest(t, "/api/complaints", fields, map[string][]byte{"image": pngBytes}), citizen)
	assert.Equal(t, stdhttp.StatusBadRequest, status)

	fields = complaintFields()
	fields["category"] = "Parks"
	status, _ = srv.do(t, multipartRequest(t, "/api/complaints", fields, map[string][]byte{"image": pngBytes}), citizen)
	assert.Equal(t, stdhttp.StatusBadRequest, status)

	status, _ = srv.do(t, multipartRequest(t, "/api/complaints", complaintFields(), map[string][]byte{"image": []byte("just some text")}), citizen)
	assert.Equal(t, stdhttp.StatusBadRequest, status)
}

func TestRoleGateAndLifecycle(t *testing.T) {
	srv := newTestServer(t)
	roads := domain.CategoryRoads
	citizen := srv.tokenFor(t, domain.RoleCitizen, nil)
	admin := srv.tokenFor(t, domain.RoleAdmin, &roads)
	root := srv.tokenFor(t, domain.RoleSuperadmin, nil)

	status, body := srv.do(t, multipartRequest(t, "/api/complaints", complaintFields(), map[string][]byte{"image": pngBytes}), citizen)
	require.Equal(t, stdhttp.StatusCreated, status)
	id := decodeComplaint(t, body).ID

	status, body = srv.do(t, httptest.NewRequest(stdhttp.MethodGet, "/api/complaints", nil), citizen)
	assert.Equal(t, stdhttp.StatusForbidden, status)
	require.NotNil(t, body.Error)
	assert.Equal(t, "FORBIDDEN", body.Error.Code)

	status, _ = srv.do(t, jsonRequest(stdhttp.MethodPut, "/api/complaints/"+id+"/status", map[string]string{"status": "under_consideration"}), citizen)
	assert.Equal(t, stdhttp.StatusForbidden, status)

	status, body = srv.do(t, jsonRequest(stdhttp.MethodPut, "/api/complaints/"+id+"/status", map[string]string{"status": "under_consideration"}), admin)
	require.Equal(t, stdhttp.StatusOK, status)
	assert.Equal(t, "under_consideration", decodeComplaint(t, body).Status)

	status, body = srv.do(t, multipartRequest(t, "/api/complaints/sendProof", map[string]string{"complaintId": id}, map[string][]byte{"proof": pngBytes}), admin)
	require.Equal(t, stdhttp.StatusOK, status)
	resolved := decodeComplaint(t, body)
	assert.Equal(t, "resolved", resolved.Status)
	require.Len(t, resolved.FeedbackHistory, 1)
	assert.NotEmpty(t, resolved.FeedbackHistory[0].ProofURL)

	status, body = srv.do(t, jsonRequest(stdhttp.MethodPost, "/api/complaints/"+id+"/feedback", map[string]any{"rating": 5, "wantsToReopen": false}), citizen)
	require.Equal(t, stdhttp.StatusOK, status)
	rated := decodeComplaint(t, body)
	assert.True(t, rated.IsFinal)
	require.Len(t, rated.FeedbackHistory, 1)
	require.NotNil(t, rated.FeedbackHistory[0].Rating)
	assert.Equal(t, 5, *rated.FeedbackHistory[0].Rating)

	status, body = srv.do(t, httptest.NewRequest(stdhttp.MethodPut, "/api/complaints/"+id+"/reject", nil), root)
	assert.Equal(t, stdhttp.StatusBadRequest, status)
	require.NotNil(t, body.Error)
	assert.Equal(t, "INVALID_STATE", body.Error.Code)

	status, body = srv.do(t, httptest.NewRequest(stdhttp.MethodGet, "/api/stats/summary", nil), root)
	require.Equal(t, stdhttp.StatusOK, status)
	var summary struct {
		Total    int            `json:"total"`
		ByStatus map[string]int `json:"byStatus"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &summary))
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.ByStatus["closed"])
}

func TestComplaintStaysAddressableAcrossRequests(t *testing.T) {
	srv := newTestServer(t)
	roads := domain.CategoryRoads
	citizen := srv.tokenFor(t, domain.RoleCitizen, nil)
	admin := srv.tokenFor(t, domain.RoleAdmin, &roads)

	status, body := srv.do(t, multipartRequest(t, "/api/complaints", complaintFields(), map[string][]byte{"image": pngBytes}), citizen)
	require.Equal(t, stdhttp.StatusCreated, status)
	id := decodeComplaint(t, body).ID

	status, _ = srv.do(t, jsonRequest(stdhttp.MethodPut, "/api/complaints/"+id+"/priority", map[string]string{"priority": "low"}), admin)
	require.Equal(t, stdhttp.StatusOK, status)

	for i := 0; i < 5; i++ {
		other := uuid.NewString()
		status, _ = srv.do(t, jsonRequest(stdhttp.MethodPut, "/api/complaints/"+other+"/status", map[string]string{"status": "pending"}), admin)
		require.Equal(t, stdhttp.StatusNotFound, status)
	}

	status, body = srv.do(t, httptest.NewRequest(stdhttp.MethodGet, "/api/complaints/"+id, nil), admin)
	require.Equal(t, stdhttp.StatusOK, status)
	assert.Equal(t, "Low", decodeComplaint(t, body).Priority)

	status, body = srv.do(t, jsonRequest(stdhttp.MethodPut, "/api/complaints/"+id+"/status", map[string]string{"status": "under_consideration"}), admin)
	require.Equal(t, stdhttp.StatusOK, status)
	assert.Equal(t, id, decodeComplaint(t, body).ID)
}

func TestUnknownComplaintIsNotFound(t *testing.T) {
	srv := newTestServer(t)
	root := srv.tokenFor(t, domain.RoleSuperadmin, nil)

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		status, body := srv.do(t, httptest.NewRequest(stdhttp.MethodGet, "/api/complaints/"+id, nil), root)
		assert.Equal(t, stdhttp.StatusNotFound, status, id)
		require.NotNil(t, body.Error)
		assert.Equal(t, "NOT_FOUND", body.Error.Code)
	}
}

func TestSuperadminAssignsDepartment(t *testing.T) {
	srv := newTestServer(t)
	root := srv.tokenFor(t, domain.RoleSuperadmin, nil)
	user := &domain.User{Name: "Ravi", Email: "ravi@example.com", Role: domain.RoleCitizen}
	require.NoError(t, srv.users.Create(context.Background(), user))

	status, body := srv.do(t, jsonRequest(stdhttp.MethodPut, "/api/users/"+user.ID, map[string]any{"role": "admin"}), root)
	assert.Equal(t, stdhttp.StatusBadRequest, status)
	require.NotNil(t, body.Error)
	assert.Equal(t, "VALIDATION_FAILED", body.Error.Code)

	status, _ = srv.do(t, jsonRequest(stdhttp.MethodPut, "/api/users/"+user.ID, map[string]any{
		"role": "admin", "department": string(domain.CategoryWaste),
	}), root)
	require.Equal(t, stdhttp.StatusOK, status)
	stored, err := srv.users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, stored.Role)
	require.NotNil(t, stored.Department)
	assert.Equal(t, domain.CategoryWaste, *stored.Department)
}

func TestErrorMiddlewareRecoversPanics(t *testing.T) {
	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), observability.NewMetrics(), 0)
	app.Get("/boom", func(*fiber.Ctx) error { panic("boom") })
	app.Get("/teapot", func(*fiber.Ctx) error { return fiber.NewError(stdhttp.StatusForbidden, "nope") })

	resp, err := app.Test(httptest.NewRequest(stdhttp.MethodGet, "/boom", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, stdhttp.StatusInternalServerError, resp.StatusCode)
	var body envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body.Error)
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	assert.Equal(t, "internal server error", body.Error.Message)

	resp, err = app.Test(httptest.NewRequest(stdhttp.MethodGet, "/teapot", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, stdhttp.StatusForbidden, resp.StatusCode)
}
