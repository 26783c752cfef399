package servers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gamehost-backend/api/middleware"
	internalservers "github.com/angelmondragon/gamehost-backend/internal/servers"
	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gamehost-backend/pkg/errors"
	"github.com/angelmondragon/gamehost-backend/pkg/pterodactyl"
)

type stubServersService struct {
	suspendReason string
	linkErr       error
}

func (s *stubServersService) ListServers(context.Context, uuid.UUID) ([]internalservers.ServerDTO, error) {
	return nil, nil
}

func (s *stubServersService) GetServer(_ context.Context, _, serverID uuid.UUID) (*internalservers.ServerDTO, error) {
	return &internalservers.ServerDTO{ID: serverID}, nil
}

func (s *stubServersService) GetResourceUsage(context.Context, uuid.UUID, uuid.UUID) (*pterodactyl.ResourceUsage, error) {
	return &pterodactyl.ResourceUsage{}, nil
}

func (s *stubServersService) GetPanelLink(_ context.Context, _, _ uuid.UUID) (*internalservers.PanelLink, error) {
	if s.linkErr != nil {
		return nil, s.linkErr
	}
	return &internalservers.PanelLink{PanelURL: "https://panel.example.com/server/abc", ServerIdentifier: "abc"}, nil
}

func (s *stubServersService) Summary(context.Context, uuid.UUID) (*internalservers.Summary, error) {
	return &internalservers.Summary{}, nil
}

func (s *stubServersService) Suspend(_ context.Context, serverID uuid.UUID, reason string) (*models.Server, error) {
	s.suspendReason = reason
	return &models.Server{ID: serverID, Status: enums.ServerStatusSuspended}, nil
}

func (s *stubServersService) Unsuspend(_ context.Context, serverID uuid.UUID) (*models.Server, error) {
	return &models.Server{ID: serverID, Status: enums.ServerStatusActive}, nil
}

func (s *stubServersService) SuspendExpired(context.Context, int) (int, error) {
	return 0, nil
}

func serverRequest(body string, serverID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rc := chi.NewRouteContext()
	rc.URLParams.Add("serverId", serverID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	return req.WithContext(middleware.WithUserID(ctx, uuid.NewString()))
}

func TestAdminSuspendRequiresReason(t *testing.T) {
	svc := &stubServersService{}

	rec := httptest.NewRecorder()
	AdminSuspend(svc, nil).ServeHTTP(rec, serverRequest(`{}`, uuid.NewString()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	AdminSuspend(svc, nil).ServeHTTP(rec, serverRequest(`{"reason":"chargeback"}`, uuid.NewString()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "chargeback", svc.suspendReason)
}

func TestPanelLinkConflictWhenNotProvisioned(t *testing.T) {
	svc := &stubServersService{linkErr: pkgerrors.New(pkgerrors.CodeConflict, "server has no panel identifier yet")}

	rec := httptest.NewRecorder()
	PanelLink(svc, nil).ServeHTTP(rec, serverRequest("", uuid.NewString()))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDetailAndStats(t *testing.T) {
	svc := &stubServersService{}
	id := uuid.NewString()

	rec := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(rec, serverRequest("", id))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id)

	rec = httptest.NewRecorder()
	Stats(svc, nil).ServeHTTP(rec, serverRequest("", "bad"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminUnsuspendReturnsStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	AdminUnsuspend(&stubServersService{}, nil).ServeHTTP(rec, serverRequest("", uuid.NewString()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"active"`)
}
