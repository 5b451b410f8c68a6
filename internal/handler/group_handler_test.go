package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oferp-dev/sg-attendance-api/internal/middleware"
	"github.com/oferp-dev/sg-attendance-api/internal/models"
	"github.com/oferp-dev/sg-attendance-api/internal/service"
)

type groupRepoHandlerStub struct {
	groups map[string]*models.Group
}

func newGroupRepoHandlerStub() *groupRepoHandlerStub {
	return &groupRepoHandlerStub{groups: map[string]*models.Group{}}
}

func (s *groupRepoHandlerStub) List(_ context.Context, _ models.GroupFilter) ([]models.GroupDetail, int, error) {
	details := make([]models.GroupDetail, 0, len(s.groups))
	for _, g := range s.groups {
		details = append(details, models.GroupDetail{Group: *g})
	}
	return details, len(details), nil
}

func (s *groupRepoHandlerStub) FindByID(_ context.Context, id string) (*models.Group, error) {
	group, ok := s.groups[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *group
	return &copied, nil
}

func (s *groupRepoHandlerStub) FindByName(_ context.Context, name string) (*models.Group, error) {
	for _, g := range s.groups {
		if g.Name == name {
			copied := *g
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *groupRepoHandlerStub) ExistsByName(_ context.Context, name, excludeID string) (bool, error) {
	for _, g := range s.groups {
		if g.Name == name && g.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *groupRepoHandlerStub) Create(_ context.Context, group *models.Group) error {
	copied := *group
	s.groups[group.ID] = &copied
	return nil
}

func (s *groupRepoHandlerStub) Update(_ context.Context, group *models.Group) error {
	copied := *group
	s.groups[group.ID] = &copied
	return nil
}

func (s *groupRepoHandlerStub) Delete(_ context.Context, id string) error {
	delete(s.groups, id)
	return nil
}

func buildGroupRouter(repo *groupRepoHandlerStub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(middleware.ContextUserKey, &models.JWTClaims{
				UserID: "test-user",
				Role:   models.UserRole(role),
			})
		}
		c.Next()
	})

	h := NewGroupHandler(service.NewGroupService(repo, nil, zap.NewNop()))

	sg := middleware.RBAC(models.RoleAdmin, models.RoleSG)
	admin := middleware.RBAC(models.RoleAdmin)
	router.GET("/groups", sg, h.List)
	router.GET("/groups/:id", sg, h.Get)
	router.POST("/groups", admin, h.Create)
	router.PUT("/groups/:id", admin, h.Update)
	router.DELETE("/groups/:id", admin, h.Delete)
	return router
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGroupRoutes(t *testing.T) {
	repo := newGroupRepoHandlerStub()
	router := buildGroupRouter(repo)

	t.Run("list unauthorized without claims", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/groups", nil)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("create forbidden for surveillance role", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(`{"name":"DEV101","field":"Développement Digital","year":2026}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleSG))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("create success as admin", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(`{"name":"DEV101","field":"Développement Digital","year":2026}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusCreated, resp.Code)
		require.Contains(t, resp.Body.String(), `"name":"DEV101"`)
	})

	t.Run("create duplicate name conflicts", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(`{"name":"DEV101","field":"Développement Digital","year":2026}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusConflict, resp.Code)
	})

	t.Run("create invalid payload", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(`{"name":"X"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("list visible to surveillance role", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/groups", nil)
		req.Header.Set("X-Test-Role", string(models.RoleSG))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"DEV101"`)
	})

	t.Run("get unknown group", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/groups/missing", nil)
		req.Header.Set("X-Test-Role", string(models.RoleSG))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusNotFound, resp.Code)
	})
}
