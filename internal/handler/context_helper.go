package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/short-course-api/internal/middleware"
	"github.com/noah-isme/short-course-api/internal/models"
	"github.com/noah-isme/short-course-api/internal/service"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
	"github.com/noah-isme/short-course-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func requestMeta(c *gin.Context) models.RequestMeta {
	return models.RequestMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

// actorFromContext builds the service actor from the JWT claims. It writes a 401 and
// returns false when the request is anonymous.
func actorFromContext(c *gin.Context) (service.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return service.Actor{}, false
	}
	return service.Actor{ID: claims.UserID, Role: claims.Role, Meta: requestMeta(c)}, true
}

// pathID parses a positive integer path parameter, writing a 400 on failure.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid "+name))
		return 0, false
	}
	return id, true
}

// queryID parses an optional positive integer query parameter.
func queryID(c *gin.Context, name string) (*int64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid "+name))
		return nil, false
	}
	return &id, true
}

// requiredQueryID is queryID for parameters that must be present.
func requiredQueryID(c *gin.Context, name string) (int64, bool) {
	id, ok := queryID(c, name)
	if !ok {
		return 0, false
	}
	if id == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, name+" is required"))
		return 0, false
	}
	return *id, true
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(c *gin.Context, name string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, name+" must be YYYY-MM-DD"))
		return nil, false
	}
	return &t, true
}

// bindJSON decodes the request body, writing a 400 on malformed input.
func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}

type listParams struct {
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

func parseListParams(c *gin.Context) listParams {
	var p listParams
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		p.Page = page
	}
	size := c.Query("page_size")
	if size == "" {
		size = c.DefaultQuery("limit", "20")
	}
	if n, err := strconv.Atoi(size); err == nil {
		p.PageSize = n
	}
	p.SortBy = c.Query("sort_by")
	p.SortOrder = c.Query("sort_order")
	return p
}

// respondCached writes data with the cache hit flag in the envelope meta.
func respondCached(c *gin.Context, data interface{}, pagination *models.Pagination, hit bool) {
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, data, pagination, middleware.ExtractMeta(c))
}
