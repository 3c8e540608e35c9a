package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/short-course-api/internal/models"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Actor identifies the authenticated caller of a workflow.
type Actor struct {
	ID   int64
	Role models.UserRole
	Meta models.RequestMeta
}

// IsAdmin reports whether the actor holds the ADMIN role.
func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

// IsTeacher reports whether the actor holds the TEACHER role.
func (a Actor) IsTeacher() bool { return a.Role == models.RoleTeacher }

// IsStudent reports whether the actor holds the STUDENT role.
func (a Actor) IsStudent() bool { return a.Role == models.RoleStudent }

// validationError maps validator failures to a 400 listing the offending fields.
func validationError(err error, message string) error {
	appErr := appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		details := make(map[string]string, len(fields))
		for _, f := range fields {
			if f.Param() != "" {
				details[f.Field()] = f.Tag() + "=" + f.Param()
			} else {
				details[f.Field()] = f.Tag()
			}
		}
		appErr.Details = details
	}
	return appErr
}

func internalError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// writeAudit stores an audit entry. Failures are logged and swallowed.
func writeAudit(ctx context.Context, w auditWriter, logger *zap.Logger, actor Actor, action, resource string, resourceID int64, oldValues, newValues interface{}) {
	if w == nil {
		return
	}
	entry := &models.AuditLog{
		Action:    action,
		Resource:  resource,
		IPAddress: actor.Meta.IP,
		UserAgent: actor.Meta.UserAgent,
	}
	if actor.ID > 0 {
		id := actor.ID
		entry.UserID = &id
	}
	if resourceID > 0 {
		rid := strconv.FormatInt(resourceID, 10)
		entry.ResourceID = &rid
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	if err := w.CreateAuditLog(ctx, entry); err != nil && logger != nil {
		logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

// Cache key families shared by readers and writers.
const (
	cacheKeyCatalog    = "catalog:"
	cacheKeyDashboard  = "dash:"
	cacheKeyGradeStats = "grades:stats:"
)

// invalidateCache drops the given key families after a write. Failures are
// logged by the cache service and never fail the write.
func invalidateCache(ctx context.Context, cache *CacheService, patterns ...string) {
	_ = cache.Invalidate(ctx, patterns...)
}

type teachingChecker interface {
	IsTaughtBy(ctx context.Context, classID, teacherID int64) (bool, error)
}

// requireClassStaff admits admins and the teacher assigned to the class.
func requireClassStaff(ctx context.Context, checker teachingChecker, classID int64, actor Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	if !actor.IsTeacher() {
		return appErrors.Clone(appErrors.ErrForbidden, "only staff of the class may do this")
	}
	ok, err := checker.IsTaughtBy(ctx, classID, actor.ID)
	if err != nil {
		return internalError(err, "failed to check class ownership")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "class is taught by another teacher")
	}
	return nil
}
