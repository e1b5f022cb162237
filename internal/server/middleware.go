package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/matthisholleville/authgate/internal/identity"
	"github.com/matthisholleville/authgate/internal/telemetry"
	"github.com/matthisholleville/authgate/internal/webhook"
	"github.com/matthisholleville/authgate/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const sessionContextKey = "session"

// webhookMiddleware authenticates the request against the auth hook and
// stores the resulting session in the echo context.
func (s *Server) webhookMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx, span := telemetry.StartSpan(req.Context(), telemetry.TracerServer, "authenticate_request",
			attribute.String("http.route", c.Path()),
		)
		defer span.End()

		correlationID := uuid.New().String()
		log := s.Logger.With(zap.String("correlation_id", correlationID))
		ctx = logger.NewContext(ctx, log)
		c.SetRequest(req.WithContext(ctx))
		c.Response().Header().Set(correlationIDHeader, correlationID)

		id, err := s.Authenticator.Authenticate(ctx, s.AuthConfig, req.Header)
		if err != nil {
			telemetry.RecordError(span, err)
			status := webhook.StatusCode(err)
			if webhook.IsInternal(err) {
				log.ErrorWithContext(ctx, "Authentication failed", zap.Error(err))
				return echo.NewHTTPError(status, "internal error while authenticating the request")
			}
			log.InfoWithContext(ctx, "Authentication denied", zap.Error(err))
			return echo.NewHTTPError(status, err.Error())
		}

		sess, err := identity.Authorize(id, identity.RequestedRole(req.Header), req.Header)
		if err != nil {
			telemetry.RecordError(span, err)
			if errors.Is(err, identity.ErrRoleNotAllowed) {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			log.ErrorWithContext(ctx, "Unable to build the request session", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error while authorizing the request")
		}

		span.SetAttributes(attribute.String(telemetry.AttrSessionRole, sess.Role.String()))
		log.DebugWithContext(ctx, "Request authenticated", zap.Stringer("role", sess.Role))
		c.Set(sessionContextKey, sess)
		return next(c)
	}
}

func sessionFromContext(c echo.Context) (identity.Session, bool) {
	sess, ok := c.Get(sessionContextKey).(identity.Session)
	return sess, ok
}
