package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/matthisholleville/authgate/internal/metadata"
	"github.com/matthisholleville/authgate/internal/metrics"
	"github.com/matthisholleville/authgate/internal/permissions"
	"github.com/matthisholleville/authgate/internal/session"
	"github.com/matthisholleville/authgate/internal/storage"
	"github.com/matthisholleville/authgate/internal/telemetry"
	"github.com/matthisholleville/authgate/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type AuthorizeRequest struct {
	Arguments map[metadata.ArgumentName]any `json:"arguments"`
}

type AuthorizeResponse struct {
	Subgraph  string                        `json:"subgraph"`
	Command   metadata.CommandName          `json:"command"`
	Role      session.Role                  `json:"role"`
	Arguments map[metadata.ArgumentName]any `json:"arguments"`
}

type PresetSummary struct {
	Type  string                   `json:"type"`
	Value metadata.ValueExpression `json:"value"`
}

type RoleSummary struct {
	Role            session.Role                           `json:"role"`
	AllowExecution  bool                                   `json:"allowExecution"`
	ArgumentPresets map[metadata.ArgumentName]PresetSummary `json:"argumentPresets,omitempty"`
}

type CommandSummary struct {
	Subgraph string               `json:"subgraph"`
	Command  metadata.CommandName `json:"command"`
	Roles    []RoleSummary        `json:"roles"`
}

type GenerationSummary struct {
	ID       string           `json:"id"`
	LoadedAt time.Time        `json:"loadedAt"`
	Source   string           `json:"source"`
	Commands []CommandSummary `json:"commands"`
}

// GetSession returns the role and session variables of the caller.
func (s *Server) GetSession(c echo.Context) error {
	sess, ok := sessionFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "missing session")
	}
	return c.JSON(http.StatusOK, sess)
}

// AuthorizeCommand checks the caller may execute a command and returns its
// arguments with the role presets applied.
func (s *Server) AuthorizeCommand(c echo.Context) error {
	ctx := c.Request().Context()
	log := logger.FromContext(ctx, s.Logger)

	sess, ok := sessionFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "missing session")
	}

	var body AuthorizeRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	generation, err := s.currentGeneration(c)
	if err != nil {
		return err
	}

	name := metadata.Qualify(c.Param("subgraph"), metadata.CommandName(c.Param("command")))
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerServer, "authorize_command",
		attribute.String(telemetry.AttrCommandName, name.String()),
		attribute.String(telemetry.AttrSessionRole, sess.Role.String()),
	)
	defer span.End()

	if _, ok := generation.Table[name]; !ok {
		return echo.NewHTTPError(http.StatusNotFound, "command "+name.String()+" not found")
	}

	permission, ok := generation.Table.Lookup(name, sess.Role)
	allowed := ok && permission.AllowExecution
	metrics.AuthorizeDecisionsCounter.WithLabelValues(name.String(), strconv.FormatBool(allowed)).Inc()
	if !allowed {
		log.InfoWithContext(ctx, "Command execution denied", zap.Stringer("command", name), zap.Stringer("role", sess.Role))
		return echo.NewHTTPError(http.StatusForbidden, "role "+sess.Role.String()+" is not allowed to execute "+name.String())
	}

	arguments, err := permissions.ApplyPresets(permission, sess.Variables, body.Arguments, generation.Registry)
	if err != nil {
		telemetry.RecordError(span, err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusOK, AuthorizeResponse{
		Subgraph:  name.Subgraph,
		Command:   name.Name,
		Role:      sess.Role,
		Arguments: arguments,
	})
}

// ListCommands returns the permission table currently served.
func (s *Server) ListCommands(c echo.Context) error {
	generation, err := s.currentGeneration(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summarizeGeneration(generation))
}

// ReloadMetadata loads the metadata document again. The table being served
// is kept when the new document is invalid.
func (s *Server) ReloadMetadata(c echo.Context) error {
	generation, err := s.Loader.Load(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, summarizeGeneration(generation))
}

func (s *Server) currentGeneration(c echo.Context) (*storage.Generation, error) {
	generation, err := s.Storage.Current(c.Request().Context())
	if errors.Is(err, storage.ErrNoGeneration) {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return generation, nil
}

func summarizeGeneration(generation *storage.Generation) GenerationSummary {
	summary := GenerationSummary{
		ID:       generation.ID.String(),
		LoadedAt: generation.LoadedAt,
		Source:   generation.Source,
		Commands: []CommandSummary{},
	}
	for _, name := range generation.Table.Commands() {
		command := CommandSummary{Subgraph: name.Subgraph, Command: name.Name, Roles: []RoleSummary{}}
		for _, role := range generation.Table.Roles(name) {
			permission, _ := generation.Table.Lookup(name, role)
			command.Roles = append(command.Roles, summarizeRole(role, permission))
		}
		summary.Commands = append(summary.Commands, command)
	}
	return summary
}

func summarizeRole(role session.Role, permission permissions.CommandPermission) RoleSummary {
	summary := RoleSummary{Role: role, AllowExecution: permission.AllowExecution}
	if len(permission.ArgumentPresets) > 0 {
		summary.ArgumentPresets = make(map[metadata.ArgumentName]PresetSummary, len(permission.ArgumentPresets))
		for argument, preset := range permission.ArgumentPresets {
			summary.ArgumentPresets[argument] = PresetSummary{Type: preset.Type.String(), Value: preset.Value}
		}
	}
	return summary
}
