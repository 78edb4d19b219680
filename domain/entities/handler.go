package entities

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/emergent-company/graphmerge/domain/changeset"
	"github.com/emergent-company/graphmerge/domain/identifiers"
	"github.com/emergent-company/graphmerge/domain/merge"
	"github.com/emergent-company/graphmerge/internal/server"
	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/internal/store/tenancy"
	"github.com/emergent-company/graphmerge/pkg/apperror"
	"github.com/emergent-company/graphmerge/pkg/rdf"
)

// MaxBodyBytes caps the size of a submitted document.
const MaxBodyBytes = 32 << 20

// errorRules map domain errors onto API errors.
var errorRules = []apperror.Rule{
	{Target: identifiers.ErrMissingType, Err: apperror.ErrMissingType},
	{Target: merge.ErrDuplicateRecords, Err: apperror.ErrDuplicateRecords},
	{Target: store.ErrMalformedQuery, Err: apperror.ErrMalformedQuery},
	{Target: rdf.ErrSyntax, Err: apperror.ErrBadRequest},
	{Target: tenancy.ErrInvalidTenant, Err: apperror.ErrBadRequest},
	{Target: store.ErrClosed, Err: apperror.ErrStore},
}

// Handler handles HTTP requests for entity operations.
type Handler struct {
	svc           *Service
	defaultTenant string
}

// NewHandler creates a new entity handler.
func NewHandler(svc *Service, defaultTenant string) *Handler {
	return &Handler{svc: svc, defaultTenant: defaultTenant}
}

// Create submits new statements.
// POST /api/entities
func (h *Handler) Create(c echo.Context) error {
	req, err := readChange(c)
	if err != nil {
		return err
	}
	insert, err := parseGraph(req.Insert)
	if err != nil {
		return apperror.Match(err, errorRules...)
	}
	if insert.Len() == 0 {
		return apperror.NewBadRequest("no statements submitted")
	}

	cs, err := h.svc.Create(c.Request().Context(), server.Tenant(c, h.defaultTenant), insert, options(c))
	if err != nil {
		return apperror.Match(err, errorRules...)
	}
	return respond(c, http.StatusCreated, cs)
}

// Update inserts and removes statements in one transaction.
// PATCH /api/entities
func (h *Handler) Update(c echo.Context) error {
	req, err := readChange(c)
	if err != nil {
		return err
	}
	insert, err := parseGraph(req.Insert)
	if err != nil {
		return apperror.Match(err, errorRules...)
	}
	remove, err := parseGraph(req.Remove)
	if err != nil {
		return apperror.Match(err, errorRules...)
	}
	if insert.Len() == 0 && remove.Len() == 0 {
		return apperror.NewBadRequest("no statements submitted")
	}

	cs, err := h.svc.Update(c.Request().Context(), server.Tenant(c, h.defaultTenant), insert, remove, options(c))
	if err != nil {
		return apperror.Match(err, errorRules...)
	}
	return respond(c, http.StatusOK, cs)
}

// Query evaluates a structured query.
// POST /api/query
func (h *Handler) Query(c echo.Context) error {
	var q store.Query
	if err := json.NewDecoder(io.LimitReader(c.Request().Body, MaxBodyBytes)).Decode(&q); err != nil {
		return apperror.NewBadRequest(fmt.Sprintf("invalid query: %v", err))
	}

	rows, err := h.svc.Query(c.Request().Context(), server.Tenant(c, h.defaultTenant), q)
	if err != nil {
		return apperror.Match(err, errorRules...)
	}
	if rows == nil {
		rows = []store.Binding{}
	}
	return c.JSON(http.StatusOK, QueryResponse{Columns: q.Columns(), Bindings: rows})
}

// respond renders the finished transaction. A storage failure is reported
// as data, not as an HTTP error.
func respond(c echo.Context, status int, cs *changeset.Changeset) error {
	if !cs.Succeeded() {
		status = http.StatusOK
	}
	return c.JSON(status, ChangeResponse{Transaction: cs.View()})
}

func options(c echo.Context) Options {
	return Options{Strict: c.QueryParam("strict") == "true"}
}

// readChange accepts either a JSON ChangeRequest or a raw N-Quads document,
// which is taken as the insert set.
func readChange(c echo.Context) (ChangeRequest, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, MaxBodyBytes+1))
	if err != nil {
		return ChangeRequest{}, apperror.NewBadRequest("failed to read request body")
	}
	if len(body) > MaxBodyBytes {
		return ChangeRequest{}, apperror.New(http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
	}

	mediaType, _, _ := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))
	if mediaType != echo.MIMEApplicationJSON {
		return ChangeRequest{Insert: string(body)}, nil
	}

	var req ChangeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return ChangeRequest{}, apperror.NewBadRequest(fmt.Sprintf("invalid JSON at offset %d", syntaxErr.Offset))
		}
		return ChangeRequest{}, apperror.NewBadRequest("invalid request body")
	}
	return req, nil
}

func parseGraph(doc string) (*rdf.Graph, error) {
	if strings.TrimSpace(doc) == "" {
		return &rdf.Graph{}, nil
	}
	stmts, err := rdf.ParseNQuads(strings.NewReader(doc))
	if err != nil {
		return nil, err
	}
	return rdf.NewGraph(stmts...), nil
}
