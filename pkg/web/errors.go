package web

import (
	"errors"

	"github.com/dukex/dataflow/pkg/graph"
	"github.com/dukex/dataflow/pkg/persistence"
	"github.com/dukex/dataflow/pkg/registry"
	"github.com/dukex/dataflow/pkg/store"
	"github.com/dukex/dataflow/pkg/workspace"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func problem(c fiber.Ctx, status int, kind, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func notFound(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusNotFound, "not_found", detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleError maps domain errors to problem responses.
func handleError(c fiber.Ctx, err error) error {
	switch {
	case graph.IsConnectionError(err):
		return problem(c, fiber.StatusBadRequest, "connection_rejected", err.Error())

	case persistence.IsProjectNotFound(err):
		return problem(c, fiber.StatusNotFound, "project_not_found", "project not found")

	case graph.IsNodeNotFound(err):
		return problem(c, fiber.StatusNotFound, "node_not_found", err.Error())

	case graph.IsEdgeNotFound(err):
		return problem(c, fiber.StatusNotFound, "edge_not_found", err.Error())

	case graph.IsGlobalNotFound(err):
		return problem(c, fiber.StatusNotFound, "global_not_found", err.Error())

	case registry.IsModuleNotFound(err):
		return problem(c, fiber.StatusNotFound, "module_not_found", err.Error())

	case registry.IsDuplicateModule(err), registry.IsImmutableModule(err):
		return problem(c, fiber.StatusConflict, "module_conflict", err.Error())

	case store.IsRunSuperseded(err):
		return problem(c, fiber.StatusConflict, "run_superseded", err.Error())

	case graph.IsCyclicGraph(err):
		return problem(c, fiber.StatusUnprocessableEntity, "cyclic_graph", err.Error())

	case registry.IsInvalidModule(err),
		store.IsInvalidDocument(err),
		persistence.IsInvalidProject(err),
		errors.Is(err, graph.ErrInvalidGlobalName),
		errors.Is(err, graph.ErrDuplicateNode):
		return badRequest(c, err.Error())

	case errors.Is(err, workspace.ErrNoPersistence):
		return problem(c, fiber.StatusNotImplemented, "no_persistence", err.Error())

	default:
		return internalError(c, err)
	}
}
