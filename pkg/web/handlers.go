// Package web provides HTTP handlers and REST API endpoints for dataflow projects.
package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/dukex/dataflow/pkg/models"
	"github.com/dukex/dataflow/pkg/registry"
	"github.com/dukex/dataflow/pkg/workspace"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

var errInvalidJSON = errors.New("invalid JSON format")

type APIHandlers struct {
	workspace *workspace.Workspace
	registry  *registry.Registry
	validator *validator.Validate
}

func NewAPIHandlers(
	ws *workspace.Workspace,
	reg *registry.Registry,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workspace: ws,
		registry:  reg,
		validator: validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	workspaceCheck, wsOk := h.workspace.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Dataflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && wsOk {
		status = "healthy"
		message = "Dataflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":  registryCheck,
			"workspace": workspaceCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// decode binds and validates a JSON body.
func (h *APIHandlers) decode(c fiber.Ctx, req any) error {
	if err := c.Bind().JSON(req); err != nil {
		return errInvalidJSON
	}

	return h.validator.Struct(req)
}

func (h *APIHandlers) ListModules(c fiber.Ctx) error {
	modules := h.registry.List()
	if category := c.Query("category"); category != "" {
		modules = h.registry.ListByCategory(models.Category(category))
	}

	summaries := make([]ModuleSummary, 0)
	for def := range modules {
		summaries = append(summaries, SummarizeModule(def))
	}

	return c.JSON(fiber.Map{"modules": summaries})
}

func (h *APIHandlers) GetModule(c fiber.Ctx) error {
	def, err := h.registry.Get(c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) CreateModule(c fiber.Ctx) error {
	var def models.ModuleDefinition
	if err := c.Bind().JSON(&def); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if h.registry.Contains(def.ID) {
		return problem(c, fiber.StatusConflict, "module_conflict", "module "+def.ID+" already exists")
	}

	def.IsBuiltIn = false

	if err := h.registry.Register(&def); err != nil {
		return handleError(c, err)
	}

	return h.respondModule(c, fiber.StatusCreated, def.ID)
}

func (h *APIHandlers) UpdateModule(c fiber.Ctx) error {
	var def models.ModuleDefinition
	if err := c.Bind().JSON(&def); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	def.ID = c.Params("id")
	def.IsBuiltIn = false

	if err := h.registry.Update(&def); err != nil {
		return handleError(c, err)
	}

	return h.respondModule(c, fiber.StatusOK, def.ID)
}

func (h *APIHandlers) DeleteModule(c fiber.Ctx) error {
	if err := h.registry.Remove(c.Params("id")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ForkModule(c fiber.Ctx) error {
	var req ForkModuleRequest
	if err := h.decode(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	if h.registry.Contains(req.ID) {
		return problem(c, fiber.StatusConflict, "module_conflict", "module "+req.ID+" already exists")
	}

	def, err := h.registry.Fork(c.Params("id"), req.ID, req.Name)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(def)
}

func (h *APIHandlers) respondModule(c fiber.Ctx, status int, id string) error {
	def, err := h.registry.Get(id)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(status).JSON(def)
}

// Categories lists the module categories in display order.
func (h *APIHandlers) Categories(c fiber.Ctx) error {
	categories := []models.Category{
		models.CategoryInput,
		models.CategoryProcessing,
		models.CategoryCalculation,
		models.CategoryOutput,
		models.CategoryCustom,
	}

	return c.JSON(fiber.Map{"categories": categories})
}
