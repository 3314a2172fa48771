package web

import (
	"strconv"

	"github.com/dukex/dataflow/pkg/store"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) project(c fiber.Ctx) (*store.Store, error) {
	return h.workspace.Open(c.Context(), c.Params("id"))
}

func (h *APIHandlers) ListProjects(c fiber.Ctx) error {
	projects, err := h.workspace.List(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{
		"projects":    projects,
		"total_count": len(projects),
	})
}

func (h *APIHandlers) CreateProject(c fiber.Ctx) error {
	var req CreateProjectRequest
	if err := h.decode(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	s, err := h.workspace.Create(c.Context(), req.Name, req.Description)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(ProjectResponse{Project: s.Project()})
}

// ImportProject opens a project from a project document.
func (h *APIHandlers) ImportProject(c fiber.Ctx) error {
	doc, err := store.DecodeDocument(c.Body())
	if err != nil {
		return handleError(c, err)
	}

	s, err := h.workspace.Import(c.Context(), doc)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(ProjectResponse{Project: s.Project()})
}

func (h *APIHandlers) GetProject(c fiber.Ctx) error {
	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(ProjectResponse{Project: s.Project(), Running: s.IsRunning()})
}

func (h *APIHandlers) UpdateProject(c fiber.Ctx) error {
	var req UpdateProjectRequest
	if err := h.decode(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	current := s.Project()
	name, description := current.Name, current.Description

	if req.Name != nil {
		name = *req.Name
	}

	if req.Description != nil {
		description = *req.Description
	}

	s.Rename(name, description)

	return c.JSON(ProjectResponse{Project: s.Project(), Running: s.IsRunning()})
}

func (h *APIHandlers) ExportProject(c fiber.Ctx) error {
	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(s.Document())
}

func (h *APIHandlers) SaveProject(c fiber.Ctx) error {
	doc, err := h.workspace.Save(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(doc)
}

func (h *APIHandlers) DeleteProject(c fiber.Ctx) error {
	if err := h.workspace.Delete(c.Context(), c.Params("id")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetWaves(c fiber.Ctx) error {
	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	waves, err := s.Waves()
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"waves": waves})
}

func (h *APIHandlers) CreateNode(c fiber.Ctx) error {
	var req CreateNodeRequest
	if err := h.decode(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	id, err := s.AddNode(req.ModuleID, req.Position)
	if err != nil {
		return handleError(c, err)
	}

	if req.Label != "" {
		if err := s.UpdateNodeLabel(id, req.Label); err != nil {
			return handleError(c, err)
		}
	}

	if len(req.Config) > 0 {
		if err := s.UpdateNodeConfig(id, req.Config); err != nil {
			return handleError(c, err)
		}
	}

	node, err := s.Node(id)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(node)
}

func (h *APIHandlers) GetNode(c fiber.Ctx) error {
	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	node, err := s.Node(c.Params("nodeId"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(node)
}

func (h *APIHandlers) UpdateNode(c fiber.Ctx) error {
	var req UpdateNodeRequest
	if err := h.decode(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	nodeID := c.Params("nodeId")

	if req.Label != nil {
		if err := s.UpdateNodeLabel(nodeID, *req.Label); err != nil {
			return handleError(c, err)
		}
	}

	if req.Position != nil {
		if err := s.MoveNode(nodeID, *req.Position); err != nil {
			return handleError(c, err)
		}
	}

	return h.GetNode(c)
}

// UpdateNodeConfig merges the body into the node configuration.
func (h *APIHandlers) UpdateNodeConfig(c fiber.Ctx) error {
	var partial map[string]any
	if err := c.Bind().JSON(&partial); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	if err := s.UpdateNodeConfig(c.Params("nodeId"), partial); err != nil {
		return handleError(c, err)
	}

	return h.GetNode(c)
}

func (h *APIHandlers) DeleteNode(c fiber.Ctx) error {
	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	if err := s.RemoveNode(c.Params("nodeId")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PinNode(c fiber.Ctx) error {
	var req PinNodeRequest
	if err := h.decode(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	if err := s.PinNodeData(c.Params("nodeId"), req.Data); err != nil {
		return handleError(c, err)
	}

	return h.GetNode(c)
}

func (h *APIHandlers) UnpinNode(c fiber.Ctx) error {
	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	if err := s.UnpinNodeData(c.Params("nodeId")); err != nil {
		return handleError(c, err)
	}

	return h.GetNode(c)
}

func (h *APIHandlers) CreateEdge(c fiber.Ctx) error {
	var req CreateEdgeRequest
	if err := h.decode(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	id, err := s.AddEdge(req.Source, req.Target)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(IDResponse{ID: id})
}

func (h *APIHandlers) DeleteEdge(c fiber.Ctx) error {
	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	if err := s.RemoveEdge(c.Params("edgeId")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetGlobals(c fiber.Ctx) error {
	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"globals": s.Project().Globals})
}

func (h *APIHandlers) SetGlobal(c fiber.Ctx) error {
	var req SetGlobalRequest
	if err := h.decode(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	name := c.Params("name")

	if err := s.SetGlobal(name, req.Value); err != nil {
		return handleError(c, err)
	}

	if req.Description != nil {
		if err := s.DescribeGlobal(name, *req.Description); err != nil {
			return handleError(c, err)
		}
	}

	return c.JSON(fiber.Map{"globals": s.Project().Globals})
}

func (h *APIHandlers) DeleteGlobal(c fiber.Ctx) error {
	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	if err := s.RemoveGlobal(c.Params("name")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) RunProject(c fiber.Ctx) error {
	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	results, err := s.RunAll(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(RunResponse{Results: results})
}

// RunNode runs a node and its downstream nodes, or only the node when the
// "only" query parameter is true.
func (h *APIHandlers) RunNode(c fiber.Ctx) error {
	only := false

	if raw := c.Query("only"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(c, "Invalid value for only: "+raw)
		}

		only = parsed
	}

	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	run := s.RunNode
	if only {
		run = s.RunNodeOnly
	}

	results, err := run(c.Context(), c.Params("nodeId"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(RunResponse{Results: results})
}

func (h *APIHandlers) GetResults(c fiber.Ctx) error {
	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(RunResponse{Results: s.Results()})
}

func (h *APIHandlers) GetResult(c fiber.Ctx) error {
	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	nodeID := c.Params("nodeId")

	if _, err := s.Node(nodeID); err != nil {
		return handleError(c, err)
	}

	result, ok := s.Result(nodeID)
	if !ok {
		return notFound(c, "node "+nodeID+" has no result")
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetPortValues(c fiber.Ctx) error {
	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	values, err := s.PortValues(c.Params("nodeId"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"ports": values})
}

func (h *APIHandlers) GetPortValue(c fiber.Ctx) error {
	s, err := h.project(c)
	if err != nil {
		return handleError(c, err)
	}

	value, ok := s.PortValue(c.Params("nodeId"), c.Params("portId"))
	if !ok {
		return notFound(c, "port has no value")
	}

	return c.JSON(value)
}
