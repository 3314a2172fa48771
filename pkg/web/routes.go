package web

import "github.com/gofiber/fiber/v3"

// Register mounts the module and project endpoints on router.
func (h *APIHandlers) Register(router fiber.Router) {
	m := router.Group("/modules")
	m.Get("/", h.ListModules)
	m.Post("/", h.CreateModule)
	m.Get("/categories", h.Categories)
	m.Get("/:id", h.GetModule)
	m.Put("/:id", h.UpdateModule)
	m.Delete("/:id", h.DeleteModule)
	m.Post("/:id/fork", h.ForkModule)

	p := router.Group("/projects")
	p.Get("/", h.ListProjects)
	p.Post("/", h.CreateProject)
	p.Post("/import", h.ImportProject)
	p.Get("/:id", h.GetProject)
	p.Patch("/:id", h.UpdateProject)
	p.Delete("/:id", h.DeleteProject)
	p.Get("/:id/export", h.ExportProject)
	p.Post("/:id/save", h.SaveProject)
	p.Get("/:id/waves", h.GetWaves)

	p.Post("/:id/nodes", h.CreateNode)
	p.Get("/:id/nodes/:nodeId", h.GetNode)
	p.Patch("/:id/nodes/:nodeId", h.UpdateNode)
	p.Patch("/:id/nodes/:nodeId/config", h.UpdateNodeConfig)
	p.Delete("/:id/nodes/:nodeId", h.DeleteNode)
	p.Put("/:id/nodes/:nodeId/pin", h.PinNode)
	p.Delete("/:id/nodes/:nodeId/pin", h.UnpinNode)
	p.Post("/:id/nodes/:nodeId/run", h.RunNode)
	p.Get("/:id/nodes/:nodeId/ports", h.GetPortValues)
	p.Get("/:id/nodes/:nodeId/ports/:portId", h.GetPortValue)

	p.Post("/:id/edges", h.CreateEdge)
	p.Delete("/:id/edges/:edgeId", h.DeleteEdge)

	p.Get("/:id/globals", h.GetGlobals)
	p.Put("/:id/globals/:name", h.SetGlobal)
	p.Delete("/:id/globals/:name", h.DeleteGlobal)

	p.Post("/:id/run", h.RunProject)
	p.Get("/:id/results", h.GetResults)
	p.Get("/:id/results/:nodeId", h.GetResult)
}
