package store

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/dataflow/pkg/graph"
	"github.com/dukex/dataflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/project.schema.json
var documentSchema []byte

// ValidateDocument checks raw JSON against the project document schema.
func ValidateDocument(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(documentSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if !result.Valid() {
		var errors []string
		for _, desc := range result.Errors() {
			errors = append(errors, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(errors, "; "))
	}

	return nil
}

// DecodeDocument validates and decodes a project document.
func DecodeDocument(data []byte) (*models.ProjectDocument, error) {
	if err := ValidateDocument(data); err != nil {
		return nil, err
	}

	var doc models.ProjectDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	return &doc, nil
}

// Document exports the project together with the user modules its nodes
// reference, so the document can be opened elsewhere.
func (s *Store) Document() *models.ProjectDocument {
	s.mu.Lock()
	project := s.exportLocked()
	s.mu.Unlock()

	doc := &models.ProjectDocument{Project: *project}

	var seen []string

	for _, node := range project.Nodes {
		if slices.Contains(seen, node.ModuleID) {
			continue
		}

		seen = append(seen, node.ModuleID)

		def, err := s.modules.Get(node.ModuleID)
		if err != nil || def.IsBuiltIn {
			continue
		}

		doc.Modules = append(doc.Modules, def)
	}

	slices.SortFunc(doc.Modules, func(a, b *models.ModuleDefinition) int {
		return strings.Compare(a.ID, b.ID)
	})

	return doc
}

// Import replaces the graph with the content of doc after registering the
// modules it carries. Results are cleared and in-flight runs are cancelled.
// The project id is kept. A rejected document leaves the store and the
// registry as they were.
func (s *Store) Import(doc *models.ProjectDocument) error {
	if err := RegisterDocumentModules(s.modules, doc); err != nil {
		return err
	}

	g, err := graph.FromProject(&doc.Project, s.modules)
	if err != nil {
		return err
	}

	s.mu.Lock()

	for _, run := range s.runs {
		run.cancel()
	}

	for id := range s.generations {
		s.generations[id]++
	}

	s.graph = g
	s.results = make(map[string]*models.ExecutionResult)
	s.project.Name = doc.Name
	s.project.Description = doc.Description
	s.project.Metadata = doc.Metadata
	s.touchLocked()

	s.mu.Unlock()

	return nil
}

// RegisterDocumentModules registers the user modules bundled in doc once the
// document's graph loads against them. When a module or the graph is
// rejected, nothing is registered.
func RegisterDocumentModules(modules ModuleSource, doc *models.ProjectDocument) error {
	overlay := &documentModules{base: modules, bundled: make(map[string]*models.ModuleDefinition, len(doc.Modules))}
	defs := make([]*models.ModuleDefinition, 0, len(doc.Modules))

	for i, def := range doc.Modules {
		if def == nil {
			return fmt.Errorf("%w: module %d is empty", ErrInvalidDocument, i)
		}

		def = def.Clone()
		def.IsBuiltIn = false
		overlay.bundled[def.ID] = def
		defs = append(defs, def)
	}

	if _, err := graph.FromProject(&doc.Project, overlay); err != nil {
		return err
	}

	if len(defs) == 0 {
		return nil
	}

	if err := modules.RegisterAll(defs...); err != nil {
		return fmt.Errorf("failed to register document modules: %w", err)
	}

	return nil
}

// documentModules resolves the modules bundled in a document before those
// of the registry.
type documentModules struct {
	base    graph.ModuleLookup
	bundled map[string]*models.ModuleDefinition
}

func (m *documentModules) Get(id string) (*models.ModuleDefinition, error) {
	if def, ok := m.bundled[id]; ok {
		return def.Clone(), nil
	}

	return m.base.Get(id)
}

// PortValues describes the latest value on every declared output port of
// a node. Ports without a value are left out.
func (s *Store) PortValues(nodeID string) ([]*models.PortValue, error) {
	s.mu.Lock()
	node, err := s.graph.Node(nodeID)
	result := s.results[nodeID].Clone()
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	if !result.Succeeded() {
		return []*models.PortValue{}, nil
	}

	var declared []models.PortSpec
	if def, err := s.modules.Get(node.ModuleID); err == nil {
		declared = def.Outputs
	}

	values := make([]*models.PortValue, 0, len(result.Outputs))

	for _, port := range declared {
		if value, ok := result.Outputs[port.ID]; ok {
			values = append(values, portValue(result, port.ID, value, port.Type))
		}
	}

	// Outputs the module did not declare, e.g. pinned data.
	var extra []string

	for key := range result.Outputs {
		if !slices.ContainsFunc(declared, func(p models.PortSpec) bool { return p.ID == key }) {
			extra = append(extra, key)
		}
	}

	slices.Sort(extra)

	for _, key := range extra {
		values = append(values, portValue(result, key, result.Outputs[key], models.PortKindAny))
	}

	return values, nil
}

// PortValue describes the latest value on one output port.
func (s *Store) PortValue(nodeID, portID string) (*models.PortValue, bool) {
	values, err := s.PortValues(nodeID)
	if err != nil {
		return nil, false
	}

	for _, v := range values {
		if v.PortID == portID {
			return v, true
		}
	}

	return nil, false
}

func portValue(result *models.ExecutionResult, portID string, value any, declared models.PortKind) *models.PortValue {
	return &models.PortValue{
		NodeID:    result.NodeID,
		PortID:    portID,
		Value:     value,
		Format:    models.DescribeValue(value, declared),
		Timestamp: result.Timestamp,
	}
}
