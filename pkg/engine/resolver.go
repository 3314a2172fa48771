package engine

import (
	"github.com/dukex/dataflow/pkg/graph"
	"github.com/dukex/dataflow/pkg/models"
)

// ResultSource exposes the latest result of each node.
type ResultSource interface {
	Result(nodeID string) (*models.ExecutionResult, bool)
}

// ResolveInputs builds the input mapping of a node from the outputs of the
// nodes connected to its declared input ports. Unconnected optional ports are
// left out of the mapping, as are connected ports whose source did not
// produce the output.
func ResolveInputs(g *graph.Graph, nodeID string, def *models.ModuleDefinition, results ResultSource) (map[string]any, error) {
	inputs := make(map[string]any, len(def.Inputs))

	for _, port := range def.Inputs {
		edge, connected := g.IncomingEdge(nodeID, port.ID)
		if !connected {
			if port.Required {
				return nil, &MissingInputError{NodeID: nodeID, PortID: port.ID}
			}

			continue
		}

		source, ok := results.Result(edge.Source.NodeID)
		if !ok || !source.Succeeded() {
			return nil, &UnresolvedDependencyError{
				NodeID:       nodeID,
				PortID:       port.ID,
				SourceNodeID: edge.Source.NodeID,
			}
		}

		if value, ok := source.Outputs[edge.Source.PortID]; ok {
			inputs[port.ID] = models.CloneValue(value)
		}
	}

	return inputs, nil
}
