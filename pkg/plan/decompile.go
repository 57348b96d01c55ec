package plan

import "github.com/rivetflow/rivet/pkg/models"

// Decompile reconstructs an editor-facing workflow graph from a plan.
// Node set, connection set and branch tags round-trip; editor positions
// survive because the arena keeps the full node definitions.
func Decompile(p *ExecutionPlan) *models.Workflow {
	workflow := &models.Workflow{
		ID:          p.WorkflowID,
		Nodes:       make([]*models.WorkflowNode, 0, len(p.Nodes)),
		Connections: make(models.ConnectionMap, len(p.Groups)),
	}

	for _, id := range p.declared {
		workflow.Nodes = append(workflow.Nodes, p.Nodes[id])
	}

	for sourceID, groups := range p.Groups {
		copied := make([]models.OutputGroup, len(groups))

		for i, group := range groups {
			copied[i] = models.OutputGroup{
				Branch:      group.Branch,
				Connections: append([]models.Connection(nil), group.Connections...),
			}
		}

		workflow.Connections[sourceID] = copied
	}

	return workflow
}
