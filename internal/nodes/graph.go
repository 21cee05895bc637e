package nodes

import (
	"ruwave_bot/internal/core"
)

// NewIntentGraph registers the nodes on a processor running core.IntentFlow
func NewIntentGraph(nodes ...core.Node) (core.GraphProcessor, error) {
	processor := core.NewGraphProcessor(core.Config{
		Graph: core.GraphConfig{DefaultFlow: core.IntentFlow()},
	})
	for _, node := range nodes {
		if err := processor.AddNode(node); err != nil {
			return nil, err
		}
	}
	return processor, nil
}
