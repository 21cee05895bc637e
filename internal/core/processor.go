package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"ruwave_bot/internal/logger"
	"ruwave_bot/pkg"
)

const (
	completeNode    = "complete"
	defaultMaxSteps = 8
)

// DefaultGraphProcessor implements the GraphProcessor interface
type DefaultGraphProcessor struct {
	nodes  map[string]Node
	config Config
	flow   GraphFlow
}

// NewGraphProcessor creates a new graph processor
func NewGraphProcessor(config Config) GraphProcessor {
	if config.Graph.MaxSteps <= 0 {
		config.Graph.MaxSteps = defaultMaxSteps
	}
	return &DefaultGraphProcessor{
		nodes:  make(map[string]Node),
		config: config,
		flow:   config.Graph.DefaultFlow,
	}
}

// Execute runs the graph flow with the given input
func (g *DefaultGraphProcessor) Execute(ctx context.Context, input ProcessorInput) (*ProcessorOutput, error) {
	startTime := time.Now()

	message := strings.TrimSpace(input.UserMessage)
	if message == "" {
		return nil, pkg.ErrEmptyInput
	}

	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = startTime
	}

	logger.Debug().Int("message_len", len(message)).Msg("🚀 Starting graph execution")

	nodeInput := NodeInput{
		UserMessage: message,
		ReceivedAt:  receivedAt,
		Metadata:    make(map[string]any),
	}

	currentNode := g.flow.StartNode
	output := &ProcessorOutput{
		Metadata: make(map[string]any),
	}

	for currentNode != "" && currentNode != completeNode {
		if len(output.ExecutionPath) >= g.config.Graph.MaxSteps {
			return nil, fmt.Errorf("graph exceeded %d steps, path %v", g.config.Graph.MaxSteps, output.ExecutionPath)
		}
		output.ExecutionPath = append(output.ExecutionPath, currentNode)
		logger.Debug().Str("node", currentNode).Msg("📍 Executing node")

		node, exists := g.nodes[currentNode]
		if !exists {
			return nil, fmt.Errorf("node not found: %s", currentNode)
		}

		nodeOutput, err := node.Execute(ctx, nodeInput)
		if err != nil {
			logger.Error().Err(err).Str("node", currentNode).Msg("❌ Error executing node")
			return nil, fmt.Errorf("error executing node %s: %w", currentNode, err)
		}

		// non-fatal node error
		if nodeOutput.Error != nil {
			logger.Warn().Err(nodeOutput.Error).Str("node", currentNode).Msg("⚠️ Node returned error")
			output.Metadata["errors"] = append(getStringSlice(output.Metadata, "errors"), nodeOutput.Error.Error())
		}

		g.processNodeOutput(currentNode, nodeOutput, output, &nodeInput)

		if nodeOutput.Complete {
			break
		}

		nextNode := nodeOutput.NextNode
		if nextNode == "" {
			nextNode = g.getNextNode(currentNode, nodeOutput)
		}
		currentNode = nextNode
	}

	output.ProcessingTime = time.Since(startTime).Milliseconds()
	output.Metadata["execution_path"] = output.ExecutionPath

	logger.Debug().
		Strs("path", output.ExecutionPath).
		Str("intent", string(output.Intent)).
		Dur("elapsed", time.Since(startTime)).
		Msg("🏁 Graph execution completed")

	return output, nil
}

// AddNode adds a node to the processor
func (g *DefaultGraphProcessor) AddNode(node Node) error {
	if node == nil {
		return fmt.Errorf("node cannot be nil")
	}

	nodeName := node.GetName()
	if nodeName == "" {
		return fmt.Errorf("node name cannot be empty")
	}

	g.nodes[nodeName] = node
	logger.Debug().Str("node", nodeName).Str("type", string(node.GetType())).Msg("➕ Added node")

	return nil
}

// GetNode retrieves a node by name
func (g *DefaultGraphProcessor) GetNode(name string) (Node, error) {
	node, exists := g.nodes[name]
	if !exists {
		return nil, fmt.Errorf("node not found: %s", name)
	}
	return node, nil
}

// SetFlow sets the execution flow
func (g *DefaultGraphProcessor) SetFlow(flow GraphFlow) error {
	if flow.StartNode == "" {
		return fmt.Errorf("start node cannot be empty")
	}

	g.flow = flow
	logger.Debug().Str("start", flow.StartNode).Msg("🔀 Updated graph flow")

	return nil
}

// processNodeOutput merges node data into the result and the next node's input
func (g *DefaultGraphProcessor) processNodeOutput(nodeName string, nodeOutput NodeOutput, globalOutput *ProcessorOutput, nodeInput *NodeInput) {
	for key, value := range nodeOutput.Data {
		switch key {
		case DataReply:
			if reply, ok := value.(string); ok {
				globalOutput.Reply = reply
			}
		case DataIntent:
			if intent, ok := value.(pkg.Intent); ok {
				globalOutput.Intent = intent
			}
			nodeInput.Metadata[key] = value
		default:
			globalOutput.Metadata[fmt.Sprintf("%s_%s", nodeName, key)] = value
			nodeInput.Metadata[key] = value
		}
	}
}

// getNextNode determines the next node based on flow edges and conditions
func (g *DefaultGraphProcessor) getNextNode(currentNode string, nodeOutput NodeOutput) string {
	edges, exists := g.flow.Edges[currentNode]
	if !exists || len(edges) == 0 {
		return completeNode
	}

	for _, edge := range sortEdgesByPriority(edges) {
		if evaluateCondition(edge.Condition, nodeOutput) {
			return edge.To
		}
	}

	return completeNode
}

// sortEdgesByPriority sorts edges by priority (lower number = higher priority)
func sortEdgesByPriority(edges []GraphEdge) []GraphEdge {
	sorted := make([]GraphEdge, len(edges))
	copy(sorted, edges)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return sorted
}

// evaluateCondition checks that every condition key equals the node output value
func evaluateCondition(condition map[string]any, nodeOutput NodeOutput) bool {
	for key, expectedValue := range condition {
		actualValue, exists := nodeOutput.Data[key]
		if !exists || actualValue != expectedValue {
			return false
		}
	}
	return true
}

func getStringSlice(metadata map[string]any, key string) []string {
	if value, exists := metadata[key]; exists {
		if slice, ok := value.([]string); ok {
			return slice
		}
	}
	return []string{}
}
