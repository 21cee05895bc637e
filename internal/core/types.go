package core

import (
	"context"
	"time"

	"ruwave_bot/pkg"
)

// Node represents a single processing unit in the graph flow
type Node interface {
	Execute(ctx context.Context, input NodeInput) (NodeOutput, error)
	GetName() string
	GetType() NodeType
}

// NodeType defines the different types of nodes in the graph
type NodeType string

const (
	NodeTypeIntent   NodeType = "intent"
	NodeTypePrice    NodeType = "price"
	NodeTypePlaylist NodeType = "playlist"
	NodeTypeFallback NodeType = "fallback"
)

// Keys nodes use in NodeOutput.Data
const (
	DataReply  = "reply"
	DataIntent = "intent"
)

// NodeInput contains the input data for a node
type NodeInput struct {
	UserMessage string         `json:"user_message"`
	ReceivedAt  time.Time      `json:"received_at"`
	Metadata    map[string]any `json:"metadata"`
}

// NodeOutput contains the output data from a node
type NodeOutput struct {
	Data     map[string]any `json:"data"`
	NextNode string         `json:"next_node,omitempty"`
	Error    error          `json:"error,omitempty"`
	Complete bool           `json:"complete"`
}

// GraphProcessor orchestrates the execution of nodes in a graph flow
type GraphProcessor interface {
	Execute(ctx context.Context, input ProcessorInput) (*ProcessorOutput, error)
	AddNode(node Node) error
	GetNode(name string) (Node, error)
	SetFlow(flow GraphFlow) error
}

// ProcessorInput is the main input for the graph processor
type ProcessorInput struct {
	UserMessage string    `json:"user_message"`
	ReceivedAt  time.Time `json:"received_at"`
}

// ProcessorOutput is the main output from the graph processor
type ProcessorOutput struct {
	Reply          string         `json:"reply"`
	Intent         pkg.Intent     `json:"intent"`
	ExecutionPath  []string       `json:"execution_path"`
	ProcessingTime int64          `json:"processing_time_ms"`
	Metadata       map[string]any `json:"metadata"`
}

// GraphFlow defines the execution flow between nodes
type GraphFlow struct {
	StartNode string                 `json:"start_node"`
	Edges     map[string][]GraphEdge `json:"edges"` // node_name -> possible next nodes
}

// GraphEdge represents a connection between two nodes with conditions
type GraphEdge struct {
	To        string         `json:"to"`
	Condition map[string]any `json:"condition,omitempty"`
	Priority  int            `json:"priority"`
}

// Config holds all configuration for the graph processor
type Config struct {
	Graph GraphConfig `json:"graph"`
}

// GraphConfig holds graph flow configuration
type GraphConfig struct {
	DefaultFlow GraphFlow `json:"default_flow"`
	MaxSteps    int       `json:"max_steps"`
}

// IntentFlow routes the intent node to exactly one terminal branch
func IntentFlow() GraphFlow {
	return GraphFlow{
		StartNode: string(NodeTypeIntent),
		Edges: map[string][]GraphEdge{
			string(NodeTypeIntent): {
				{To: string(NodeTypePrice), Condition: map[string]any{DataIntent: pkg.IntentPrice}, Priority: 1},
				{To: string(NodeTypePlaylist), Condition: map[string]any{DataIntent: pkg.IntentPlaylist}, Priority: 2},
				{To: string(NodeTypeFallback), Condition: map[string]any{DataIntent: pkg.IntentFallback}, Priority: 3},
			},
		},
	}
}
