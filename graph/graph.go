package graph

import (
	"context"
	"fmt"
	"time"

	agerrors "github.com/sweetpotato0/agri-advisor/errors"
)

// NodeType represents the type of a node in the graph
type NodeType string

const (
	NodeTypeTask      NodeType = "task"
	NodeTypeCondition NodeType = "condition"
	NodeTypeEnd       NodeType = "end"
)

// NodeFunc is the function executed by a task node. It receives the state
// produced by the previous node and returns the state for the next one.
type NodeFunc[S any] func(context.Context, S) (S, error)

// ConditionFunc evaluates a condition and returns a branch label
type ConditionFunc[S any] func(context.Context, S) (string, error)

// Event describes one node visit; it is delivered to the graph's hook.
type Event struct {
	Node     string
	Type     NodeType
	Branch   string // condition nodes only
	Err      error
	Duration time.Duration
}

// Hook observes node visits.
type Hook func(context.Context, Event)

// Node represents a node in the execution graph
type Node[S any] struct {
	Name      string
	Type      NodeType
	Execute   NodeFunc[S]
	Condition ConditionFunc[S] // Only for condition nodes
	Next      string           // Outgoing edge for task nodes
	NextMap   map[string]string
}

// Graph is a single-path state machine: each task node has one successor and
// condition nodes pick exactly one branch. Execution stops at the end node.
type Graph[S any] struct {
	nodes     map[string]*Node[S]
	order     []string
	startNode string
	endNode   string
	maxVisits int
	hook      Hook
}

// NewGraph creates a new graph
func NewGraph[S any]() *Graph[S] {
	return &Graph[S]{
		nodes:     make(map[string]*Node[S]),
		maxVisits: 10,
	}
}

func (g *Graph[S]) validateNode(node *Node[S]) {
	if node.Name == "" {
		panic("node name cannot be empty")
	}

	switch node.Type {
	case NodeTypeCondition:
		if node.Condition == nil {
			panic(fmt.Sprintf("condition node %s must have non-nil Condition function", node.Name))
		}
	case NodeTypeEnd:
	default:
		if node.Execute == nil {
			panic(fmt.Sprintf("node %s of type %s must have non-nil Execute function", node.Name, node.Type))
		}
	}
}

// AddNode adds a node to the graph. The first node added becomes the start
// node unless SetStartNode overrides it.
func (g *Graph[S]) AddNode(node *Node[S]) {
	if _, exists := g.nodes[node.Name]; exists {
		panic(fmt.Sprintf("node %s already exists", node.Name))
	}
	if node.Type == "" {
		node.Type = NodeTypeTask
	}

	g.validateNode(node)

	g.nodes[node.Name] = node
	g.order = append(g.order, node.Name)

	if g.startNode == "" && node.Type != NodeTypeEnd {
		g.startNode = node.Name
	}
	if node.Type == NodeTypeEnd {
		g.endNode = node.Name
	}
}

// SetStartNode sets the start node
func (g *Graph[S]) SetStartNode(name string) {
	if _, exists := g.nodes[name]; !exists {
		panic(fmt.Sprintf("node %s not found", name))
	}
	g.startNode = name
}

// SetMaxVisits sets the maximum number of visits to a node
func (g *Graph[S]) SetMaxVisits(maxVisits int) {
	g.maxVisits = maxVisits
}

// SetHook installs an observer for node visits.
func (g *Graph[S]) SetHook(h Hook) {
	g.hook = h
}

// Nodes returns node names in insertion order.
func (g *Graph[S]) Nodes() []string {
	return append([]string(nil), g.order...)
}

// GetNode returns a node by name
func (g *Graph[S]) GetNode(name string) (*Node[S], error) {
	node, exists := g.nodes[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", agerrors.ErrNodeNotFound, name)
	}
	return node, nil
}

// Validate checks that every edge points at a known node and that an end
// node exists.
func (g *Graph[S]) Validate() error {
	if g.startNode == "" {
		return fmt.Errorf("start node not set")
	}
	if g.endNode == "" {
		return fmt.Errorf("end node not set")
	}
	for _, name := range g.order {
		node := g.nodes[name]
		switch node.Type {
		case NodeTypeEnd:
			continue
		case NodeTypeCondition:
			if len(node.NextMap) == 0 {
				return fmt.Errorf("condition node %s has no branches", name)
			}
			for branch, target := range node.NextMap {
				if _, ok := g.nodes[target]; !ok {
					return fmt.Errorf("%w: %s (branch %q of %s)", agerrors.ErrNodeNotFound, target, branch, name)
				}
			}
		default:
			if node.Next == "" {
				return fmt.Errorf("no next node specified for node %s", name)
			}
			if _, ok := g.nodes[node.Next]; !ok {
				return fmt.Errorf("%w: %s (after %s)", agerrors.ErrNodeNotFound, node.Next, name)
			}
		}
	}
	return nil
}

// Execute walks the graph from the start node until the end node. On error it
// returns the state as it was after the failing node so callers can inspect
// partial progress.
func (g *Graph[S]) Execute(ctx context.Context, state S) (S, error) {
	if g.startNode == "" {
		return state, fmt.Errorf("start node not set")
	}

	visited := make(map[string]int)
	current := g.startNode

	for {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		node, exists := g.nodes[current]
		if !exists {
			return state, fmt.Errorf("%w: %s", agerrors.ErrNodeNotFound, current)
		}

		visited[current]++
		if visited[current] > g.maxVisits {
			return state, fmt.Errorf("%w: %s", agerrors.ErrMaxVisits, current)
		}

		start := time.Now()
		switch node.Type {
		case NodeTypeEnd:
			var err error
			if node.Execute != nil {
				state, err = node.Execute(ctx, state)
			}
			g.emit(ctx, Event{Node: node.Name, Type: node.Type, Err: err, Duration: time.Since(start)})
			if err != nil {
				return state, fmt.Errorf("error executing node %s: %w", node.Name, err)
			}
			return state, nil

		case NodeTypeCondition:
			branch, err := node.Condition(ctx, state)
			g.emit(ctx, Event{Node: node.Name, Type: node.Type, Branch: branch, Err: err, Duration: time.Since(start)})
			if err != nil {
				return state, fmt.Errorf("error evaluating condition at node %s: %w", node.Name, err)
			}
			next := node.NextMap[branch]
			if next == "" {
				return state, fmt.Errorf("no next node for branch %q at node %s", branch, node.Name)
			}
			current = next

		default:
			next, err := node.Execute(ctx, state)
			g.emit(ctx, Event{Node: node.Name, Type: node.Type, Err: err, Duration: time.Since(start)})
			state = next
			if err != nil {
				return state, fmt.Errorf("error executing node %s: %w", node.Name, err)
			}
			if node.Next == "" {
				return state, fmt.Errorf("no next node specified for node %s", node.Name)
			}
			current = node.Next
		}
	}
}

func (g *Graph[S]) emit(ctx context.Context, ev Event) {
	if g.hook != nil {
		g.hook(ctx, ev)
	}
}

// Builder helps build graphs fluently
type Builder[S any] struct {
	graph *Graph[S]
}

// NewBuilder creates a new graph builder
func NewBuilder[S any]() *Builder[S] {
	return &Builder[S]{
		graph: NewGraph[S](),
	}
}

// AddNode adds a task node
func (b *Builder[S]) AddNode(name string, execute NodeFunc[S]) *Builder[S] {
	b.graph.AddNode(&Node[S]{
		Name:    name,
		Type:    NodeTypeTask,
		Execute: execute,
	})
	return b
}

// AddConditionNode adds a condition node
func (b *Builder[S]) AddConditionNode(name string, condition ConditionFunc[S], nextMap map[string]string) *Builder[S] {
	b.graph.AddNode(&Node[S]{
		Name:      name,
		Type:      NodeTypeCondition,
		Condition: condition,
		NextMap:   nextMap,
	})
	return b
}

// AddEnd adds the terminal node. finalize may be nil.
func (b *Builder[S]) AddEnd(name string, finalize NodeFunc[S]) *Builder[S] {
	b.graph.AddNode(&Node[S]{
		Name:    name,
		Type:    NodeTypeEnd,
		Execute: finalize,
	})
	return b
}

// AddEdge connects a task node to its successor
func (b *Builder[S]) AddEdge(from, to string) *Builder[S] {
	node, exists := b.graph.nodes[from]
	if !exists {
		panic(fmt.Sprintf("node %s not found", from))
	}
	if node.Type == NodeTypeCondition {
		panic(fmt.Sprintf("condition node %s uses branch targets, not edges", from))
	}
	node.Next = to
	return b
}

// SetStart sets the start node
func (b *Builder[S]) SetStart(name string) *Builder[S] {
	b.graph.SetStartNode(name)
	return b
}

// SetMaxVisits sets the maximum number of visits to a node
func (b *Builder[S]) SetMaxVisits(maxVisits int) *Builder[S] {
	b.graph.SetMaxVisits(maxVisits)
	return b
}

// WithHook installs an observer for node visits
func (b *Builder[S]) WithHook(h Hook) *Builder[S] {
	b.graph.SetHook(h)
	return b
}

// Build validates and returns the constructed graph
func (b *Builder[S]) Build() (*Graph[S], error) {
	if err := b.graph.Validate(); err != nil {
		return nil, err
	}
	return b.graph, nil
}
