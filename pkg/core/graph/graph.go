// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graph holds a computation graph of ops: it owns the tensors flowing between them, runs the
// ops' type checks and shape inference when they are added, and creates their gradients.
//
// Nodes are added in topological order (a node's inputs must already exist in the graph), so the
// order of Graph.Nodes is a valid execution order.
//
// Graph building functions that return errors have a Must* counterpart that panics instead, to be
// used with exceptions.TryCatch, following the convention of the rest of the library.
package graph

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/collectives/pkg/core/ops"
	"github.com/gomlx/collectives/pkg/core/session"
	"github.com/gomlx/collectives/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TensorID is the unique id of a tensor within a Graph.
type TensorID int

// NodeID is the unique id of a node within a Graph.
type NodeID int

// Tensor is a value flowing in the graph: either a graph input (parameter) or an output of a Node.
type Tensor struct {
	graph    *Graph
	id       TensorID
	name     string
	info     shapes.TensorInfo
	producer *Node
	outIndex int
}

// ID is the unique id of the tensor within its graph.
func (t *Tensor) ID() TensorID { return t.id }

// Name of the tensor. Parameters are named on creation, node outputs are named "<node name>:<output index>".
func (t *Tensor) Name() string { return t.name }

// Info returns the static information of the tensor.
func (t *Tensor) Info() shapes.TensorInfo { return t.info }

// Producer returns the node that outputs this tensor and the output index, or nil for graph inputs.
func (t *Tensor) Producer() (node *Node, outIndex int) { return t.producer, t.outIndex }

// IsParameter returns whether the tensor is a graph input.
func (t *Tensor) IsParameter() bool { return t.producer == nil }

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	if t == nil {
		return "Tensor(nil)"
	}
	return fmt.Sprintf("%q %s", t.name, t.info)
}

// Node is an op instance in the graph, with its connected inputs and its outputs.
type Node struct {
	graph   *Graph
	id      NodeID
	op      ops.Op
	inputs  []*Tensor
	outputs []*Tensor
}

// ID is the unique id of the node within its graph.
func (n *Node) ID() NodeID { return n.id }

// Op returns the op of the node.
func (n *Node) Op() ops.Op { return n.op }

// NumInputs returns the number of input slots, including unconnected (nil) ones.
func (n *Node) NumInputs() int { return len(n.inputs) }

// Input returns the tensor connected to the input index, or nil if it is not connected.
func (n *Node) Input(index int) *Tensor {
	if index < 0 || index >= len(n.inputs) {
		return nil
	}
	return n.inputs[index]
}

// Output returns the tensor of the output index.
func (n *Node) Output(index int) *Tensor {
	if index < 0 || index >= len(n.outputs) {
		exceptions.Panicf("node %q has %d outputs, requested output #%d", n.op.Name(), len(n.outputs), index)
	}
	return n.outputs[index]
}

// Outputs returns the output tensors of the node.
func (n *Node) Outputs() []*Tensor { return n.outputs }

// HasInput implements ops.Inputs.
func (n *Node) HasInput(index int) bool { return n.Input(index) != nil }

// InInfo implements ops.Inputs.
func (n *Node) InInfo(index int) shapes.TensorInfo {
	t := n.Input(index)
	if t == nil {
		return shapes.TensorInfo{}
	}
	return t.info
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	var parts []string
	for _, t := range n.inputs {
		if t == nil {
			parts = append(parts, "_")
			continue
		}
		parts = append(parts, fmt.Sprintf("#%d", t.id))
	}
	return fmt.Sprintf("%s(%s)", ops.String(n.op), strings.Join(parts, ", "))
}

var _ ops.Inputs = (*Node)(nil)

// Graph is a computation graph of ops, created for a session.
type Graph struct {
	name     string
	session  *session.Options
	registry *ops.Registry

	tensors    []*Tensor
	nodes      []*Node
	parameters []*Tensor
}

// New creates an empty graph for the given session options. If sess is nil, the default session (a single
// replica) is used.
func New(name string, sess *session.Options) *Graph {
	if sess == nil {
		sess = &session.Options{NumReplicas: 1}
	}
	return &Graph{name: name, session: sess, registry: ops.DefaultRegistry()}
}

// WithRegistry sets the registry used to type check ops and to create them by identifier.
// It returns the graph itself, for chaining.
func (g *Graph) WithRegistry(registry *ops.Registry) *Graph {
	g.registry = registry
	return g
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// Session returns the session options the graph was created for.
func (g *Graph) Session() *session.Options { return g.session }

// Registry used by the graph.
func (g *Graph) Registry() *ops.Registry { return g.registry }

// NumReplicas is the global replication factor of the graph's session.
func (g *Graph) NumReplicas() int { return g.session.GlobalReplicationFactor() }

// Nodes returns the nodes of the graph, in topological order.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Parameters returns the graph inputs, in the order they were created.
func (g *Graph) Parameters() []*Tensor { return g.parameters }

// NumTensors returns the number of tensors in the graph. Tensor ids range from 0 to NumTensors()-1.
func (g *Graph) NumTensors() int { return len(g.tensors) }

// Tensor returns the tensor with the given id.
func (g *Graph) Tensor(id TensorID) *Tensor {
	if int(id) < 0 || int(id) >= len(g.tensors) {
		exceptions.Panicf("graph %q has no tensor #%d", g.name, id)
	}
	return g.tensors[id]
}

func (g *Graph) newTensor(name string, info shapes.TensorInfo) *Tensor {
	t := &Tensor{graph: g, id: TensorID(len(g.tensors)), name: name, info: info}
	g.tensors = append(g.tensors, t)
	return t
}

// Parameter creates a new graph input with the given static information.
func (g *Graph) Parameter(name string, info shapes.TensorInfo) *Tensor {
	t := g.newTensor(name, info.Clone())
	g.parameters = append(g.parameters, t)
	return t
}

// AddOp adds op to the graph, connected to the given inputs. A nil input leaves the slot unconnected
// (for optional inputs).
//
// If the op is registered, its inputs are checked against its Definition. Then the op's shape inference
// (ops.Op.Setup) is run, and its output tensors are created.
// Collective ops must be grouped over the graph's global replication factor.
// Errors are reported as *ops.InvalidGraphError.
func (g *Graph) AddOp(op ops.Op, inputs ...*Tensor) (*Node, error) {
	if op == nil {
		return nil, errors.Errorf("graph %q: AddOp(nil)", g.name)
	}
	for ii, t := range inputs {
		if t != nil && t.graph != g {
			return nil, ops.AsInvalidGraph(op.Name(), errors.Errorf(
				"input #%d (%s) belongs to a different graph", ii, t))
		}
	}
	if collective, ok := op.(ops.CollectiveOp); ok {
		if numReplicas := g.NumReplicas(); collective.ReplicaGrouping().NumReplicas() != numReplicas {
			return nil, ops.AsInvalidGraph(op.Name(), errors.Errorf(
				"%s doesn't match the global replication factor %d of graph %q",
				collective.ReplicaGrouping(), numReplicas, g.name))
		}
	}
	node := &Node{graph: g, id: NodeID(len(g.nodes)), op: op, inputs: inputs}
	numConnected := 0
	for ii, t := range inputs {
		if t != nil {
			numConnected = ii + 1
		}
	}
	if g.registry != nil {
		if def, found := g.registry.Definition(op.Identifier()); found {
			if err := def.CheckInputs(op.Name(), node, numConnected); err != nil {
				return nil, err
			}
		}
	}
	if err := op.Setup(node); err != nil {
		return nil, ops.AsInvalidGraph(op.Name(), err)
	}
	node.outputs = make([]*Tensor, op.NumOutputs())
	for ii := range node.outputs {
		t := g.newTensor(fmt.Sprintf("%s:%d", op.Name(), ii), op.OutInfo(ii).Clone())
		t.producer = node
		t.outIndex = ii
		node.outputs[ii] = t
	}
	g.nodes = append(g.nodes, node)
	klog.V(2).Infof("graph %q: added %s", g.name, node)
	return node, nil
}

// MustAddOp is like AddOp, but panics on error.
func (g *Graph) MustAddOp(op ops.Op, inputs ...*Tensor) *Node {
	node, err := g.AddOp(op, inputs...)
	if err != nil {
		panic(err)
	}
	return node
}

// AddOpByID creates the op with the given identifier and attributes using the graph's registry, and adds it
// to the graph.
func (g *Graph) AddOpByID(id ops.Identifier, attrs map[string]any, settings ops.Settings, inputs ...*Tensor) (*Node, error) {
	if g.registry == nil {
		return nil, errors.Errorf("graph %q has no registry to create op %s", g.name, id)
	}
	op, err := g.registry.Create(id, attrs, settings, g.session)
	if err != nil {
		return nil, err
	}
	return g.AddOp(op, inputs...)
}

// Build calls fn, which is expected to use the Must* graph building functions, and returns any panic
// raised as an error.
func (g *Graph) Build(fn func()) error {
	return exceptions.TryCatch[error](fn)
}

// Clone returns a deep copy of the graph: every op is cloned, and tensors and nodes keep their ids.
func (g *Graph) Clone() *Graph {
	g2 := &Graph{name: g.name, session: g.session, registry: g.registry}
	g2.tensors = make([]*Tensor, len(g.tensors))
	for ii, t := range g.tensors {
		g2.tensors[ii] = &Tensor{graph: g2, id: t.id, name: t.name, info: t.info.Clone(), outIndex: t.outIndex}
	}
	for _, t := range g.parameters {
		g2.parameters = append(g2.parameters, g2.tensors[t.id])
	}
	g2.nodes = make([]*Node, len(g.nodes))
	for ii, n := range g.nodes {
		n2 := &Node{graph: g2, id: n.id, op: n.op.Clone()}
		n2.inputs = make([]*Tensor, len(n.inputs))
		for jj, t := range n.inputs {
			if t != nil {
				n2.inputs[jj] = g2.tensors[t.id]
			}
		}
		n2.outputs = make([]*Tensor, len(n.outputs))
		for jj, t := range n.outputs {
			t2 := g2.tensors[t.id]
			t2.producer = n2
			n2.outputs[jj] = t2
		}
		g2.nodes[ii] = n2
	}
	return g2
}

// Memory returns the total memory used by the graph's tensors, in bytes, counting each replica once.
func (g *Graph) Memory() uintptr {
	var total uintptr
	for _, t := range g.tensors {
		if t.info.Ok() {
			total += t.info.Memory()
		}
	}
	return total
}

// String implements fmt.Stringer, listing the graph parameters and nodes.
func (g *Graph) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "Graph %q (replicas=%d, %d nodes, %s):\n",
		g.name, g.NumReplicas(), len(g.nodes), humanize.Bytes(uint64(g.Memory())))
	for _, t := range g.parameters {
		_, _ = fmt.Fprintf(&sb, "\t#%d: Parameter %s\n", t.id, t)
	}
	for _, n := range g.nodes {
		var outIDs []string
		for _, t := range n.outputs {
			outIDs = append(outIDs, fmt.Sprintf("#%d", t.id))
		}
		_, _ = fmt.Fprintf(&sb, "\t%s = %s\n", strings.Join(outIDs, ", "), n)
	}
	return sb.String()
}
