package dag

import "fmt"

// Port is a named, typed input or output of a definition.
type Port struct {
	Name        string
	Type        Type
	Optional    bool
	Description string
}

// In declares a required input of type T.
func In[T any](name string) Port {
	return Port{Name: name, Type: TypeOf[T]()}
}

// OptionalIn declares an input of type T that may be left unbound.
func OptionalIn[T any](name string) Port {
	return Port{Name: name, Type: TypeOf[T](), Optional: true}
}

// Out declares an output of type T that every successful run must produce.
func Out[T any](name string) Port {
	return Port{Name: name, Type: TypeOf[T]()}
}

// OptionalOut declares an output of type T that a run may omit.
func OptionalOut[T any](name string) Port {
	return Port{Name: name, Type: TypeOf[T](), Optional: true}
}

// PortRef addresses a port of a node in a graph.
type PortRef struct {
	Node string
	Port string
}

// String returns "node.port".
func (r PortRef) String() string {
	return fmt.Sprintf("%s.%s", r.Node, r.Port)
}

// Edge binds a producer output to a consumer input.
type Edge struct {
	From PortRef
	To   PortRef
}

// Connect builds the edge fromNode.output -> toNode.input.
func Connect(fromNode, output, toNode, input string) Edge {
	return Edge{
		From: PortRef{Node: fromNode, Port: output},
		To:   PortRef{Node: toNode, Port: input},
	}
}

func findPort(ports []Port, name string) (Port, bool) {
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

func copyPorts(ports []Port) []Port {
	return append([]Port(nil), ports...)
}
