// Package flow holds the compiled, immutable dependency graph a scenario
// elaborates into: Step and Dependency value types, and the ProcessFlow
// that owns them and answers adjacency/reachability queries.
//
// A ProcessFlow is a directed acyclic graph over steps and groups. Every
// name referenced by a requires edge must resolve to a known node;
// unresolved references and cycles are rejected by Build, not discovered
// later at run time. A step belongs to at most one direct group, so groups
// form a forest over the step set.
package flow

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Dependency names the other endpoint of an edge relative to whichever
// accessor returned it (Prerequisites or Dependents), and whether that
// edge is soft.
type Dependency struct {
	Step string
	Soft bool
}

// Step is one atomic or composite node of the flow. Atomic steps (Command
// non-empty semantically — IsGroup false) run a shell command; composite
// steps (IsGroup true) have no command of their own and derive their
// status from Members.
type Step struct {
	Name     string
	Command  string
	Env      map[string]string
	Cwd      string
	If       string
	Unless   string
	Delay    time.Duration
	Group    string
	IsGroup  bool
	Members  []string
	Requires []Dependency

	seq int
}

// Seq is the step's declaration order within its compiled scenario, used
// to break ties when multiple steps become dispatchable simultaneously.
func (s *Step) Seq() int { return s.seq }

// ProcessFlow is the compiler's output: an immutable DAG of Steps. All
// query methods are pure.
type ProcessFlow struct {
	scenarioName string
	logDir       string
	steps        map[string]*Step
	declOrder    []string
	dependents   map[string][]Dependency
	topoOrder    []string
}

// ScenarioName returns the name the owning scenario declared.
func (f *ProcessFlow) ScenarioName() string { return f.scenarioName }

// LogDir returns the resolved log directory for this flow's run.
func (f *ProcessFlow) LogDir() string { return f.logDir }

// Step looks up a node by name.
func (f *ProcessFlow) Step(name string) (*Step, bool) {
	s, ok := f.steps[name]
	return s, ok
}

// Steps returns every node in declaration order.
func (f *ProcessFlow) Steps() []*Step {
	out := make([]*Step, 0, len(f.declOrder))
	for _, name := range f.declOrder {
		out = append(out, f.steps[name])
	}
	return out
}

// TopoOrder returns every node name in a topological order stable by
// declaration order, as computed at Build time.
func (f *ProcessFlow) TopoOrder() []string {
	out := make([]string, len(f.topoOrder))
	copy(out, f.topoOrder)
	return out
}

// Roots returns every step with no incoming prerequisite edges.
func (f *ProcessFlow) Roots() []*Step {
	var out []*Step
	for _, name := range f.declOrder {
		if len(f.steps[name].Requires) == 0 {
			out = append(out, f.steps[name])
		}
	}
	return out
}

// Leaves returns every step nothing else depends on.
func (f *ProcessFlow) Leaves() []*Step {
	var out []*Step
	for _, name := range f.declOrder {
		if len(f.dependents[name]) == 0 {
			out = append(out, f.steps[name])
		}
	}
	return out
}

// Prerequisites returns the direct prerequisites of name.
func (f *ProcessFlow) Prerequisites(name string) []Dependency {
	s, ok := f.steps[name]
	if !ok {
		return nil
	}
	return s.Requires
}

// Dependents returns the nodes that directly require name.
func (f *ProcessFlow) Dependents(name string) []Dependency {
	return f.dependents[name]
}

// Subgraph returns the set of step names selected for a range run: steps
// downstream of at least one name matching a pattern in fromPatterns
// (inclusive), intersected with steps upstream of at least one name
// matching toPatterns (inclusive). An empty fromPatterns means "start from
// the roots"; an empty toPatterns means "extend to the leaves". Patterns
// are glob-style (path.Match) over step names.
func (f *ProcessFlow) Subgraph(fromPatterns, toPatterns []string) (map[string]bool, error) {
	fromSeeds, err := f.matchNames(fromPatterns, f.Roots())
	if err != nil {
		return nil, err
	}
	toSeeds, err := f.matchNames(toPatterns, f.Leaves())
	if err != nil {
		return nil, err
	}

	downstream := f.reachable(fromSeeds, f.dependents)
	upstream := f.reachable(toSeeds, f.prereqMap())

	active := map[string]bool{}
	for name := range downstream {
		if upstream[name] {
			active[name] = true
		}
	}
	return active, nil
}

func (f *ProcessFlow) prereqMap() map[string][]Dependency {
	m := make(map[string][]Dependency, len(f.steps))
	for name, s := range f.steps {
		m[name] = s.Requires
	}
	return m
}

func (f *ProcessFlow) matchNames(patterns []string, fallback []*Step) (map[string]bool, error) {
	seeds := map[string]bool{}
	if len(patterns) == 0 {
		for _, s := range fallback {
			seeds[s.Name] = true
		}
		return seeds, nil
	}
	for _, pattern := range patterns {
		matched := false
		for _, name := range f.declOrder {
			ok, err := path.Match(pattern, name)
			if err != nil {
				return nil, errors.Wrapf(err, "flow: invalid pattern %q", pattern)
			}
			if ok {
				seeds[name] = true
				matched = true
			}
		}
		if !matched {
			return nil, fmt.Errorf("flow: pattern %q matched no step", pattern)
		}
	}
	return seeds, nil
}

// reachable walks edges forward from seeds using adj (a name -> edges-out
// map), following Dependency.Step, and returns every name reached
// (inclusive of the seeds themselves).
func (f *ProcessFlow) reachable(seeds map[string]bool, adj map[string][]Dependency) map[string]bool {
	visited := map[string]bool{}
	var stack []string
	for name := range seeds {
		visited[name] = true
		stack = append(stack, name)
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range adj[cur] {
			if !visited[dep.Step] {
				visited[dep.Step] = true
				stack = append(stack, dep.Step)
			}
		}
	}
	return visited
}

// Builder assembles a ProcessFlow incrementally: the compiler adds every
// instantiated step and group, then every requires edge (already expanded
// with group-inheritance and import-namespacing), then calls Build.
type Builder struct {
	scenarioName string
	logDir       string
	steps        map[string]*Step
	declOrder    []string
}

// NewBuilder starts an empty flow for the named scenario.
func NewBuilder(scenarioName, logDir string) *Builder {
	return &Builder{
		scenarioName: scenarioName,
		logDir:       logDir,
		steps:        map[string]*Step{},
	}
}

// AddStep registers s under its Name. s.Requires is filled in later via
// AddEdge; the Step passed here should have Requires unset or nil.
func (b *Builder) AddStep(s *Step) error {
	if s.Name == "" {
		return errors.New("flow: step has no name")
	}
	if _, exists := b.steps[s.Name]; exists {
		return fmt.Errorf("flow: duplicate step name %q", s.Name)
	}
	s.seq = len(b.declOrder)
	b.steps[s.Name] = s
	b.declOrder = append(b.declOrder, s.Name)
	return nil
}

// AddEdge records that from requires to, optionally as a soft dependency.
func (b *Builder) AddEdge(from, to string, soft bool) error {
	s, ok := b.steps[from]
	if !ok {
		return fmt.Errorf("flow: requires edge from unknown step %q", from)
	}
	if _, ok := b.steps[to]; !ok {
		return fmt.Errorf("flow: step %q requires unknown step or group %q", from, to)
	}
	for _, dep := range s.Requires {
		if dep.Step == to {
			return nil
		}
	}
	s.Requires = append(s.Requires, Dependency{Step: to, Soft: soft})
	return nil
}

// Build finalizes the flow: it computes the reverse adjacency, topo-sorts
// the graph, and rejects cycles with a reconstructed counterexample.
func (b *Builder) Build() (*ProcessFlow, error) {
	f := &ProcessFlow{
		scenarioName: b.scenarioName,
		logDir:       b.logDir,
		steps:        b.steps,
		declOrder:    append([]string(nil), b.declOrder...),
		dependents:   map[string][]Dependency{},
	}
	for _, name := range f.declOrder {
		for _, dep := range f.steps[name].Requires {
			f.dependents[dep.Step] = append(f.dependents[dep.Step], Dependency{Step: name, Soft: dep.Soft})
		}
	}

	topo, cycle := f.topologicalSort()
	if cycle != nil {
		return nil, fmt.Errorf("flow: dependency cycle detected: %s", strings.Join(cycle, " -> "))
	}
	f.topoOrder = topo
	return f, nil
}

// topologicalSort runs Kahn's algorithm, breaking ties by declaration
// order. If any node is left unvisited when no further progress is
// possible, it reconstructs one concrete cycle via DFS over the residual
// subgraph.
func (f *ProcessFlow) topologicalSort() ([]string, []string) {
	indegree := make(map[string]int, len(f.declOrder))
	for _, name := range f.declOrder {
		indegree[name] = len(f.steps[name].Requires)
	}

	visited := map[string]bool{}
	var order []string

	for len(order) < len(f.declOrder) {
		progressed := false
		for _, name := range f.declOrder {
			if visited[name] || indegree[name] != 0 {
				continue
			}
			visited[name] = true
			order = append(order, name)
			progressed = true
			for _, dep := range f.dependents[name] {
				indegree[dep.Step]--
			}
		}
		if !progressed {
			break
		}
	}

	if len(order) == len(f.declOrder) {
		return order, nil
	}

	var residual []string
	for _, name := range f.declOrder {
		if !visited[name] {
			residual = append(residual, name)
		}
	}
	sort.Strings(residual)
	return order, f.reconstructCycle(residual, visited)
}

// reconstructCycle walks prerequisite edges among the still-unvisited
// nodes until it revisits a node already on the current path, then
// returns that path as the cycle.
func (f *ProcessFlow) reconstructCycle(residual []string, visited map[string]bool) []string {
	onStack := map[string]bool{}
	var path []string

	var walk func(name string) []string
	walk = func(name string) []string {
		onStack[name] = true
		path = append(path, name)
		for _, dep := range f.steps[name].Requires {
			if visited[dep.Step] {
				continue
			}
			if onStack[dep.Step] {
				idx := indexOf(path, dep.Step)
				return append(append([]string(nil), path[idx:]...), dep.Step)
			}
			if cyc := walk(dep.Step); cyc != nil {
				return cyc
			}
		}
		onStack[name] = false
		path = path[:len(path)-1]
		return nil
	}

	for _, name := range residual {
		if cyc := walk(name); cyc != nil {
			return cyc
		}
	}
	return residual
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
