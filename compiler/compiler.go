// Package compiler elaborates a parsed scenario document into an immutable
// flow.ProcessFlow: it substitutes ${name} parameters, expands imports
// (recursively, with namespacing), instantiates steps and groups, wires
// requires edges, and resolves the run's log directory. Compilation fails
// fast — a non-nil error means no ProcessFlow was produced.
package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mensylisir/stc/flow"
	"github.com/mensylisir/stc/scenario"
)

// EnvLookup resolves an environment variable by name, the same shape as
// os.LookupEnv. Tests substitute a fake to make parameter-substitution
// cases deterministic.
type EnvLookup func(name string) (string, bool)

// Options configures a single compile.
type Options struct {
	// LogRoot is the directory under which the per-scenario log directory
	// is resolved. Defaults to "./.stc-logs" in the current directory.
	LogRoot string
	// Env resolves environment overlays for <parameters>. Defaults to
	// os.LookupEnv.
	Env EnvLookup
}

const maxSubstitutionPasses = 20

var paramRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_.]*)\}`)

// Compile elaborates doc (and everything it imports) into a ProcessFlow.
func Compile(doc *scenario.Document, opts Options) (*flow.ProcessFlow, error) {
	if opts.Env == nil {
		opts.Env = os.LookupEnv
	}
	if opts.LogRoot == "" {
		opts.LogRoot = filepath.Join(".", ".stc-logs")
	}
	if doc.Name == "" {
		return nil, errors.New("compiler: scenario has no name")
	}

	logDir := filepath.Join(opts.LogRoot, doc.Name)
	builder := flow.NewBuilder(doc.Name, logDir)
	docCache := map[string]*scenario.Document{}
	var edges []pendingEdge

	visiting := map[string]bool{docKey(doc): true}
	if err := compileDocument(doc, "", opts.Env, builder, &edges, docCache, visiting); err != nil {
		return nil, errors.Wrapf(err, "compiler: compiling %s", doc.Name)
	}

	for _, e := range edges {
		if err := builder.AddEdge(e.from, e.to, e.soft); err != nil {
			return nil, errors.Wrap(err, "compiler: wiring dependencies")
		}
	}

	f, err := builder.Build()
	if err != nil {
		return nil, errors.Wrap(err, "compiler: building process flow")
	}
	return f, nil
}

type pendingEdge struct {
	from, to string
	soft     bool
}

func docKey(doc *scenario.Document) string {
	if doc.Path != "" {
		return doc.Path
	}
	return doc.Name
}

// compileDocument instantiates every step and group in doc under namespace,
// recurses into doc's imports, and appends every requires edge it
// discovers (its own steps' requires, group-inherited requires, import
// dependency overrides, and top-level post-hoc dependencies) to edges.
func compileDocument(doc *scenario.Document, namespace string, env EnvLookup, builder *flow.Builder, edges *[]pendingEdge, docCache map[string]*scenario.Document, visiting map[string]bool) error {
	params, err := paramMap(doc.Parameters, env)
	if err != nil {
		return err
	}
	sub := func(s string) (string, error) { return substitute(s, params) }

	for _, se := range doc.Steps {
		if err := instantiateStep(se, namespace, "", sub, builder, edges); err != nil {
			return err
		}
	}
	for _, ge := range doc.Groups {
		if err := instantiateGroup(ge, namespace, sub, builder, edges); err != nil {
			return err
		}
	}

	for _, imp := range doc.Imports {
		if err := compileImport(imp, doc, namespace, sub, env, builder, edges, docCache, visiting); err != nil {
			return err
		}
	}

	for _, dep := range doc.Dependencies {
		if err := addDependencyElement(dep, namespace, sub, edges); err != nil {
			return err
		}
	}
	return nil
}

func compileImport(imp scenario.Import, parent *scenario.Document, namespace string, sub func(string) (string, error), env EnvLookup, builder *flow.Builder, edges *[]pendingEdge, docCache map[string]*scenario.Document, visiting map[string]bool) error {
	file, err := sub(imp.File)
	if err != nil {
		return err
	}
	ns, err := sub(imp.Namespace)
	if err != nil {
		return err
	}

	absPath := file
	if !filepath.IsAbs(absPath) {
		absPath = filepath.Join(filepath.Dir(parent.Path), file)
	}
	absPath, absErr := filepath.Abs(absPath)
	if absErr == nil {
		file = absPath
	}

	if visiting[file] {
		return fmt.Errorf("compiler: import cycle detected at %s", file)
	}

	childDoc, ok := docCache[file]
	if !ok {
		childDoc, err = scenario.Load(file)
		if err != nil {
			return errors.Wrapf(err, "compiler: loading import %s", file)
		}
		docCache[file] = childDoc
	}

	childNamespace := qualify(namespace, ns)

	childVisiting := make(map[string]bool, len(visiting)+1)
	for k := range visiting {
		childVisiting[k] = true
	}
	childVisiting[file] = true

	if err := compileDocument(childDoc, childNamespace, env, builder, edges, docCache, childVisiting); err != nil {
		return err
	}

	for _, dep := range imp.Dependencies {
		if err := addDependencyElement(dep, childNamespace, sub, edges); err != nil {
			return err
		}
	}
	return nil
}

func instantiateStep(se scenario.StepElement, namespace, groupName string, sub func(string) (string, error), builder *flow.Builder, edges *[]pendingEdge) error {
	name, err := sub(se.Name)
	if err != nil {
		return err
	}
	exec, err := sub(se.Exec)
	if err != nil {
		return err
	}
	cwd, err := sub(se.Cwd)
	if err != nil {
		return err
	}
	envAttr, err := sub(se.Env)
	if err != nil {
		return err
	}
	ifPred, err := sub(se.If)
	if err != nil {
		return err
	}
	unlessPred, err := sub(se.Unless)
	if err != nil {
		return err
	}
	delayAttr, err := sub(se.Delay)
	if err != nil {
		return err
	}
	requiresAttr, err := sub(se.Requires)
	if err != nil {
		return err
	}

	delay, err := parseDelay(delayAttr)
	if err != nil {
		return errors.Wrapf(err, "step %q has invalid delay", name)
	}

	qualifiedName := qualify(namespace, name)
	group := ""
	if groupName != "" {
		group = qualify(namespace, groupName)
	}
	step := &flow.Step{
		Name:    qualifiedName,
		Command: exec,
		Env:     parseEnvAttr(envAttr),
		Cwd:     cwd,
		If:      ifPred,
		Unless:  unlessPred,
		Delay:   delay,
		Group:   group,
	}
	if err := builder.AddStep(step); err != nil {
		return err
	}

	for _, ref := range parseRequires(requiresAttr) {
		*edges = append(*edges, pendingEdge{from: qualifiedName, to: qualify(namespace, ref.name), soft: ref.soft})
	}
	return nil
}

func instantiateGroup(ge scenario.GroupElement, namespace string, sub func(string) (string, error), builder *flow.Builder, edges *[]pendingEdge) error {
	name, err := sub(ge.Name)
	if err != nil {
		return err
	}
	requiresAttr, err := sub(ge.Requires)
	if err != nil {
		return err
	}

	qualifiedName := qualify(namespace, name)
	members := make([]string, 0, len(ge.Steps)+len(ge.Groups))
	for _, se := range ge.Steps {
		memberName, err := sub(se.Name)
		if err != nil {
			return err
		}
		members = append(members, qualify(namespace, memberName))
	}
	for _, childGroup := range ge.Groups {
		memberName, err := sub(childGroup.Name)
		if err != nil {
			return err
		}
		members = append(members, qualify(namespace, memberName))
	}

	group := &flow.Step{
		Name:    qualifiedName,
		IsGroup: true,
		Members: members,
	}
	if err := builder.AddStep(group); err != nil {
		return err
	}

	groupRequires := parseRequires(requiresAttr)
	for _, ref := range groupRequires {
		*edges = append(*edges, pendingEdge{from: qualifiedName, to: qualify(namespace, ref.name), soft: ref.soft})
	}

	for _, se := range ge.Steps {
		if err := instantiateStep(se, namespace, name, sub, builder, edges); err != nil {
			return err
		}
		memberName, err := sub(se.Name)
		if err != nil {
			return err
		}
		for _, ref := range groupRequires {
			*edges = append(*edges, pendingEdge{from: qualify(namespace, memberName), to: qualify(namespace, ref.name), soft: ref.soft})
		}
	}
	for _, childGroup := range ge.Groups {
		if err := instantiateGroup(childGroup, namespace, sub, builder, edges); err != nil {
			return err
		}
		memberName, err := sub(childGroup.Name)
		if err != nil {
			return err
		}
		for _, ref := range groupRequires {
			*edges = append(*edges, pendingEdge{from: qualify(namespace, memberName), to: qualify(namespace, ref.name), soft: ref.soft})
		}
	}
	return nil
}

func addDependencyElement(dep scenario.DependencyElement, namespace string, sub func(string) (string, error), edges *[]pendingEdge) error {
	step, err := sub(dep.Step)
	if err != nil {
		return err
	}
	requiresAttr, err := sub(dep.Requires)
	if err != nil {
		return err
	}
	qualifiedStep := qualify(namespace, step)
	for _, ref := range parseRequires(requiresAttr) {
		*edges = append(*edges, pendingEdge{from: qualifiedStep, to: qualify(namespace, ref.name), soft: ref.soft})
	}
	return nil
}

// qualify combines a namespace with a name segment, either of which may be
// empty: qualify("", "a") == "a", qualify("ns", "") == "ns",
// qualify("ns", "a") == "ns.a".
func qualify(namespace, name string) string {
	if namespace == "" {
		return name
	}
	if name == "" {
		return namespace
	}
	return namespace + "." + name
}

type requiresRef struct {
	name string
	soft bool
}

func parseRequires(attr string) []requiresRef {
	attr = strings.TrimSpace(attr)
	if attr == "" {
		return nil
	}
	parts := strings.Split(attr, ",")
	refs := make([]requiresRef, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		soft := false
		if strings.HasPrefix(p, "!") {
			soft = true
			p = strings.TrimSpace(p[1:])
		}
		if p == "" {
			continue
		}
		refs = append(refs, requiresRef{name: p, soft: soft})
	}
	return refs
}

func parseEnvAttr(attr string) map[string]string {
	attr = strings.TrimSpace(attr)
	if attr == "" {
		return nil
	}
	out := map[string]string{}
	for _, pair := range strings.Split(attr, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[strings.TrimSpace(kv[0])] = kv[1]
	}
	return out
}

func parseDelay(attr string) (time.Duration, error) {
	attr = strings.TrimSpace(attr)
	if attr == "" {
		return 0, nil
	}
	seconds, err := strconv.ParseFloat(attr, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func paramMap(params []scenario.Param, env EnvLookup) (map[string]string, error) {
	out := make(map[string]string, len(params))
	for _, p := range params {
		out[p.Name] = p.Value
	}
	for name := range out {
		if v, ok := env(name); ok {
			out[name] = v
		}
	}
	return resolveParamValues(out)
}

// resolveParamValues substitutes ${other} references inside parameter
// default values themselves, against the same map, to a fixed point.
func resolveParamValues(params map[string]string) (map[string]string, error) {
	for pass := 0; pass < maxSubstitutionPasses; pass++ {
		changed := false
		for name, value := range params {
			if !paramRef.MatchString(value) {
				continue
			}
			next, err := substitute(value, params)
			if err != nil {
				return nil, err
			}
			if next != value {
				params[name] = next
				changed = true
			}
		}
		if !changed {
			return params, nil
		}
	}
	return nil, errors.New("compiler: parameter substitution did not converge (possible cycle)")
}

// substitute replaces every ${name} in s with its value from params,
// recursively, until a fixed point is reached. An unresolved name is a
// fatal error.
func substitute(s string, params map[string]string) (string, error) {
	for pass := 0; pass < maxSubstitutionPasses; pass++ {
		if !paramRef.MatchString(s) {
			return s, nil
		}
		var missing string
		next := paramRef.ReplaceAllStringFunc(s, func(match string) string {
			name := paramRef.FindStringSubmatch(match)[1]
			v, ok := params[name]
			if !ok {
				missing = name
				return match
			}
			return v
		})
		if missing != "" {
			return "", fmt.Errorf("compiler: undefined parameter %q", missing)
		}
		if next == s {
			return s, nil
		}
		s = next
	}
	return "", errors.New("compiler: parameter substitution did not converge (possible cycle)")
}
