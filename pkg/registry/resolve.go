package registry

import (
	"context"

	"github.com/arthur-debert/agentpack/pkg/errors"
	"github.com/arthur-debert/agentpack/pkg/types"
)

// frame is one node on the explicit traversal stack.
type frame struct {
	name string
	deps []string
	next int
}

// ResolveDependencies computes the dependency closure of a loaded pack as
// three disjoint sets: Resolved (dependency-first, deduplicated), Missing
// (declared but found in no source) and Circular (revisited while still on
// the active traversal path).
//
// The traversal is an iterative depth-first walk over an explicit stack so
// deep chains cannot exhaust the goroutine stack. The on-path set detects
// true cycles; the resolved set deduplicates diamonds.
func (r *Registry) ResolveDependencies(ctx context.Context, pack *types.PackStructure) (*types.ResolutionResult, error) {
	if pack == nil || pack.Manifest == nil {
		return nil, errors.New(errors.ErrInvalidInput, "cannot resolve dependencies of a nil pack")
	}

	result := &types.ResolutionResult{
		Resolved: []string{},
		Missing:  []string{},
		Circular: []string{},
	}

	root := pack.Manifest.Name
	onPath := map[string]bool{root: true}
	resolvedSet := make(map[string]bool)
	missingSet := make(map[string]bool)
	circularSet := make(map[string]bool)

	stack := []*frame{{name: root, deps: pack.Manifest.Dependencies}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if top.next < len(top.deps) {
			dep := top.deps[top.next]
			top.next++

			if onPath[dep] {
				if !circularSet[dep] {
					circularSet[dep] = true
					result.Circular = append(result.Circular, dep)
				}
				continue
			}
			if resolvedSet[dep] || missingSet[dep] {
				continue
			}

			depPack, _, err := r.LoadPack(ctx, dep, "")
			if err != nil {
				if errors.IsErrorCode(err, errors.ErrNotFound) {
					missingSet[dep] = true
					result.Missing = append(result.Missing, dep)
					continue
				}
				return nil, err
			}

			onPath[dep] = true
			stack = append(stack, &frame{name: dep, deps: depPack.Manifest.Dependencies})
			continue
		}

		// All of this node's dependencies are handled: it is fully
		// resolved and leaves the active path.
		stack = stack[:len(stack)-1]
		delete(onPath, top.name)
		if top.name != root && !resolvedSet[top.name] {
			resolvedSet[top.name] = true
			result.Resolved = append(result.Resolved, top.name)
		}
	}

	r.logger.Debug().
		Str("pack", root).
		Int("resolved", len(result.Resolved)).
		Int("missing", len(result.Missing)).
		Int("circular", len(result.Circular)).
		Msg("Dependency resolution completed")

	return result, nil
}
