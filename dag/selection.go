package dag

import (
	"strings"

	"github.com/kbukum/flowkit/errors"
)

// A selection query names a top-level step with optional traversal
// operators. A leading "*" adds every ancestor and each leading "+" one
// upstream hop; a trailing "*" adds every descendant and each trailing
// "+" one downstream hop. "*load+" selects load, all of its ancestors and
// its direct consumers.
type selectionQuery struct {
	name string
	up   int // -1 is unbounded
	down int
}

func parseSelection(q string) (selectionQuery, error) {
	body := strings.TrimSpace(q)
	up, body := traversal(body, strings.HasPrefix, strings.TrimPrefix)
	down, body := traversal(body, strings.HasSuffix, strings.TrimSuffix)
	if body == "" || strings.ContainsAny(body, "*+") {
		return selectionQuery{}, errors.Schema("selection: malformed query %q", q).WithDetail("query", q)
	}
	return selectionQuery{name: body, up: up, down: down}, nil
}

func traversal(s string, has func(string, string) bool, trim func(string, string) string) (int, string) {
	if has(s, "*") {
		return -1, trim(s, "*")
	}
	n := 0
	for has(s, "+") {
		s = trim(s, "+")
		n++
	}
	return n, s
}

// selectSteps resolves queries against t and returns the selected node names.
func (t *topology) selectSteps(queries []string) (map[string]bool, error) {
	selected := make(map[string]bool)
	for _, q := range queries {
		sq, err := parseSelection(q)
		if err != nil {
			return nil, err
		}
		i, ok := t.lookup(sq.name)
		if !ok {
			return nil, errors.Schema("selection: unknown task %q", sq.name).WithDetail("step", sq.name)
		}
		selected[sq.name] = true
		t.walk(i, sq.up, t.upstream, selected)
		t.walk(i, sq.down, t.downstream, selected)
	}
	return selected, nil
}

// walk adds the nodes reachable from start along next within depth hops.
func (t *topology) walk(start, depth int, next [][]int, into map[string]bool) {
	frontier := []int{start}
	seen := map[int]bool{start: true}
	for hop := 0; len(frontier) > 0 && (depth < 0 || hop < depth); hop++ {
		var following []int
		for _, n := range frontier {
			for _, m := range next[n] {
				if !seen[m] {
					seen[m] = true
					into[t.names[m]] = true
					following = append(following, m)
				}
			}
		}
		frontier = following
	}
}
