package lint

import (
	"sort"

	"github.com/strandworks/strand/pkg/strand/spec"
)

// adjacency is an arena-indexed view of the edge graph. Node names are
// interned into dense indices once so the traversals below work on int
// slices instead of string maps; START and END get the two trailing
// indices.
type adjacency struct {
	names   []string       // index -> name (sorted declared nodes)
	index   map[string]int // name -> index
	start   int
	end     int
	forward [][]int
	reverse [][]int
}

// buildAdjacency interns node names and expands every edge form (plain,
// listed, conditional) plus router route maps into forward and reverse
// adjacency lists. Unknown endpoints are skipped here; endpoint validation
// reports them separately.
func buildAdjacency(g *spec.GraphSpec) *adjacency {
	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	a := &adjacency{
		names: names,
		index: make(map[string]int, len(names)+2),
	}
	for i, name := range names {
		a.index[name] = i
	}
	a.start = len(names)
	a.end = len(names) + 1
	a.index[spec.Start] = a.start
	a.index[spec.End] = a.end

	total := len(names) + 2
	a.forward = make([][]int, total)
	a.reverse = make([][]int, total)

	addEdge := func(from, to string) {
		fi, ok := a.index[from]
		if !ok {
			return
		}
		ti, ok := a.index[to]
		if !ok {
			return
		}
		a.forward[fi] = append(a.forward[fi], ti)
		a.reverse[ti] = append(a.reverse[ti], fi)
	}

	for _, edge := range g.Edges {
		for _, target := range edge.To.Names {
			addEdge(edge.From, target)
		}
	}

	// Router nodes transition through their route map rather than edges.
	for name, node := range g.Nodes {
		if node.Type != spec.TypeRouter {
			continue
		}
		for _, target := range sortedValues(node.Routes) {
			addEdge(name, target)
		}
		if node.DefaultRoute != "" {
			addEdge(name, node.DefaultRoute)
		}
	}

	// Fallback targets are reachable on the error path.
	for name, node := range g.Nodes {
		if node.OnError == "fallback" && node.FallbackTo != "" {
			addEdge(name, node.FallbackTo)
		}
	}

	return a
}

// reachableFrom runs BFS over the chosen direction and returns the
// visited set.
func (a *adjacency) reachableFrom(root int, lists [][]int) []bool {
	seen := make([]bool, len(lists))
	seen[root] = true
	queue := []int{root}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range lists[current] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

// cycleNodes returns the indices of every node lying on a cycle: members
// of a strongly connected component with more than one node, plus nodes
// with a self-edge. Uses an iterative Tarjan so deep graphs cannot blow
// the goroutine stack.
func (a *adjacency) cycleNodes() []int {
	n := len(a.forward)
	const unvisited = -1

	indexOf := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	for i := range indexOf {
		indexOf[i] = unvisited
	}

	var (
		counter int
		stack   []int
		result  []int
	)

	type frame struct {
		node int
		next int // next neighbor offset to visit
	}

	for root := 0; root < n; root++ {
		if indexOf[root] != unvisited {
			continue
		}

		frames := []frame{{node: root}}
		indexOf[root] = counter
		lowlink[root] = counter
		counter++
		stack = append(stack, root)
		onStack[root] = true

		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			v := f.node

			if f.next < len(a.forward[v]) {
				w := a.forward[v][f.next]
				f.next++
				if indexOf[w] == unvisited {
					indexOf[w] = counter
					lowlink[w] = counter
					counter++
					stack = append(stack, w)
					onStack[w] = true
					frames = append(frames, frame{node: w})
				} else if onStack[w] {
					if indexOf[w] < lowlink[v] {
						lowlink[v] = indexOf[w]
					}
				}
				continue
			}

			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := frames[len(frames)-1].node
				if lowlink[v] < lowlink[parent] {
					lowlink[parent] = lowlink[v]
				}
			}

			if lowlink[v] == indexOf[v] {
				// Pop one component.
				var component []int
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					component = append(component, w)
					if w == v {
						break
					}
				}
				if len(component) > 1 {
					result = append(result, component...)
				} else if hasSelfEdge(a.forward, component[0]) {
					result = append(result, component[0])
				}
			}
		}
	}

	sort.Ints(result)
	return result
}

func hasSelfEdge(lists [][]int, v int) bool {
	for _, w := range lists[v] {
		if w == v {
			return true
		}
	}
	return false
}

// sortedValues returns map values ordered by key for deterministic
// traversal.
func sortedValues(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(m))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}
