package pathway

import (
	"fmt"
	"sort"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/traversal"
)

// ══════════════════════════════════════════════════════════════════════════════
// CURRICULUM GRAPH
// Авторская структура курса: узлы, сгруппированные по главам, и жёсткие
// пререквизитные рёбра между главами. Граф валидируется при построении:
// цикл или противоречивое ребро - ошибка, а не тихий неверный порядок.
// ══════════════════════════════════════════════════════════════════════════════

// Graph - валидированный учебный граф.
type Graph struct {
	nodes     []traversal.Node
	chapters  []string // порядок объявления глав
	byChapter map[string][]traversal.Node
	prereqs   map[string][]string // глава -> жёсткие пререквизиты
}

// NewGraph строит граф из узлов и валидирует пререквизитную структуру.
// Возвращает ошибку графа при цикле, самозависимости или ссылке
// на несуществующую главу.
func NewGraph(nodes []traversal.Node) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, shared.ErrEmptyGraph
	}

	g := &Graph{
		nodes:     append([]traversal.Node(nil), nodes...),
		byChapter: make(map[string][]traversal.Node),
		prereqs:   make(map[string][]string),
	}
	seen := make(map[string]struct{})
	for _, n := range g.nodes {
		if _, ok := seen[n.ChapterID]; !ok {
			seen[n.ChapterID] = struct{}{}
			g.chapters = append(g.chapters, n.ChapterID)
		}
		g.byChapter[n.ChapterID] = append(g.byChapter[n.ChapterID], n)
		for _, p := range n.StaticPrereqs {
			if !contains(g.prereqs[n.ChapterID], p) {
				g.prereqs[n.ChapterID] = append(g.prereqs[n.ChapterID], p)
			}
		}
	}
	for ch := range g.prereqs {
		sort.Strings(g.prereqs[ch])
	}

	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// validate проверяет пререквизитные рёбра: ссылки на известные главы,
// отсутствие самозависимостей и циклов.
func (g *Graph) validate() error {
	for _, ch := range g.chapters {
		for _, p := range g.prereqs[ch] {
			if p == ch {
				return fmt.Errorf("%w: chapter %q requires itself", shared.ErrGraphInconsistent, ch)
			}
			if _, ok := g.byChapter[p]; !ok {
				return fmt.Errorf("%w: chapter %q requires unknown chapter %q", shared.ErrGraphInconsistent, ch, p)
			}
		}
	}
	if cycle := g.findCycle(); len(cycle) > 0 {
		return fmt.Errorf("%w: %v", shared.ErrGraphHasCycle, cycle)
	}
	return nil
}

// findCycle ищет цикл обходом в глубину. Возвращает участвующие главы.
func (g *Graph) findCycle() []string {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(g.chapters))
	var cycle []string

	var visit func(ch string) bool
	visit = func(ch string) bool {
		color[ch] = grey
		for _, p := range g.prereqs[ch] {
			switch color[p] {
			case grey:
				cycle = append(cycle, p, ch)
				return true
			case white:
				if visit(p) {
					return true
				}
			}
		}
		color[ch] = black
		return false
	}

	for _, ch := range g.chapters {
		if color[ch] == white && visit(ch) {
			return cycle
		}
	}
	return nil
}

// Chapters возвращает главы в порядке объявления.
func (g *Graph) Chapters() []string {
	return append([]string(nil), g.chapters...)
}

// ChapterNodes возвращает узлы главы в авторском порядке.
func (g *Graph) ChapterNodes(chapterID string) []traversal.Node {
	return append([]traversal.Node(nil), g.byChapter[chapterID]...)
}

// Prereqs возвращает жёсткие пререквизиты главы.
func (g *Graph) Prereqs(chapterID string) []string {
	return append([]string(nil), g.prereqs[chapterID]...)
}

// Nodes возвращает все узлы графа.
func (g *Graph) Nodes() []traversal.Node {
	return append([]traversal.Node(nil), g.nodes...)
}

// TopologicalOrder возвращает порядок глав, уважающий жёсткие рёбра.
// Среди готовых глав порядок выбирает функция pick; nil означает
// лексикографический выбор. Порядок детерминирован при детерминированном
// pick.
func (g *Graph) TopologicalOrder(pick func(ready []string) string) ([]string, error) {
	indegree := make(map[string]int, len(g.chapters))
	dependents := make(map[string][]string, len(g.chapters))
	for _, ch := range g.chapters {
		indegree[ch] = len(g.prereqs[ch])
		for _, p := range g.prereqs[ch] {
			dependents[p] = append(dependents[p], ch)
		}
	}

	var ready []string
	for _, ch := range g.chapters {
		if indegree[ch] == 0 {
			ready = append(ready, ch)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.chapters))
	for len(ready) > 0 {
		var next string
		if pick != nil {
			next = pick(ready)
		} else {
			next = ready[0]
		}
		ready = remove(ready, next)
		order = append(order, next)
		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = insertSorted(ready, dep)
			}
		}
	}

	// Валидация при построении исключает цикл, но порядок всё равно
	// перепроверяется: неполный обход - ошибка, не тихий результат.
	if len(order) != len(g.chapters) {
		return nil, shared.ErrGraphHasCycle
	}
	return order, nil
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func remove(xs []string, v string) []string {
	out := xs[:0]
	for _, x := range xs {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func insertSorted(xs []string, v string) []string {
	i := sort.SearchStrings(xs, v)
	xs = append(xs, "")
	copy(xs[i+1:], xs[i:])
	xs[i] = v
	return xs
}
