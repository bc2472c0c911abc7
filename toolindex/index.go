// Package toolindex is a supporting, non-core component: a per-keyword
// weighted index over known tools that reinforces on each successful
// selection, letting a caller ask "which tool best matches this objective"
// without the dispatcher or graph engine needing to know about it.
package toolindex

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// scoreExprSource combines the summed keyword weight with a per-match
// bonus. It is an expr-lang expression compiled once by New; the source
// itself is a compile-time constant, so changing the formula means a
// rebuild (only the Bonus value is configurable at run time).
const scoreExprSource = `WeightSum + (MatchCount * Bonus)`

// Index holds one weight table per tool name.
type Index struct {
	mu      sync.RWMutex
	weights map[string]map[string]float64
	bonus   float64
	path    string
	program *vm.Program
}

// New returns an empty index. keywordBonus tunes the per-matched-keyword
// bonus term in the scoring expression.
func New(path string, keywordBonus float64) (*Index, error) {
	program, err := expr.Compile(scoreExprSource, expr.Env(scoreEnv{}))
	if err != nil {
		return nil, fmt.Errorf("compile score expression: %w", err)
	}
	idx := &Index{
		weights: make(map[string]map[string]float64),
		bonus:   keywordBonus,
		path:    path,
		program: program,
	}
	if path != "" {
		if err := idx.load(); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// scoreEnv's fields must be exported: expr-lang resolves environment names
// by reflection, and an unexported field is neither visible to expr.Compile
// nor readable by expr.Run.
type scoreEnv struct {
	WeightSum  float64
	MatchCount int
	Bonus      float64
}

func (idx *Index) load() error {
	data, err := os.ReadFile(idx.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return json.Unmarshal(data, &idx.weights)
}

func (idx *Index) persist() error {
	if idx.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(idx.weights, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(idx.path, data, 0o644)
}

func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()[]{}")
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// Scored is one tool's match against an objective.
type Scored struct {
	Tool  string
	Score float64
}

// Search tokenizes objective and scores every tool currently in the index,
// returning results sorted by descending score.
func (idx *Index) Search(objective string) ([]Scored, error) {
	tokens := tokenize(objective)
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	results := make([]Scored, 0, len(idx.weights))
	for tool, weights := range idx.weights {
		var sum float64
		var count int
		for _, tok := range tokens {
			if w, ok := weights[tok]; ok {
				sum += w
				count++
			}
		}
		out, err := expr.Run(idx.program, scoreEnv{WeightSum: sum, MatchCount: count, Bonus: idx.bonus})
		if err != nil {
			return nil, fmt.Errorf("score tool %s: %w", tool, err)
		}
		score, _ := out.(float64)
		results = append(results, Scored{Tool: tool, Score: score})
	}
	sortScoredDesc(results)
	return results, nil
}

// Reinforce nudges every keyword in objective that belongs to tool's weight
// table upward, and seeds new keywords at a baseline weight, then persists.
func (idx *Index) Reinforce(tool, objective string) error {
	tokens := tokenize(objective)
	idx.mu.Lock()
	defer idx.mu.Unlock()

	table, ok := idx.weights[tool]
	if !ok {
		table = make(map[string]float64)
		idx.weights[tool] = table
	}
	for _, tok := range tokens {
		table[tok] += 1.0
	}
	return idx.persist()
}

func sortScoredDesc(s []Scored) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].Score > s[j-1].Score; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
