package calibration

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/okian/pairank/internal/domain/engine"
	"github.com/okian/pairank/internal/domain/model"
)

// namespace derives reproducible item ids from a scenario seed.
var namespace = uuid.MustParse("6f1c3f0e-8a59-4f5e-9d61-2b0c7a3e4d10")

// Truth is the hidden ordering of a synthetic collection.
type Truth struct {
	score map[string]int // higher is better, unique
	order []string       // best first
}

// Synthesize creates n items at the engine's initial rating and assigns
// them a random hidden order.
func Synthesize(n int, seed uint64, e *engine.Engine) (*Truth, model.Collection) {
	rng := rand.New(rand.NewPCG(seed, seed^0x5bd1e995))
	items := make(model.Collection, n)
	ids := make([]string, n)
	for i := range ids {
		id := uuid.NewSHA1(namespace, fmt.Appendf(nil, "%d/%d", seed, i)).String()
		ids[i] = id
		items[id] = e.NewItem(id, fmt.Sprintf("item-%04d", i))
	}
	rng.Shuffle(n, func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	t := &Truth{score: make(map[string]int, n), order: ids}
	for i, id := range ids {
		t.score[id] = n - i
	}
	return t, items
}

// Score returns the hidden score of id.
func (t *Truth) Score(id string) int { return t.score[id] }

// Outcome decides a comparison. The better item wins unless an upset is
// drawn with probability noise.
func (t *Truth) Outcome(a, b string, rng *rand.Rand, noise float64) (winner, loser string) {
	winner, loser = a, b
	if t.score[b] > t.score[a] {
		winner, loser = b, a
	}
	if noise > 0 && rng.Float64() < noise {
		winner, loser = loser, winner
	}
	return winner, loser
}

// Accuracy is the real reliability of items: the percentage of item pairs
// that the current ratings order the same way as the hidden scores.
func (t *Truth) Accuracy(items model.Collection) float64 {
	n := len(t.order)
	if n < 2 {
		return 0
	}
	pos := make(map[string]int, n)
	for i, it := range items.Sorted() {
		pos[it.ID] = i
	}

	correct := 0
	for i := 0; i < n; i++ {
		pi := pos[t.order[i]]
		for j := i + 1; j < n; j++ {
			if pi < pos[t.order[j]] {
				correct++
			}
		}
	}
	return 100 * float64(correct) / float64(n*(n-1)/2)
}
