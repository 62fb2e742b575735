package catalog

import (
	"math/rand"
	"sync"
)

// Picker selects random images for a user without repeating any until the
// whole pool has been shown to them. Once fewer unseen images remain than
// were asked for, the unseen ones are returned first and the user's shown-set
// resets so the remainder can be drawn from the full pool again.
type Picker struct {
	mu    sync.Mutex
	index *Index
	shown map[string]map[string]bool // userID -> image URL -> seen
}

// NewPicker creates a picker over the given index.
func NewPicker(index *Index) *Picker {
	return &Picker{
		index: index,
		shown: make(map[string]map[string]bool),
	}
}

// Pick returns up to count images for the user. The selection is
// uniform-random without replacement within one call.
func (p *Picker) Pick(userID string, count int) []string {
	pool := p.index.Walk()
	if len(pool) == 0 || count <= 0 {
		return nil
	}
	if count > len(pool) {
		count = len(pool)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	seen := p.shown[userID]
	if seen == nil {
		seen = make(map[string]bool)
		p.shown[userID] = seen
	}

	var unseen []string
	for _, img := range pool {
		if !seen[img] {
			unseen = append(unseen, img)
		}
	}

	rand.Shuffle(len(unseen), func(i, j int) {
		unseen[i], unseen[j] = unseen[j], unseen[i]
	})

	picked := unseen
	if len(picked) > count {
		picked = picked[:count]
	}

	if len(picked) < count {
		// Pool exhausted for this user: reset the shown-set and top up from
		// the full pool, excluding images already chosen in this call.
		seen = make(map[string]bool)
		p.shown[userID] = seen

		chosen := make(map[string]bool, len(picked))
		for _, img := range picked {
			chosen[img] = true
		}

		var rest []string
		for _, img := range pool {
			if !chosen[img] {
				rest = append(rest, img)
			}
		}
		rand.Shuffle(len(rest), func(i, j int) {
			rest[i], rest[j] = rest[j], rest[i]
		})
		picked = append(picked, rest[:count-len(picked)]...)
	}

	for _, img := range picked {
		seen[img] = true
	}
	return picked
}

// Forget drops the shown-set for a user.
func (p *Picker) Forget(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.shown, userID)
}
