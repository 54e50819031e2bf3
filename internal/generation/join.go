package generation

import (
	"sync"

	"github.com/HanTheDev/content-gateway/internal/models"
	"github.com/HanTheDev/content-gateway/internal/quota"
)

type slotOutcome struct {
	artifact models.ArtifactResult
	usage    []models.UsageEvent
	// reservation is set while the quota hold is kept.
	reservation *quota.Reservation
	// failed means at least one provider call for this slot failed.
	failed bool
}

// join collects one outcome per slot. Each slot is finalized exactly once; whoever gets
// there second loses.
type join struct {
	mu        sync.Mutex
	slots     []slotOutcome
	finalized []bool
	remaining int
	done      chan struct{}
	progress  ProgressFunc
}

func newJoin(n int, progress ProgressFunc) *join {
	return &join{
		slots:     make([]slotOutcome, n),
		finalized: make([]bool, n),
		remaining: n,
		done:      make(chan struct{}),
		progress:  progress,
	}
}

func (j *join) finalize(i int, out slotOutcome) bool {
	j.mu.Lock()
	if j.finalized[i] {
		j.mu.Unlock()
		return false
	}
	j.finalized[i] = true
	j.slots[i] = out
	j.mu.Unlock()

	if j.progress != nil {
		j.progress(out.artifact.ContentType, out.artifact)
	}

	j.mu.Lock()
	j.remaining--
	if j.remaining == 0 {
		close(j.done)
	}
	j.mu.Unlock()
	return true
}

func (j *join) unfinished() []int {
	j.mu.Lock()
	defer j.mu.Unlock()
	var idx []int
	for i, ok := range j.finalized {
		if !ok {
			idx = append(idx, i)
		}
	}
	return idx
}

func (j *join) outcomes() []slotOutcome {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]slotOutcome(nil), j.slots...)
}
