package download

import "sync"

// Progress tracks how much of a download session has completed. Safe for
// concurrent use; numberCompleted never exceeds numberOfTasks outside the lock.
type Progress struct {
	mu              sync.Mutex
	numberOfTasks   int
	numberCompleted int
}

// AddTasks increases the total task count by n.
func (p *Progress) AddTasks(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.numberOfTasks += n
}

// CompleteTask marks one task as finished.
func (p *Progress) CompleteTask() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.numberCompleted < p.numberOfTasks {
		p.numberCompleted++
	}
}

// NumberOfTasks returns the total task count.
func (p *Progress) NumberOfTasks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numberOfTasks
}

// NumberCompleted returns how many tasks have finished.
func (p *Progress) NumberCompleted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numberCompleted
}

// NumberRemaining returns how many tasks are still outstanding.
func (p *Progress) NumberRemaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.numberOfTasks - p.numberCompleted
	if n < 0 {
		return 0
	}
	return n
}

// Reset zeroes both counters atomically.
func (p *Progress) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.numberOfTasks = 0
	p.numberCompleted = 0
}
