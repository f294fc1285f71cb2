// Package navigator holds the ordered lessons of one module and the
// currently selected lesson.
package navigator

import (
	"sync"

	"github.com/example/learning-platform/services/progress/internal/domain"
)

type Navigator struct {
	mu      sync.RWMutex
	lessons []domain.Lesson
	index   int
}

// New sorts a copy of lessons by position and selects initialID, or the
// first lesson when initialID is empty or unknown.
func New(lessons []domain.Lesson, initialID string) *Navigator {
	ls := make([]domain.Lesson, len(lessons))
	copy(ls, lessons)
	domain.SortLessons(ls)
	n := &Navigator{lessons: ls}
	if i := n.find(initialID); i >= 0 {
		n.index = i
	}
	return n
}

// Select makes id current. Unknown ids leave the selection unchanged and
// report false.
func (n *Navigator) Select(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	i := n.find(id)
	if i < 0 {
		return false
	}
	n.index = i
	return true
}

// Next advances by one lesson. It reports false at the last lesson.
func (n *Navigator) Next() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.index+1 >= len(n.lessons) {
		return false
	}
	n.index++
	return true
}

// Previous moves back by one lesson. It reports false at the first lesson.
func (n *Navigator) Previous() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.index <= 0 {
		return false
	}
	n.index--
	return true
}

func (n *Navigator) HasNext() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.index+1 < len(n.lessons)
}

func (n *Navigator) HasPrevious() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.index > 0 && len(n.lessons) > 0
}

// Current returns the selected lesson; ok is false for an empty module.
func (n *Navigator) Current() (domain.Lesson, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if len(n.lessons) == 0 {
		return domain.Lesson{}, false
	}
	return n.lessons[n.index], true
}

// Index is the position of the current lesson, or -1 for an empty module.
func (n *Navigator) Index() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if len(n.lessons) == 0 {
		return -1
	}
	return n.index
}

// Lessons returns a copy of the ordered sequence.
func (n *Navigator) Lessons() []domain.Lesson {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]domain.Lesson, len(n.lessons))
	copy(out, n.lessons)
	return out
}

func (n *Navigator) find(id string) int {
	if id == "" {
		return -1
	}
	for i, l := range n.lessons {
		if l.ID == id {
			return i
		}
	}
	return -1
}
