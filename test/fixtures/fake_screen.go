// Package fixtures provides fakes for the engine's platform collaborators.
package fixtures

import (
	"context"
	"fmt"
	"sync"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// FakeNode is an in-memory UI tree node.
type FakeNode struct {
	ID       string
	Label    string
	Desc     string
	Children []*FakeNode

	// Gone makes every accessor fail as if the screen redrew.
	Gone bool
	// ChildErr makes Child fail for these indexes only.
	ChildErr map[int]bool
}

// Node builds a FakeNode with a label and children.
func Node(id, label string, children ...*FakeNode) *FakeNode {
	return &FakeNode{ID: id, Label: label, Children: children}
}

// Text returns the node label.
func (n *FakeNode) Text() (string, error) {
	if n.Gone {
		return "", domain.ErrNodeGone
	}
	return n.Label, nil
}

// Description returns the node content description.
func (n *FakeNode) Description() (string, error) {
	if n.Gone {
		return "", domain.ErrNodeGone
	}
	return n.Desc, nil
}

// ChildCount returns the number of children.
func (n *FakeNode) ChildCount() (int, error) {
	if n.Gone {
		return 0, domain.ErrNodeGone
	}
	return len(n.Children), nil
}

// Child returns the i-th child.
func (n *FakeNode) Child(i int) (domain.Node, error) {
	if n.Gone || n.ChildErr[i] {
		return nil, domain.ErrNodeGone
	}
	if i < 0 || i >= len(n.Children) {
		return nil, fmt.Errorf("child %d out of range", i)
	}
	return n.Children[i], nil
}

// Key returns the node ID.
func (n *FakeNode) Key() string {
	return n.ID
}

// FakeReader serves a settable active window.
type FakeReader struct {
	mu    sync.Mutex
	root  *FakeNode
	err   error
	reads int
}

// NewFakeReader creates a reader showing root (nil means no window).
func NewFakeReader(root *FakeNode) *FakeReader {
	return &FakeReader{root: root}
}

// SetRoot replaces the displayed window.
func (r *FakeReader) SetRoot(root *FakeNode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.root = root
}

// SetError makes ActiveRoot fail with err.
func (r *FakeReader) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// ActiveRoot implements domain.ScreenReader.
func (r *FakeReader) ActiveRoot(ctx context.Context) (domain.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if r.err != nil {
		return nil, r.err
	}
	if r.root == nil {
		return nil, domain.ErrNoActiveWindow
	}
	return r.root, nil
}

// Reads returns how many times the window was requested.
func (r *FakeReader) Reads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

// HomeRecorder counts home actions.
type HomeRecorder struct {
	mu    sync.Mutex
	calls int
	Err   error
}

// GoHome implements domain.HomeAction.
func (h *HomeRecorder) GoHome(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return h.Err
}

// Calls returns the number of home actions.
func (h *HomeRecorder) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

// PromptRecorder records presented lock targets.
type PromptRecorder struct {
	mu      sync.Mutex
	targets []domain.AppID
	Err     error
}

// Present implements domain.LockPrompter.
func (p *PromptRecorder) Present(target domain.AppID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.targets = append(p.targets, target)
	return nil
}

// Targets returns a copy of the presented targets.
func (p *PromptRecorder) Targets() []domain.AppID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.AppID(nil), p.targets...)
}

// StaticHost reports a fixed boot id.
type StaticHost struct {
	ID  string
	Err error
}

// BootID implements domain.HostInfo.
func (h StaticHost) BootID() (string, error) {
	return h.ID, h.Err
}
