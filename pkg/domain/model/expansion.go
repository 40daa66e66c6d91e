package model

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/domain/types"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
)

var (
	ErrUnknownPage     = goerr.New("unknown page")
	ErrPageNotExpanded = goerr.New("page is not expanded")
)

// ExpansionNode is one expanded record of a page. Overlay, when set, is the
// record shown on top of it. Nodes are never modified after construction.
type ExpansionNode struct {
	Type    string         `json:"type"`
	ID      string         `json:"id"`
	Overlay *ExpansionNode `json:"overlay,omitempty"`
}

// Ref returns the identity of the node
func (n *ExpansionNode) Ref() Ref {
	return Ref{Type: n.Type, ID: n.ID}
}

// Deepest returns the last node of the chain. nil for a collapsed page.
func (n *ExpansionNode) Deepest() *ExpansionNode {
	if n == nil {
		return nil
	}
	for n.Overlay != nil {
		n = n.Overlay
	}
	return n
}

// Depth returns the number of nodes in the chain
func (n *ExpansionNode) Depth() int {
	depth := 0
	for ; n != nil; n = n.Overlay {
		depth++
	}
	return depth
}

// Chain returns the nodes from root to deepest
func (n *ExpansionNode) Chain() []*ExpansionNode {
	var out []*ExpansionNode
	for ; n != nil; n = n.Overlay {
		out = append(out, n)
	}
	return out
}

// appendOverlay rebuilds the chain with a new deepest node
func (n *ExpansionNode) appendOverlay(ref Ref) *ExpansionNode {
	if n == nil {
		return &ExpansionNode{Type: ref.Type, ID: ref.ID}
	}
	return &ExpansionNode{Type: n.Type, ID: n.ID, Overlay: n.Overlay.appendOverlay(ref)}
}

// dropDeepest rebuilds the chain without its deepest node. A single node
// chain becomes nil.
func (n *ExpansionNode) dropDeepest() *ExpansionNode {
	if n == nil || n.Overlay == nil {
		return nil
	}
	return &ExpansionNode{Type: n.Type, ID: n.ID, Overlay: n.Overlay.dropDeepest()}
}

// ExpansionListener is notified with the page and its new root after every
// transition
type ExpansionListener func(page string, root *ExpansionNode)

// ExpansionState tracks what is expanded on every page. A page is collapsed
// when its root is nil.
type ExpansionState struct {
	mu        sync.RWMutex
	pages     map[string]*ExpansionNode
	order     []string
	listeners []ExpansionListener
}

// NewExpansionState creates one collapsed page per name plus the ALL page
func NewExpansionState(names []string) *ExpansionState {
	s := &ExpansionState{
		pages: make(map[string]*ExpansionNode, len(names)+1),
	}
	for _, name := range append([]string{types.AllPage}, names...) {
		if _, ok := s.pages[name]; ok {
			continue
		}
		s.pages[name] = nil
		s.order = append(s.order, name)
	}
	return s
}

// Pages returns page names, ALL first then configuration order
func (s *ExpansionState) Pages() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Has reports whether the page exists
func (s *ExpansionState) Has(page string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pages[page]
	return ok
}

// Page returns the root node of the page
func (s *ExpansionState) Page(page string) (*ExpansionNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	root, ok := s.pages[page]
	if !ok {
		return nil, goerr.Wrap(ErrUnknownPage, "page not found", goerr.V("page", page))
	}
	return root, nil
}

// Deepest returns the top-most shown record of the page
func (s *ExpansionState) Deepest(page string) (*ExpansionNode, error) {
	root, err := s.Page(page)
	if err != nil {
		return nil, err
	}
	return root.Deepest(), nil
}

// Depth returns the chain length of the page, 0 when collapsed
func (s *ExpansionState) Depth(page string) (int, error) {
	root, err := s.Page(page)
	if err != nil {
		return 0, err
	}
	return root.Depth(), nil
}

// SetExpanded replaces the whole state of the page, dropping any overlays
func (s *ExpansionState) SetExpanded(page, typ, id string) error {
	return s.update(page, func(*ExpansionNode) (*ExpansionNode, error) {
		return &ExpansionNode{Type: typ, ID: id}, nil
	})
}

// Collapse clears the page
func (s *ExpansionState) Collapse(page string) error {
	return s.update(page, func(*ExpansionNode) (*ExpansionNode, error) {
		return nil, nil
	})
}

// AddOverlay appends a record at the deepest point of the page. On a
// collapsed page it logs and leaves the state untouched.
func (s *ExpansionState) AddOverlay(ctx context.Context, page, typ, id string) error {
	err := s.update(page, func(root *ExpansionNode) (*ExpansionNode, error) {
		if root == nil {
			return nil, goerr.Wrap(ErrPageNotExpanded, "cannot overlay a collapsed page",
				goerr.V("page", page),
				goerr.V("type", typ),
				goerr.V("id", id))
		}
		return root.appendOverlay(Ref{Type: typ, ID: id}), nil
	})
	if err != nil {
		logging.From(ctx).Warn("addOverlay ignored", "page", page, "type", typ, "id", id, "error", err.Error())
	}
	return err
}

// RemoveOverlay pops the deepest overlay. Without an overlay the page
// collapses.
func (s *ExpansionState) RemoveOverlay(page string) error {
	return s.update(page, func(root *ExpansionNode) (*ExpansionNode, error) {
		return root.dropDeepest(), nil
	})
}

// Subscribe registers a listener for root changes
func (s *ExpansionState) Subscribe(fn ExpansionListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *ExpansionState) update(page string, fn func(*ExpansionNode) (*ExpansionNode, error)) error {
	s.mu.Lock()
	root, ok := s.pages[page]
	if !ok {
		s.mu.Unlock()
		return goerr.Wrap(ErrUnknownPage, "page not found", goerr.V("page", page))
	}
	next, err := fn(root)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.pages[page] = next
	listeners := make([]ExpansionListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l(page, next)
	}
	return nil
}
