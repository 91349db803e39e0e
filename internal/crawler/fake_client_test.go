package crawler

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeNode is an in-memory DOM element.
type fakeNode struct {
	attrs    map[string]string
	text     string
	children map[string]*fakeNode
	hidden   bool
	disabled bool
	onClick  func(*fakeClient) error
}

// fakePage maps selectors to the nodes they match.
type fakePage struct {
	nodes map[string][]*fakeNode
}

// fakeClient is a scripted PageClient.
type fakeClient struct {
	mu sync.Mutex

	pages    map[string]*fakePage
	current  string
	location string

	// navErrs is consumed one entry per Navigate call; nil entries succeed.
	navErrs  []error
	navCalls []string

	// findAllErrs is consumed one entry per FindAll call on the keyed page.
	findAllErrs map[string][]error

	heights  []int64
	scrolls  int
	clicks   int
	clickErr []error
}

func newFakeClient() *fakeClient {
	return &fakeClient{pages: make(map[string]*fakePage)}
}

func (f *fakeClient) addPage(url string, nodes map[string][]*fakeNode) {
	f.pages[url] = &fakePage{nodes: nodes}
}

func (f *fakeClient) page() *fakePage {
	if p, ok := f.pages[f.current]; ok {
		return p
	}
	return &fakePage{nodes: map[string][]*fakeNode{}}
}

func (f *fakeClient) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navCalls = append(f.navCalls, url)
	if len(f.navErrs) > 0 {
		err := f.navErrs[0]
		f.navErrs = f.navErrs[1:]
		if err != nil {
			return err
		}
	}
	f.current = url
	f.location = url
	return nil
}

func (f *fakeClient) FindAll(_ context.Context, selector string) ([]Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if errs := f.findAllErrs[f.current]; len(errs) > 0 {
		f.findAllErrs[f.current] = errs[1:]
		if errs[0] != nil {
			return nil, errs[0]
		}
	}
	nodes := f.page().nodes[selector]
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeClient) FindOne(_ context.Context, parent Element, selector string) (Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if parent == nil {
		nodes := f.page().nodes[selector]
		if len(nodes) == 0 {
			return nil, ErrElementNotFound
		}
		return nodes[0], nil
	}
	n := parent.(*fakeNode)
	child, ok := n.children[selector]
	if !ok {
		return nil, ErrElementNotFound
	}
	return child, nil
}

func (f *fakeClient) Attribute(_ context.Context, el Element, name string) (string, bool, error) {
	n := el.(*fakeNode)
	v, ok := n.attrs[name]
	return v, ok, nil
}

func (f *fakeClient) Text(_ context.Context, el Element) (string, error) {
	return el.(*fakeNode).text, nil
}

func (f *fakeClient) Location(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.location, nil
}

func (f *fakeClient) ScrollToBottom(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrolls++
	return nil
}

func (f *fakeClient) CurrentHeight(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.heights) == 0 {
		return 0, nil
	}
	idx := f.scrolls - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(f.heights) {
		idx = len(f.heights) - 1
	}
	return f.heights[idx], nil
}

func (f *fakeClient) IsVisible(_ context.Context, el Element) (bool, error) {
	return !el.(*fakeNode).hidden, nil
}

func (f *fakeClient) IsEnabled(_ context.Context, el Element) (bool, error) {
	return !el.(*fakeNode).disabled, nil
}

func (f *fakeClient) Click(_ context.Context, el Element) error {
	f.mu.Lock()
	if len(f.clickErr) > 0 {
		err := f.clickErr[0]
		f.clickErr = f.clickErr[1:]
		if err != nil {
			f.mu.Unlock()
			return err
		}
	}
	f.clicks++
	f.mu.Unlock()
	if n := el.(*fakeNode); n.onClick != nil {
		return n.onClick(f)
	}
	return nil
}

// profileCards builds result containers whose links point at the given slugs.
func profileCards(slugs ...string) []*fakeNode {
	out := make([]*fakeNode, 0, len(slugs))
	for _, slug := range slugs {
		out = append(out, &fakeNode{
			children: map[string]*fakeNode{
				DefaultProfileLink: {
					attrs: map[string]string{"href": "https://www.linkedin.com/in/" + slug + "?miniProfileUrn=abc"},
					text:  "Person " + slug,
				},
			},
		})
	}
	return out
}

// memCheckpointer records snapshots and can fail on demand.
type memCheckpointer struct {
	mu    sync.Mutex
	saves []Snapshot
	errs  []error
}

func (m *memCheckpointer) Save(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return err
		}
	}
	m.saves = append(m.saves, snap)
	return nil
}

func (m *memCheckpointer) last() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saves) == 0 {
		return Snapshot{}, false
	}
	return m.saves[len(m.saves)-1], true
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var errTransport = errors.New("transport error")
