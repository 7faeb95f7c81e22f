package inspector

import (
	"cmp"
	"slices"

	"github.com/sigscope/sigscope/internal/analyzer"
)

// Registry maps router tags to user inspectors. It is owned by a single
// goroutine and is not safe for concurrent use.
type Registry struct {
	byTag   map[analyzer.InspectorID]*Inspector
	nextTag analyzer.InspectorID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byTag:   make(map[analyzer.InspectorID]*Inspector),
		nextTag: 1,
	}
}

// Add creates an inspector for an OPEN message and assigns it a fresh tag.
func (r *Registry) Add(msg *analyzer.InspectorMessage, sink Sink) *Inspector {
	tag := r.allocTag()
	insp := newInspector(tag, msg, sink)
	r.byTag[tag] = insp
	return insp
}

func (r *Registry) allocTag() analyzer.InspectorID {
	for {
		tag := r.nextTag
		r.nextTag++
		if r.nextTag == AudioTag || r.nextTag == 0 {
			r.nextTag = 1
		}
		if _, used := r.byTag[tag]; !used && tag != AudioTag && tag != 0 {
			return tag
		}
	}
}

// Lookup finds an inspector by router tag.
func (r *Registry) Lookup(tag analyzer.InspectorID) (*Inspector, bool) {
	insp, ok := r.byTag[tag]
	return insp, ok
}

// LookupHandle finds an inspector by analyzer handle.
func (r *Registry) LookupHandle(h analyzer.Handle) (*Inspector, bool) {
	for _, insp := range r.byTag {
		if insp.handle == h {
			return insp, true
		}
	}
	return nil, false
}

// Remove unbinds and forgets an inspector.
func (r *Registry) Remove(tag analyzer.InspectorID) (*Inspector, bool) {
	insp, ok := r.byTag[tag]
	if !ok {
		return nil, false
	}
	insp.Unbind()
	delete(r.byTag, tag)
	return insp, true
}

// DetachAll unbinds every inspector and empties the registry. The detached
// inspectors are returned in tag order.
func (r *Registry) DetachAll() []*Inspector {
	out := r.sorted()
	for _, insp := range out {
		insp.Unbind()
	}
	clear(r.byTag)
	return out
}

// Len returns the number of registered inspectors.
func (r *Registry) Len() int { return len(r.byTag) }

// List returns snapshots in tag order.
func (r *Registry) List() []Info {
	sorted := r.sorted()
	out := make([]Info, 0, len(sorted))
	for _, insp := range sorted {
		out = append(out, insp.Info())
	}
	return out
}

func (r *Registry) sorted() []*Inspector {
	out := make([]*Inspector, 0, len(r.byTag))
	for _, insp := range r.byTag {
		out = append(out, insp)
	}
	slices.SortFunc(out, func(a, b *Inspector) int { return cmp.Compare(a.tag, b.tag) })
	return out
}
