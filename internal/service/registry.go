package service

import (
	"container/list"
	"sync"
)

// ViewRegistry keeps one WeatherView per visitor id. It holds at most max
// views and evicts the least recently used one when full.
type ViewRegistry struct {
	fetcher         WeatherFetcher
	defaultLocation string
	max             int

	mu    sync.Mutex
	order *list.List // front is most recent; values are visitor ids
	views map[string]*registryEntry
}

type registryEntry struct {
	view *WeatherView
	elem *list.Element
}

func NewViewRegistry(fetcher WeatherFetcher, defaultLocation string, max int) *ViewRegistry {
	if max <= 0 {
		max = 10000
	}
	return &ViewRegistry{
		fetcher:         fetcher,
		defaultLocation: defaultLocation,
		max:             max,
		order:           list.New(),
		views:           make(map[string]*registryEntry),
	}
}

// Get returns the view for visitorID, creating it on first use.
func (r *ViewRegistry) Get(visitorID string) *WeatherView {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.views[visitorID]; ok {
		r.order.MoveToFront(e.elem)
		return e.view
	}

	for r.order.Len() >= r.max {
		oldest := r.order.Back()
		r.order.Remove(oldest)
		delete(r.views, oldest.Value.(string))
	}
	v := NewWeatherView(r.fetcher, r.defaultLocation)
	r.views[visitorID] = &registryEntry{view: v, elem: r.order.PushFront(visitorID)}
	return v
}

// Len reports the number of live views.
func (r *ViewRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}
