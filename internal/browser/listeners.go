package browser

import "sync"

// Dispatcher fans a single set of browser subscriptions out to any number of
// listeners. Page implementations subscribe to the browser once and dispatch
// through it, in registration order.
type Dispatcher struct {
	mu     sync.RWMutex
	nextID int
	byID   map[int]Listener
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{byID: make(map[int]Listener)}
}

// Add registers l. The returned func removes it and may be called more than once.
func (d *Dispatcher) Add(l Listener) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.byID[id] = l
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.byID, id)
			d.mu.Unlock()
		})
	}
}

// Len returns the number of active listeners.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

func (d *Dispatcher) snapshot() []Listener {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Listener, 0, len(d.byID))
	for i := 0; i < d.nextID; i++ {
		if l, ok := d.byID[i]; ok {
			out = append(out, l)
		}
	}
	return out
}

func (d *Dispatcher) Console(level, text string) {
	for _, l := range d.snapshot() {
		if l.OnConsole != nil {
			l.OnConsole(level, text)
		}
	}
}

func (d *Dispatcher) PageError(msg string) {
	for _, l := range d.snapshot() {
		if l.OnPageError != nil {
			l.OnPageError(msg)
		}
	}
}

func (d *Dispatcher) Response(method, url string, status int) {
	for _, l := range d.snapshot() {
		if l.OnResponse != nil {
			l.OnResponse(method, url, status)
		}
	}
}

func (d *Dispatcher) RequestFailed(method, url string) {
	for _, l := range d.snapshot() {
		if l.OnRequestFailed != nil {
			l.OnRequestFailed(method, url)
		}
	}
}
