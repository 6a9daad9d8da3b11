package fakeapp

import "sync"

// Event statuses. Only published events are visible to non-admin roles.
const (
	EventPending   = "pending"
	EventPublished = "published"
	EventRejected  = "rejected"
)

// Event is a community event awaiting or past vetting.
type Event struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Organiser string `json:"organiser"`
	Status    string `json:"status"`
}

type eventBook struct {
	mu     sync.RWMutex
	events []Event
}

func defaultEvents() []Event {
	return []Event{
		{ID: 1, Title: "Community garden day", Organiser: "teacher@example.com", Status: EventPublished},
		{ID: 2, Title: "Intro to pottery", Organiser: "vetted@example.com", Status: EventPublished},
		{ID: 3, Title: "Night market", Organiser: "member@example.com", Status: EventPending},
		{ID: 4, Title: "River clean-up", Organiser: "member@example.com", Status: EventPending},
		{ID: 5, Title: "Unlicensed raffle", Organiser: "guest@example.com", Status: EventRejected},
	}
}

// visibleTo returns the events role may see.
func (b *eventBook) visibleTo(role string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Event, 0, len(b.events))
	for _, e := range b.events {
		if role == RoleAdmin || e.Status == EventPublished {
			out = append(out, e)
		}
	}
	return out
}

func (b *eventBook) withStatus(status string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Event
	for _, e := range b.events {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}
