package trap

import "sync"

// Observer receives a notification for every trap delivered through
// InjectedHandler, before the unwind reaches the entry boundary. The store
// is the value the faulting activation was entered with. Observers run on
// the faulted stack and must not retain regs-derived state.
type Observer interface {
	OnTrap(store any, tr *Trap)
}

var (
	obsMu     sync.RWMutex
	observers []Observer
)

// Subscribe registers an observer for trap deliveries.
func Subscribe(o Observer) {
	obsMu.Lock()
	defer obsMu.Unlock()
	observers = append(observers, o)
}

// Unsubscribe removes a previously registered observer.
func Unsubscribe(o Observer) {
	obsMu.Lock()
	defer obsMu.Unlock()
	for i, cur := range observers {
		if cur == o {
			observers = append(observers[:i], observers[i+1:]...)
			return
		}
	}
}

func notifyTrap(store any, tr *Trap) {
	obsMu.RLock()
	defer obsMu.RUnlock()
	for _, o := range observers {
		o.OnTrap(store, tr)
	}
}
