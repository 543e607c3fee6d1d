package alarm

// Subscriber receives lifecycle events.
type Subscriber interface {
	HandleAlarmEvent(Event)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(Event)

// HandleAlarmEvent calls f(e).
func (f SubscriberFunc) HandleAlarmEvent(e Event) {
	f(e)
}

// Dispatcher fans events out to subscribers in registration order. The
// machine never references it; the control loop hands it each tick's events.
type Dispatcher struct {
	subs []Subscriber
}

// Subscribe registers s.
func (d *Dispatcher) Subscribe(s Subscriber) {
	d.subs = append(d.subs, s)
}

// Publish delivers each event to every subscriber, events in order.
func (d *Dispatcher) Publish(events []Event) {
	for _, e := range events {
		for _, s := range d.subs {
			s.HandleAlarmEvent(e)
		}
	}
}
