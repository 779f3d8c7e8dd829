package intent

// Dispatcher maps decoded intents to local UI effects. Effects are optional:
// intents arrive during early startup before all local state exists, so a
// missing callback is a silent no-op, never a panic.
type Dispatcher struct {
	OnCreateTask  func(CreateTask)
	OnCreateNote  func(CreateNote)
	OnCreateEvent func(CreateEvent)

	handled bool
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Dispatch invokes the one effect matching the intent's kind.
func (d *Dispatcher) Dispatch(in Intent) {
	switch v := in.(type) {
	case CreateTask:
		if d.OnCreateTask != nil {
			d.OnCreateTask(v)
		}
	case CreateNote:
		if d.OnCreateNote != nil {
			d.OnCreateNote(v)
		}
	case CreateEvent:
		if d.OnCreateEvent != nil {
			d.OnCreateEvent(v)
		}
	}
}

// DispatchURL parses rawURL and dispatches at most once per dispatcher until
// Reset, mirroring once-per-launch semantics: in-app navigation does not
// re-trigger a previously handled link.
func (d *Dispatcher) DispatchURL(rawURL string) bool {
	if d.handled {
		return false
	}
	in, ok := Parse(rawURL)
	if !ok {
		return false
	}
	d.handled = true
	d.Dispatch(in)
	return true
}

// Reset allows the next DispatchURL to fire again, for when the host app
// re-parses a fresh URL.
func (d *Dispatcher) Reset() {
	d.handled = false
}
