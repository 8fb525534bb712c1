package connection

// Observer receives the notifications of a Manager. This is the manager's
// only output boundary.
//
// Calls are made one at a time, in order, from a single goroutine owned by
// the Manager. An Observer may call back into the Manager.
//
// Delivery is asynchronous: an OnMessage already handed to the observer may
// run after Disconnect returns. No OnMessage for a connection follows its
// OnClose.
type Observer interface {
	// OnOpen fires once per connection, before any OnMessage for it.
	OnOpen()

	// OnClose fires when a connection that was open ends, locally or remotely.
	OnClose(reason CloseReason)

	// OnMessage fires for each inbound message of the live connection.
	OnMessage(msg Message)

	// OnError reports transport failures (always *TransportError).
	OnError(err error)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Open    func()
	Close   func(reason CloseReason)
	Message func(msg Message)
	Error   func(err error)
}

func (f ObserverFuncs) OnOpen() {
	if f.Open != nil {
		f.Open()
	}
}

func (f ObserverFuncs) OnClose(reason CloseReason) {
	if f.Close != nil {
		f.Close(reason)
	}
}

func (f ObserverFuncs) OnMessage(msg Message) {
	if f.Message != nil {
		f.Message(msg)
	}
}

func (f ObserverFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// MultiObserver fans each notification out to every member, in order.
type MultiObserver []Observer

func (m MultiObserver) OnOpen() {
	for _, o := range m {
		o.OnOpen()
	}
}

func (m MultiObserver) OnClose(reason CloseReason) {
	for _, o := range m {
		o.OnClose(reason)
	}
}

func (m MultiObserver) OnMessage(msg Message) {
	for _, o := range m {
		o.OnMessage(msg)
	}
}

func (m MultiObserver) OnError(err error) {
	for _, o := range m {
		o.OnError(err)
	}
}

// notificationKind enumerates what the dispatcher delivers.
type notificationKind int

const (
	notifyOpen notificationKind = iota
	notifyClose
	notifyMessage
	notifyError
	notifyState
)

// notification is one queued delivery to the observer or the event bus.
type notification struct {
	kind   notificationKind
	connID string
	msg    Message
	reason CloseReason
	err    error
	state  StateEvent
}
