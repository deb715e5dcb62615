package pokerclient

import (
	"encoding/json"
	"sync"
	"unsafe"

	"go.uber.org/zap"
)

type EventHandler func(*Message)

// EventRouter is a typed publish/subscribe registry keyed by message
// type. Incoming messages are dispatched synchronously to every
// registered handler; outgoing messages are gated on transport
// readiness.
type EventRouter interface {
	On(msgType MessageType, handler EventHandler) *Subscription
	Emit(msg *Message)
	Send(msgType MessageType, payload interface{}) error
	AttachTransport(t Transport)
	SetReadyChecker(fn func() bool)
	OnSendFailed(fn func(SendFailure))
}

// Subscription is the deregistration handle returned by On.
type Subscription struct {
	router  *eventRouter
	msgType MessageType
	handler EventHandler
	fnPtr   uintptr
}

func (s *Subscription) Cancel() {
	s.router.cancel(s)
}

type eventRouter struct {
	mu           sync.Mutex
	transport    Transport
	isReady      func() bool
	handlers     map[MessageType][]*Subscription
	onSendFailed func(SendFailure)
	logger       *zap.Logger
}

func NewEventRouter(logger *zap.Logger) EventRouter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &eventRouter{
		isReady:      func() bool { return true },
		handlers:     make(map[MessageType][]*Subscription),
		onSendFailed: func(SendFailure) {},
		logger:       logger,
	}
}

func (r *eventRouter) AttachTransport(t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transport = t
}

func (r *eventRouter) SetReadyChecker(fn func() bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.isReady = fn
}

func (r *eventRouter) OnSendFailed(fn func(SendFailure)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSendFailed = fn
}

// handlerPointer identifies a func value. Distinct closures created at
// the same source location share a code pointer but not a func value,
// so the comparison must use the value itself.
func handlerPointer(handler EventHandler) uintptr {
	return uintptr(*(*unsafe.Pointer)(unsafe.Pointer(&handler)))
}

// On registers a handler for msgType. Registering the identical
// function value twice has no additional effect and returns the
// existing subscription.
func (r *eventRouter) On(msgType MessageType, handler EventHandler) *Subscription {
	fnPtr := handlerPointer(handler)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.handlers[msgType] {
		if sub.fnPtr == fnPtr {
			return sub
		}
	}

	sub := &Subscription{
		router:  r,
		msgType: msgType,
		handler: handler,
		fnPtr:   fnPtr,
	}
	r.handlers[msgType] = append(r.handlers[msgType], sub)

	return sub
}

func (r *eventRouter) cancel(target *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.handlers[target.msgType]
	for idx, sub := range subs {
		if sub == target {
			r.handlers[target.msgType] = append(subs[:idx], subs[idx+1:]...)
			return
		}
	}
}

// Emit invokes every handler registered for the message type, in
// registration order. A panicking handler must not prevent the
// remaining handlers from running.
func (r *eventRouter) Emit(msg *Message) {
	r.mu.Lock()
	subs := make([]*Subscription, len(r.handlers[msg.Type]))
	copy(subs, r.handlers[msg.Type])
	r.mu.Unlock()

	for _, sub := range subs {
		r.dispatch(sub, msg)
	}
}

func (r *eventRouter) dispatch(sub *Subscription, msg *Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("event handler panicked",
				zap.String("msg_type", string(msg.Type)),
				zap.Any("panic", rec),
			)
		}
	}()

	sub.handler(msg)
}

func (r *eventRouter) Send(msgType MessageType, payload interface{}) error {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}

	r.mu.Lock()
	transport := r.transport
	isReady := r.isReady
	r.mu.Unlock()

	if transport == nil || !transport.IsOpen() || !isReady() {
		return r.failSend(msg, "transport is not ready")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if err := transport.Send(data); err != nil {
		return r.failSend(msg, err.Error())
	}

	return nil
}

func (r *eventRouter) failSend(msg *Message, reason string) error {
	// Dropped pings are expected while reconnecting, keep them out of
	// the failure log.
	if msg.Type != MessageType_Ping {
		r.logger.Warn("failed to send message",
			zap.String("msg_type", string(msg.Type)),
			zap.String("reason", reason),
		)
	}

	failure := SendFailure{
		OriginalType: msg.Type,
		Payload:      msg.Payload,
		Reason:       reason,
	}

	r.mu.Lock()
	onSendFailed := r.onSendFailed
	r.mu.Unlock()

	onSendFailed(failure)

	if event, err := NewMessage(MessageType_SendFailed, failure); err == nil {
		r.Emit(event)
	}

	return ErrRouterNotReady
}
