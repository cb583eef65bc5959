package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry tracks live sessions. Each session holds at most one subscription;
// subscribing again with the same session id replaces the previous one. Session
// ids are scoped to their recipient, so one recipient cannot displace another's
// session.
type Registry struct {
	broker Broker
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[sessionKey]*liveSubscription
	stopped  bool
}

type sessionKey struct {
	recipientID string
	sessionID   string
}

// Session is one live subscription. Done is closed once it stops for any
// reason: Close, replacement by a newer session, context cancellation or
// StopAll.
type Session struct {
	ls    *liveSubscription
	close func()
}

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() { s.close() }

// Done is closed when the session stops delivering.
func (s *Session) Done() <-chan struct{} { return s.ls.done }

type liveSubscription struct {
	sessionID   string
	recipientID string

	// mu is held while the callback runs so that stop waits for an in-flight
	// delivery and no callback fires after stop returns.
	mu       sync.Mutex
	callback func(Frame)
	closed   bool

	once sync.Once
	done chan struct{}
	sub  Subscription
}

// NewRegistry builds a registry over broker.
func NewRegistry(broker Broker, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		broker:   broker,
		logger:   logger,
		sessions: make(map[sessionKey]*liveSubscription),
	}
}

// Broker exposes the underlying broker.
func (r *Registry) Broker() Broker {
	return r.broker
}

// Subscribe attaches callback to recipientID's frames for sessionID and
// returns an idempotent unsubscribe. The subscription also ends when ctx is
// cancelled. callback must not call the returned unsubscribe synchronously.
func (r *Registry) Subscribe(ctx context.Context, sessionID, recipientID string, callback func(Frame)) (func(), error) {
	session, err := r.Open(ctx, sessionID, recipientID, callback)
	if err != nil {
		return nil, err
	}
	return session.Close, nil
}

// Open is Subscribe returning the session, so callers can watch Done.
func (r *Registry) Open(ctx context.Context, sessionID, recipientID string, callback func(Frame)) (*Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	ls := &liveSubscription{
		sessionID:   sessionID,
		recipientID: recipientID,
		callback:    callback,
		done:        make(chan struct{}),
	}

	sub, err := r.broker.Subscribe(ctx, recipientID, ls.deliver)
	if err != nil {
		return nil, err
	}
	ls.sub = sub

	key := sessionKey{recipientID: recipientID, sessionID: sessionID}
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		ls.stop(r.logger)
		return &Session{ls: ls, close: func() {}}, nil
	}
	previous := r.sessions[key]
	r.sessions[key] = ls
	r.mu.Unlock()

	if previous != nil {
		previous.stop(r.logger)
	}

	unsubscribe := func() {
		r.mu.Lock()
		if r.sessions[key] == ls {
			delete(r.sessions, key)
		}
		r.mu.Unlock()
		ls.stop(r.logger)
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-ls.done:
		}
	}()

	return &Session{ls: ls, close: unsubscribe}, nil
}

// SubscribeToNotifications subscribes an anonymous session to notification
// frames only.
func (r *Registry) SubscribeToNotifications(ctx context.Context, recipientID string, callback func(Frame)) (func(), error) {
	return r.Subscribe(ctx, "", recipientID, func(f Frame) {
		if f.Kind == FrameNotification {
			callback(f)
		}
	})
}

// Active returns the number of sessions this process holds for recipientID.
func (r *Registry) Active(recipientID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ls := range r.sessions {
		if ls.recipientID == recipientID {
			n++
		}
	}
	return n
}

// StopAll closes every session. Later Subscribe calls return a no-op.
func (r *Registry) StopAll() {
	r.mu.Lock()
	r.stopped = true
	sessions := r.sessions
	r.sessions = make(map[sessionKey]*liveSubscription)
	r.mu.Unlock()

	for _, ls := range sessions {
		ls.stop(r.logger)
	}
}

func (ls *liveSubscription) deliver(f Frame) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.closed {
		return
	}
	ls.callback(f)
}

func (ls *liveSubscription) stop(logger *zap.Logger) {
	ls.once.Do(func() {
		ls.mu.Lock()
		ls.closed = true
		ls.mu.Unlock()
		close(ls.done)
		if err := ls.sub.Close(); err != nil {
			logger.Warn("close live subscription",
				zap.String("session_id", ls.sessionID),
				zap.String("recipient_id", ls.recipientID),
				zap.Error(err))
		}
	})
}
