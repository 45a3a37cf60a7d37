package cart

import (
	"context"
	"errors"
	"sync"

	"storefront-core/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service is the cart as seen by the rest of the app: a Store bound to one
// session, mirrored into a Snapshotter after every change.
type Service interface {
	SessionID() string
	Open(ctx context.Context) (State, error)
	AddItem(ctx context.Context, c Candidate, selectedVolume string) (State, error)
	RemoveItem(ctx context.Context, c Candidate, selectedVolume string) (State, error)
	ReplaceAll(ctx context.Context, items []LineItem) State
	Reset(ctx context.Context) State
	State() State
	Subscribe(l Listener) func()
}

type service struct {
	// mu orders each mutation together with its snapshot write, so the
	// last snapshot saved is always the current state.
	mu        sync.Mutex
	store     *Store
	snapshots Snapshotter
	sessionID string
}

// NewService binds store to sessionID. An empty sessionID gets a fresh one;
// a nil snapshotter keeps the cart ephemeral.
func NewService(store *Store, snapshots Snapshotter, sessionID string) Service {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if snapshots == nil {
		snapshots = NoopSnapshotter{}
	}
	return &service{store: store, snapshots: snapshots, sessionID: sessionID}
}

func (s *service) SessionID() string { return s.sessionID }

// Open restores the last saved snapshot for the session, if any. A missing
// or unreadable snapshot leaves the cart empty.
func (s *service) Open(ctx context.Context) (State, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "OpenCart"),
		zap.String("session_id", s.sessionID),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.snapshots.Load(ctx, s.sessionID)
	if errors.Is(err, ErrSnapshotNotFound) {
		log.Debug("no cart snapshot, starting empty")
		return s.store.State(), nil
	}
	if err != nil {
		log.Warn("cart snapshot unavailable, starting empty", zap.Error(err))
		return s.store.State(), err
	}

	state := s.store.ReplaceAll(items)
	log.Info("cart restored", zap.Int("items", len(state.Items)), zap.Float64("total", state.Total))
	return state, nil
}

func (s *service) AddItem(ctx context.Context, c Candidate, selectedVolume string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.AddItem(c, selectedVolume)
	if err != nil {
		logger.FromCtx(ctx).Warn("rejected add to cart",
			zap.String("product_id", c.ProductID),
			zap.String("volume", selectedVolume),
			zap.Error(err),
		)
		return state, err
	}
	s.persist(ctx, state)
	return state, nil
}

func (s *service) RemoveItem(ctx context.Context, c Candidate, selectedVolume string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.RemoveItem(c, selectedVolume)
	if err != nil {
		logger.FromCtx(ctx).Warn("rejected remove from cart",
			zap.String("product_id", c.ProductID),
			zap.String("volume", selectedVolume),
			zap.Error(err),
		)
		return state, err
	}
	s.persist(ctx, state)
	return state, nil
}

func (s *service) ReplaceAll(ctx context.Context, items []LineItem) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.store.ReplaceAll(items)
	s.persist(ctx, state)
	return state
}

func (s *service) Reset(ctx context.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.store.Reset()
	s.persist(ctx, state)
	return state
}

func (s *service) State() State { return s.store.State() }

func (s *service) Subscribe(l Listener) func() { return s.store.Subscribe(l) }

// persist mirrors state into the snapshotter. Failures are logged only:
// the in-memory cart stays authoritative.
func (s *service) persist(ctx context.Context, state State) {
	var err error
	if len(state.Items) == 0 {
		err = s.snapshots.Delete(ctx, s.sessionID)
	} else {
		err = s.snapshots.Save(ctx, s.sessionID, state.Items)
	}
	if err != nil {
		logger.FromCtx(ctx).Warn("failed to persist cart",
			zap.String("session_id", s.sessionID),
			zap.Error(err),
		)
	}
}
