package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

type Tokens struct {
	AccessToken  string
	RefreshToken string
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Session reads and writes the well known keys.
type Session struct {
	store Store
}

func NewSession(store Store) *Session {
	return &Session{store: store}
}

// AccessToken returns "" when no token is stored.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	v, err := s.store.Get(ctx, KeyAccessToken)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

func (s *Session) Tokens(ctx context.Context) (Tokens, error) {
	access, err := s.AccessToken(ctx)
	if err != nil {
		return Tokens{}, err
	}

	refresh, err := s.store.Get(ctx, KeyRefreshToken)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Tokens{}, err
	}

	return Tokens{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Session) SaveTokens(ctx context.Context, t Tokens) error {
	if err := s.store.Set(ctx, KeyAccessToken, t.AccessToken); err != nil {
		return err
	}
	if t.RefreshToken == "" {
		return s.store.Delete(ctx, KeyRefreshToken)
	}
	return s.store.Set(ctx, KeyRefreshToken, t.RefreshToken)
}

func (s *Session) ClearTokens(ctx context.Context) error {
	return errors.Join(
		s.store.Delete(ctx, KeyAccessToken),
		s.store.Delete(ctx, KeyRefreshToken),
	)
}

// Location returns ErrNotFound when nothing was saved yet.
func (s *Session) Location(ctx context.Context) (Location, error) {
	v, err := s.store.Get(ctx, KeyUserLocation)
	if err != nil {
		return Location{}, err
	}

	var loc Location
	if err := json.Unmarshal([]byte(v), &loc); err != nil {
		return Location{}, fmt.Errorf("kvstore: decode %s: %w", KeyUserLocation, err)
	}
	return loc, nil
}

func (s *Session) SaveLocation(ctx context.Context, loc Location) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, KeyUserLocation, string(data))
}

// CartSessionID returns "" when the cart was never persisted.
func (s *Session) CartSessionID(ctx context.Context) (string, error) {
	v, err := s.store.Get(ctx, KeyCartSession)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

func (s *Session) SaveCartSessionID(ctx context.Context, id string) error {
	return s.store.Set(ctx, KeyCartSession, id)
}
