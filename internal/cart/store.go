package cart

import (
	"fmt"
	"sync"
)

// Action is a cart mutation understood by Reduce.
type Action interface {
	isAction()
}

type AddItem struct {
	Candidate      Candidate
	SelectedVolume string
}

type RemoveItem struct {
	Candidate      Candidate
	SelectedVolume string
}

// ReplaceAll swaps the whole item list, e.g. restoring a snapshot or
// clearing the cart after an order went through.
type ReplaceAll struct {
	Items []LineItem
}

type Reset struct{}

func (AddItem) isAction()    {}
func (RemoveItem) isAction() {}
func (ReplaceAll) isAction() {}
func (Reset) isAction()      {}

// resolveVolume picks the explicit volume when given, else the default one.
func resolveVolume(c Candidate, selected string) (string, error) {
	if c.ProductID == "" {
		return "", ErrInvalidProduct
	}
	if selected != "" {
		return selected, nil
	}
	for _, opt := range c.VolumeOptions {
		if opt.IsDefault {
			return opt.Volume, nil
		}
	}
	return "", ErrVolumeNotResolved
}

func resolveOption(c Candidate, selected string) (VolumeOption, error) {
	volume, err := resolveVolume(c, selected)
	if err != nil {
		return VolumeOption{}, err
	}
	for _, opt := range c.VolumeOptions {
		if opt.Volume == volume {
			return opt, nil
		}
	}
	return VolumeOption{}, fmt.Errorf("%w: %q not offered for product %s", ErrVolumeNotResolved, volume, c.ProductID)
}

// Reduce applies action to state and returns the next state. The input
// state is never modified. On error the returned state equals the input.
func Reduce(state State, action Action) (State, error) {
	items := cloneItems(state.Items)

	switch a := action.(type) {
	case AddItem:
		opt, err := resolveOption(a.Candidate, a.SelectedVolume)
		if err != nil {
			return state, err
		}
		items = addVolume(items, a.Candidate, opt)

	case RemoveItem:
		volume, err := resolveVolume(a.Candidate, a.SelectedVolume)
		if err != nil {
			return state, err
		}
		items = removeVolume(items, a.Candidate.ProductID, volume)

	case ReplaceAll:
		items = normalize(cloneItems(a.Items))

	case Reset:
		items = nil

	default:
		return state, fmt.Errorf("%w: %T", ErrUnknownAction, action)
	}

	return State{Items: items, Total: CalculateTotal(items)}, nil
}

func addVolume(items []LineItem, c Candidate, opt VolumeOption) []LineItem {
	idx := indexOf(items, c.ProductID)
	if idx < 0 {
		return append(items, LineItem{
			ProductID: c.ProductID,
			Name:      c.Name,
			Images:    append([]string(nil), c.Images...),
			Volumes: []VolumeEntry{{
				Volume:   opt.Volume,
				Price:    opt.UnitPrice(),
				Quantity: 1,
			}},
		})
	}

	item := &items[idx]
	if vi := item.volumeIndex(opt.Volume); vi >= 0 {
		item.Volumes[vi].Quantity++
		return items
	}
	item.Volumes = append(item.Volumes, VolumeEntry{
		Volume:   opt.Volume,
		Price:    opt.UnitPrice(),
		Quantity: 1,
	})
	return items
}

func removeVolume(items []LineItem, productID, volume string) []LineItem {
	idx := indexOf(items, productID)
	if idx < 0 {
		return items
	}

	item := &items[idx]
	vi := item.volumeIndex(volume)
	if vi < 0 {
		return items
	}

	if item.Volumes[vi].Quantity > 1 {
		item.Volumes[vi].Quantity--
		return items
	}

	item.Volumes = append(item.Volumes[:vi], item.Volumes[vi+1:]...)
	if len(item.Volumes) == 0 {
		items = append(items[:idx], items[idx+1:]...)
	}
	if len(items) == 0 {
		return nil
	}
	return items
}

// normalize restores the cart invariants on foreign input: line items are
// unique by product, volumes are unique within an item, quantities are
// positive. Duplicates are merged by summing quantities; the first
// occurrence keeps its position, name, images and price.
func normalize(items []LineItem) []LineItem {
	var out []LineItem
	byProduct := make(map[string]int, len(items))

	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		idx, ok := byProduct[item.ProductID]
		if !ok {
			idx = len(out)
			byProduct[item.ProductID] = idx
			merged := item
			merged.Volumes = nil
			out = append(out, merged)
		}
		for _, v := range item.Volumes {
			if v.Quantity <= 0 {
				continue
			}
			if j := out[idx].volumeIndex(v.Volume); j >= 0 {
				out[idx].Volumes[j].Quantity += v.Quantity
				continue
			}
			out[idx].Volumes = append(out[idx].Volumes, v)
		}
	}

	kept := out[:0]
	for _, item := range out {
		if len(item.Volumes) > 0 {
			kept = append(kept, item)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// Listener observes the cart after every successful dispatch.
type Listener func(State)

// Store holds the authoritative cart. Mutations are serialized so readers
// only ever observe fully applied actions.
type Store struct {
	mu        sync.Mutex
	state     State
	listeners map[int]Listener
	nextID    int
}

func NewStore() *Store {
	return &Store{listeners: make(map[int]Listener)}
}

// Dispatch reduces action into the store and notifies listeners.
func (s *Store) Dispatch(action Action) (State, error) {
	s.mu.Lock()
	next, err := Reduce(s.state, action)
	if err != nil {
		s.mu.Unlock()
		return s.State(), err
	}
	s.state = next
	snap := State{Items: cloneItems(next.Items), Total: next.Total}
	listeners := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(State{Items: cloneItems(snap.Items), Total: snap.Total})
	}
	return snap, nil
}

func (s *Store) AddItem(c Candidate, selectedVolume string) (State, error) {
	return s.Dispatch(AddItem{Candidate: c, SelectedVolume: selectedVolume})
}

func (s *Store) RemoveItem(c Candidate, selectedVolume string) (State, error) {
	return s.Dispatch(RemoveItem{Candidate: c, SelectedVolume: selectedVolume})
}

func (s *Store) ReplaceAll(items []LineItem) State {
	st, _ := s.Dispatch(ReplaceAll{Items: items})
	return st
}

func (s *Store) Reset() State {
	st, _ := s.Dispatch(Reset{})
	return st
}

// State returns a copy of the current cart.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{Items: cloneItems(s.state.Items), Total: s.state.Total}
}

func (s *Store) Total() float64 {
	return s.State().Total
}

func (s *Store) ItemCount() int {
	return s.State().ItemCount()
}

func (s *Store) Contains(productID string) bool {
	return s.State().Contains(productID)
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}
