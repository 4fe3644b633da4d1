package position

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrDuplicateSlot = errors.New("market already has an active slot")

type State struct {
	Slots          []*Slot              `json:"slots"`
	Cooldowns      map[string]time.Time `json:"cooldowns"`
	LastSearchTime time.Time            `json:"last_search_time"`
	Paused         bool                 `json:"paused"`
}

func NewState() *State {
	return &State{Cooldowns: make(map[string]time.Time)}
}

// Active returns the non-DONE slot for market, or nil.
func (st *State) Active(market string) *Slot {
	for _, s := range st.Slots {
		if s.Market == market && s.Active() {
			return s
		}
	}
	return nil
}

// Add appends slot, refusing a second active slot on the same market.
func (st *State) Add(slot *Slot) error {
	if st.Active(slot.Market) != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateSlot, slot.Market)
	}
	st.Slots = append(st.Slots, slot)
	return nil
}

// ActiveCount counts non-DONE slots.
func (st *State) ActiveCount() int {
	n := 0
	for _, s := range st.Slots {
		if s.Active() {
			n++
		}
	}
	return n
}

// Markets lists the markets of slots in the given status, in slot order.
func (st *State) Markets(status Status) []string {
	var out []string
	for _, s := range st.Slots {
		if s.Status == status {
			out = append(out, s.Market)
		}
	}
	return out
}

// Prune drops DONE slots and reports how many were removed.
func (st *State) Prune() int {
	kept := st.Slots[:0]
	for _, s := range st.Slots {
		if s.Active() {
			kept = append(kept, s)
		}
	}
	removed := len(st.Slots) - len(kept)
	for i := len(kept); i < len(st.Slots); i++ {
		st.Slots[i] = nil
	}
	st.Slots = kept
	return removed
}

func (st *State) SetCooldown(market string, until time.Time) {
	if st.Cooldowns == nil {
		st.Cooldowns = make(map[string]time.Time)
	}
	st.Cooldowns[market] = until
}

func (st *State) InCooldown(market string, now time.Time) bool {
	until, ok := st.Cooldowns[market]
	return ok && now.Before(until)
}

// ExpireCooldowns removes entries with now >= release and returns their
// markets sorted.
func (st *State) ExpireCooldowns(now time.Time) []string {
	var expired []string
	for m, until := range st.Cooldowns {
		if !now.Before(until) {
			expired = append(expired, m)
			delete(st.Cooldowns, m)
		}
	}
	sort.Strings(expired)
	return expired
}

// Validate checks every slot and the one-active-slot-per-market rule.
func (st *State) Validate() error {
	seen := make(map[string]bool, len(st.Slots))
	for _, s := range st.Slots {
		if s == nil {
			return fmt.Errorf("%w: null entry", errInvalidSlot)
		}
		if err := s.Validate(); err != nil {
			return err
		}
		if !s.Active() {
			continue
		}
		if seen[s.Market] {
			return fmt.Errorf("%w: %s", ErrDuplicateSlot, s.Market)
		}
		seen[s.Market] = true
	}
	return nil
}

func (st *State) Clone() *State {
	cp := &State{
		Slots:          make([]*Slot, 0, len(st.Slots)),
		Cooldowns:      make(map[string]time.Time, len(st.Cooldowns)),
		LastSearchTime: st.LastSearchTime,
		Paused:         st.Paused,
	}
	for _, s := range st.Slots {
		cp.Slots = append(cp.Slots, s.Clone())
	}
	for m, t := range st.Cooldowns {
		cp.Cooldowns[m] = t
	}
	return cp
}
