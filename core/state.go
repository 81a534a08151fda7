package core

// state.go – the account state store and its copy-on-write snapshots.
//
// Block application mutates the committed map only through Commit (Put,
// Reset and ReplaceFrom overwrite it directly for genesis, tests and chain
// replacement); state-root
// computation and dry-runs work on snapshots whose accounts (sets included)
// are cloned by value, so committed state cannot be corrupted by a
// discarded run.

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// NewAccountStore returns an empty store.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]*Account)}
}

// Clone deep-copies the account, including the liked-content set.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	if a.LikedContentIDs != nil {
		cp.LikedContentIDs = make(map[string]bool, len(a.LikedContentIDs))
		for id := range a.LikedContentIDs {
			cp.LikedContentIDs[id] = true
		}
	}
	return &cp
}

// Get returns a clone of the committed account, if present.
func (s *AccountStore) Get(addr string) (*Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[addr]
	if !ok {
		return nil, false
	}
	return acct.Clone(), true
}

// Put commits a single account directly. Intended for genesis allocation
// and tests; block application goes through snapshots.
func (s *AccountStore) Put(acct *Account) {
	if acct == nil || acct.Address == "" {
		return
	}
	s.mu.Lock()
	s.accounts[acct.Address] = acct.Clone()
	s.mu.Unlock()
}

// Len returns the number of known accounts.
func (s *AccountStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

// Reset drops all committed accounts.
func (s *AccountStore) Reset() {
	s.mu.Lock()
	s.accounts = make(map[string]*Account)
	s.mu.Unlock()
}

// ReplaceFrom swaps in a deep copy of another store's committed map. The
// receiver keeps its identity so components holding the pointer observe the
// replacement.
func (s *AccountStore) ReplaceFrom(o *AccountStore) {
	o.mu.RLock()
	next := make(map[string]*Account, len(o.accounts))
	for addr, acct := range o.accounts {
		next[addr] = acct.Clone()
	}
	o.mu.RUnlock()

	s.mu.Lock()
	s.accounts = next
	s.mu.Unlock()
}

// Snapshot opens a copy-on-write view of the committed state.
func (s *AccountStore) Snapshot() *StateSnapshot {
	return &StateSnapshot{base: s, touched: make(map[string]*Account)}
}

// Get returns the snapshot's view of addr, cloning from the committed map on
// first touch. The bool reports whether the account existed anywhere.
func (sn *StateSnapshot) Get(addr string) (*Account, bool) {
	if acct, ok := sn.touched[addr]; ok {
		return acct, true
	}
	base, ok := sn.base.Get(addr)
	if !ok {
		return nil, false
	}
	sn.touched[addr] = base
	return base, true
}

// GetOrCreate returns the account, materializing a zero-balance default.
func (sn *StateSnapshot) GetOrCreate(addr string) *Account {
	if acct, ok := sn.Get(addr); ok {
		return acct
	}
	acct := &Account{Address: addr}
	sn.touched[addr] = acct
	return acct
}

// Put records an account mutation in the snapshot.
func (sn *StateSnapshot) Put(acct *Account) {
	if acct == nil || acct.Address == "" {
		return
	}
	sn.touched[acct.Address] = acct
}

// Credit adds amount to addr inside the snapshot. Implements the
// BalanceCrediting capability for the reward router.
func (sn *StateSnapshot) Credit(addr string, amount uint64) {
	if amount == 0 {
		return
	}
	acct := sn.GetOrCreate(addr)
	acct.Balance += amount
}

// Debit removes amount from addr, refusing to go negative.
func (sn *StateSnapshot) Debit(addr string, amount uint64) error {
	acct := sn.GetOrCreate(addr)
	if acct.Balance < amount {
		return ErrInsufficientBalance
	}
	acct.Balance -= amount
	return nil
}

// Commit publishes every touched account into the committed map atomically
// with respect to other store users.
func (s *AccountStore) Commit(sn *StateSnapshot) {
	if sn == nil {
		return
	}
	s.mu.Lock()
	for addr, acct := range sn.touched {
		s.accounts[addr] = acct.Clone()
	}
	s.mu.Unlock()
}

// StateRoot hashes the committed account map in canonical order.
func (s *AccountStore) StateRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stateRootOf(func(addr string) *Account { return s.accounts[addr] }, s.committedAddrs())
}

// committedAddrs must be called with at least a read lock held.
func (s *AccountStore) committedAddrs() []string {
	addrs := make([]string, 0, len(s.accounts))
	for a := range s.accounts {
		addrs = append(addrs, a)
	}
	return addrs
}

// StateRoot hashes the snapshot's merged view (committed + touched) without
// mutating either side.
func (sn *StateSnapshot) StateRoot() string {
	sn.base.mu.RLock()
	defer sn.base.mu.RUnlock()

	seen := make(map[string]struct{}, len(sn.base.accounts)+len(sn.touched))
	addrs := make([]string, 0, len(sn.base.accounts)+len(sn.touched))
	for a := range sn.base.accounts {
		addrs = append(addrs, a)
		seen[a] = struct{}{}
	}
	for a := range sn.touched {
		if _, dup := seen[a]; !dup {
			addrs = append(addrs, a)
		}
	}
	lookup := func(addr string) *Account {
		if acct, ok := sn.touched[addr]; ok {
			return acct
		}
		return sn.base.accounts[addr]
	}
	return stateRootOf(lookup, addrs)
}

// stateRootOf computes the deterministic root: accounts enumerated in
// lexicographic address order, each rendered as
// address:balance:nonce:sorted(liked_ids) and joined by '|'.
func stateRootOf(lookup func(string) *Account, addrs []string) string {
	sort.Strings(addrs)
	h := sha256.New()
	for i, addr := range addrs {
		acct := lookup(addr)
		if acct == nil {
			continue
		}
		if i > 0 {
			h.Write([]byte{'|'})
		}
		h.Write([]byte(addr))
		h.Write([]byte{':'})
		h.Write([]byte(strconv.FormatUint(acct.Balance, 10)))
		h.Write([]byte{':'})
		h.Write([]byte(strconv.FormatUint(acct.Nonce, 10)))
		h.Write([]byte{':'})
		if len(acct.LikedContentIDs) > 0 {
			ids := make([]string, 0, len(acct.LikedContentIDs))
			for id := range acct.LikedContentIDs {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			h.Write([]byte(strings.Join(ids, ",")))
		}
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}
