package limiter

import (
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/NodeNestor/CodeGate/common/config"
)

// CooldownEntry records an account's temporary exclusion from routing.
type CooldownEntry struct {
	Until    time.Time
	Reason   string
	Failures int
}

// CooldownManager keeps per-account cooldown entries with exponential backoff.
type CooldownManager struct {
	mu      sync.Mutex
	entries map[string]*CooldownEntry
	now     func() time.Time
}

// NewCooldownManager returns an empty manager.
func NewCooldownManager() *CooldownManager {
	return &CooldownManager{
		entries: make(map[string]*CooldownEntry),
		now:     time.Now,
	}
}

// Set records a failure for the account and starts or extends its cooldown.
// retryAfterSec, when positive, overrides the computed backoff; otherwise the
// duration is min(base*2^(n-1), max) seconds for the n-th consecutive failure.
func (m *CooldownManager) Set(accountID, reason string, retryAfterSec int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.entries[accountID]
	if entry == nil {
		entry = &CooldownEntry{}
		m.entries[accountID] = entry
	}
	entry.Failures++
	entry.Reason = reason

	var seconds int
	if retryAfterSec > 0 {
		seconds = retryAfterSec
	} else {
		seconds = config.CooldownBaseSeconds << (entry.Failures - 1)
		if entry.Failures > 10 || seconds > config.CooldownMaxSeconds {
			seconds = config.CooldownMaxSeconds
		}
	}
	entry.Until = m.now().Add(time.Duration(seconds) * time.Second)
}

// IsOnCooldown reports whether the account is cooled down, pruning the entry
// lazily once it expires.
func (m *CooldownManager) IsOnCooldown(accountID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[accountID]
	if !ok {
		return false
	}
	if !entry.Until.After(m.now()) {
		delete(m.entries, accountID)
		return false
	}
	return true
}

// Get returns a copy of the entry, expired or not, for diagnostics.
func (m *CooldownManager) Get(accountID string) (CooldownEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[accountID]
	if !ok {
		return CooldownEntry{}, false
	}
	return *entry, true
}

// Clear drops the entry, resetting the consecutive failure count.
func (m *CooldownManager) Clear(accountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, accountID)
}

// SortByCooldown stably reorders ids so that accounts not on cooldown keep
// their original order in front, followed by cooled-down accounts in ascending
// expiry order. Now is snapshotted once so an entry expiring mid-sort cannot
// produce an inconsistent ordering.
func (m *CooldownManager) SortByCooldown(ids []string) []string {
	m.mu.Lock()
	now := m.now()
	until := make(map[string]time.Time, len(ids))
	for _, id := range ids {
		if entry, ok := m.entries[id]; ok && entry.Until.After(now) {
			until[id] = entry.Until
		}
	}
	m.mu.Unlock()

	ordered := make([]string, len(ids))
	copy(ordered, ids)
	sort.SliceStable(ordered, func(i, j int) bool {
		ui, cooledI := until[ordered[i]]
		uj, cooledJ := until[ordered[j]]
		switch {
		case !cooledI && cooledJ:
			return true
		case cooledI && !cooledJ:
			return false
		case cooledI && cooledJ:
			return ui.Before(uj)
		default:
			return false
		}
	})
	return ordered
}

// ParseRetryAfter interprets a Retry-After header as integer seconds or an
// HTTP date. Unparseable input yields a 60 second default.
func ParseRetryAfter(header string) int {
	if header == "" {
		return 60
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 60
		}
		return secs
	}
	if t, err := http.ParseTime(header); err == nil {
		secs := int(time.Until(t).Seconds())
		if secs < 0 {
			return 0
		}
		return secs
	}
	return 60
}
