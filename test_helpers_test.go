package fold

// test_helpers_test.go contains shared test doubles for fold package tests.
// The account domain below is deliberately unrelated to shopping carts.

import (
	"errors"
	"fmt"
	"sync"
)

// =============================================================================
// Shared Test Logger
// =============================================================================

type testLogger struct {
	mu        sync.Mutex
	debugLogs []string
	infoLogs  []string
	warnLogs  []string
	errorLogs []string
}

func newTestLogger() *testLogger {
	return &testLogger{}
}

func (l *testLogger) Debug(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugLogs = append(l.debugLogs, msg)
}

func (l *testLogger) Info(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLogs = append(l.infoLogs, msg)
}

func (l *testLogger) Warn(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnLogs = append(l.warnLogs, msg)
}

func (l *testLogger) Error(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLogs = append(l.errorLogs, msg)
}

func (l *testLogger) errorMessages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errorLogs...)
}

// =============================================================================
// Account test domain
// =============================================================================

type accountEvent interface {
	isAccountEvent()
}

type accountOpened struct {
	AccountID string `json:"accountId"`
	Owner     string `json:"owner"`
}

type deposited struct {
	Amount int `json:"amount"`
}

type withdrawn struct {
	Amount int `json:"amount"`
}

// legacyEvent is a variant the reducer does not know about.
type legacyEvent struct {
	Note string `json:"note"`
}

func (accountOpened) isAccountEvent() {}
func (deposited) isAccountEvent()     {}
func (withdrawn) isAccountEvent()     {}
func (legacyEvent) isAccountEvent()   {}

func (accountOpened) EventType() string { return "account-opened" }
func (deposited) EventType() string     { return "deposited" }
func (withdrawn) EventType() string     { return "withdrawn" }

type account struct {
	ID      string
	Owner   string
	Balance int
	Applied int
}

var (
	errAccountOpen      = errors.New("account already open")
	errInsufficientFund = errors.New("insufficient funds")
)

func evolveAccount(current *account, event accountEvent) (account, error) {
	if opened, ok := event.(accountOpened); ok {
		if current != nil {
			return account{}, errAccountOpen
		}
		return account{ID: opened.AccountID, Owner: opened.Owner, Applied: 1}, nil
	}
	if current == nil {
		return account{}, ErrStreamNotFound
	}

	next := *current
	next.Applied++
	switch e := event.(type) {
	case deposited:
		next.Balance += e.Amount
	case withdrawn:
		if e.Amount > next.Balance {
			return account{}, errInsufficientFund
		}
		next.Balance -= e.Amount
	default:
		return account{}, NewUnknownEventError(fmt.Sprintf("%T", event))
	}
	return next, nil
}

func registerAccountEvents(store *EventStore) {
	store.RegisterEvents(accountOpened{}, deposited{}, withdrawn{})
}
