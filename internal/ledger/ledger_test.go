package ledger

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebitCredit_Idempotent(t *testing.T) {
	led := New(1000)

	bal, err := led.Debit("u1", "r1", 25)
	assert.NoError(t, err)
	assert.Equal(t, int64(975), bal)

	// replaying the same debit must not re-charge
	bal, err = led.Debit("u1", "r1", 25)
	assert.NoError(t, err)
	assert.Equal(t, int64(975), bal)

	bal, err = led.Credit("u1", "r1", 47)
	assert.NoError(t, err)
	assert.Equal(t, int64(1022), bal)

	bal, err = led.Credit("u1", "r1", 47)
	assert.NoError(t, err)
	assert.Equal(t, int64(1022), bal)

	// exactly one debit and one credit in the history
	hist := led.GetHistory("u1")
	assert.Len(t, hist, 2)
}

func TestDebit_InsufficientFunds(t *testing.T) {
	led := New(10)

	bal, err := led.Debit("u1", "r1", 25)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(10), bal)

	// nothing was written
	assert.Empty(t, led.GetHistory("u1"))
	assert.Equal(t, int64(10), led.GetBalance("u1"))
}

func TestDebitCredit_InvalidArguments(t *testing.T) {
	led := New(1000)

	_, err := led.Debit("u1", "r1", 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = led.Debit("u1", "r1", -5)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = led.Debit("", "r1", 5)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = led.Debit("u1", "", 5)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = led.Credit("u1", "r1", -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// zero credit is a legal push-style event
	bal, err := led.Credit("u1", "r1", 0)
	assert.NoError(t, err)
	assert.Equal(t, int64(1000), bal)

	assert.Empty(t, led.GetHistory("u2"), "failed ops must not write events")
}

func TestLedger_LazyAccountCreation(t *testing.T) {
	led := New(1000)
	assert.Equal(t, int64(1000), led.GetBalance("newcomer"))
}

func TestHistory_NewestFirst(t *testing.T) {
	led := New(1000)

	for i := 0; i < 5; i++ {
		_, err := led.Debit("u1", fmt.Sprintf("r%d", i), 10)
		assert.NoError(t, err)
	}

	hist := led.GetHistory("u1")
	assert.Len(t, hist, 5)
	assert.Equal(t, "r4", hist[0].RoundID)
	assert.Equal(t, "r0", hist[4].RoundID)
}

// Concurrent replays of the same (player, round, kind) must change the
// balance exactly once, whatever the interleaving.
func TestConcurrentIdempotency(t *testing.T) {
	led := New(1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = led.Debit("u1", "round-x", 100)
		}()
		go func() {
			defer wg.Done()
			_, _ = led.Credit("u1", "round-x", 190)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000-100+190), led.GetBalance("u1"))
	assert.Len(t, led.GetHistory("u1"), 2)
}

// Different accounts never serialize against each other, and the
// ledger/balance pair stays conserved for each of them.
func TestConcurrentDistinctAccounts(t *testing.T) {
	led := New(1000)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			u := fmt.Sprintf("u%d", n)
			for r := 0; r < 10; r++ {
				round := fmt.Sprintf("r%d", r)
				_, err := led.Debit(u, round, 10)
				assert.NoError(t, err)
				_, err = led.Credit(u, round, 19)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		u := fmt.Sprintf("u%d", i)
		assert.Equal(t, int64(1000+10*9), led.GetBalance(u))
	}
}

// Balance must always equal starting balance + credits - debits.
func TestConservation(t *testing.T) {
	led := New(1000)

	_, _ = led.Debit("u1", "r1", 25)
	_, _ = led.Credit("u1", "r1", 47)
	_, _ = led.Debit("u1", "r2", 50)
	_, _ = led.Credit("u1", "r2", 0)
	_, _ = led.Debit("u1", "r3", 100)

	var credits, debits int64
	for _, e := range led.GetHistory("u1") {
		if e.Kind == KindCredit {
			credits += e.Amount
		} else {
			debits += e.Amount
		}
	}
	assert.Equal(t, int64(1000)+credits-debits, led.GetBalance("u1"))
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	led := New(1000)
	_, _ = led.Debit("u1", "r1", 25)
	_, _ = led.Credit("u1", "r1", 47)
	_, _ = led.Debit("u2", "r1", 25)

	snap := led.Snapshot()
	assert.Equal(t, int64(1022), snap.Balances["u1"])
	assert.Equal(t, int64(975), snap.Balances["u2"])
	assert.Len(t, snap.Events, 3)

	restored := New(1000)
	restored.Restore(snap)
	assert.Equal(t, int64(1022), restored.GetBalance("u1"))
	assert.Equal(t, int64(975), restored.GetBalance("u2"))

	// the idempotency index must survive the restore
	bal, err := restored.Debit("u1", "r1", 25)
	assert.NoError(t, err)
	assert.Equal(t, int64(1022), bal, "restored debit must be a no-op replay")
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	store := NewFileStore(path)

	// empty load
	_, ok, err := store.Load()
	assert.NoError(t, err)
	assert.False(t, ok)

	led := New(1000)
	_, _ = led.Debit("u1", "r1", 25)
	assert.NoError(t, store.Save(led.Snapshot()))

	snap, ok, err := store.Load()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(975), snap.Balances["u1"])
	assert.Len(t, snap.Events, 1)
	assert.Equal(t, KindDebit, snap.Events[0].Kind)
}
