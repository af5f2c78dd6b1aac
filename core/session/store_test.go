package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_InsertAndGet(t *testing.T) {
	s := NewStore(10)
	require.NoError(t, s.InsertNewAgreement("a", SuiteLegacy, NewLegacyComplete([]byte("key"))))

	km, ok := s.GetKeyMaterial("a")
	require.True(t, ok)
	assert.NotNil(t, km.LegacyComplete)
	assert.Equal(t, []byte("key"), km.LegacyComplete.Key)
}

func TestStore_DuplicateInsertFails(t *testing.T) {
	s := NewStore(10)
	require.NoError(t, s.InsertNewAgreement("a", SuiteLegacy, NewLegacyComplete([]byte("key"))))
	err := s.InsertNewAgreement("a", SuiteLegacy, NewLegacyComplete([]byte("other")))
	assert.Error(t, err)
}

func TestStore_UpdateMissingFails(t *testing.T) {
	s := NewStore(10)
	err := s.UpdateKeyMaterial("missing", NewLegacyComplete([]byte("x")))
	assert.Error(t, err)
}

func TestStore_UpdateTransitionsHybridPendingToComplete(t *testing.T) {
	s := NewStore(10)
	require.NoError(t, s.InsertNewAgreement("a", SuiteHybrid, NewHybridPending([]byte("x"), []byte("k"))))

	_, ok := s.GetSharedSecret("a")
	assert.False(t, ok, "pending hybrid session has no usable secret yet")

	require.NoError(t, s.UpdateKeyMaterial("a", NewHybridComplete([]byte("session-key"))))
	secret, ok := s.GetSharedSecret("a")
	require.True(t, ok)
	assert.Equal(t, []byte("session-key"), secret)
}

func TestStore_RemoveIsIdempotent(t *testing.T) {
	s := NewStore(10)
	require.NoError(t, s.InsertNewAgreement("a", SuiteLegacy, NewLegacyComplete([]byte("key"))))

	s.RemoveAgreement("a")
	assert.Equal(t, 0, s.Len())

	s.RemoveAgreement("a") // must not panic or error
	s.RemoveAgreement("never-existed")
}

func TestStore_EvictsLeastRecentlyUsedOnOverflow(t *testing.T) {
	s := NewStore(2)
	require.NoError(t, s.InsertNewAgreement("a", SuiteLegacy, NewLegacyComplete([]byte("1"))))
	require.NoError(t, s.InsertNewAgreement("b", SuiteLegacy, NewLegacyComplete([]byte("2"))))

	// Touch "a" so "b" becomes the least-recently-used entry.
	_, _ = s.GetKeyMaterial("a")

	require.NoError(t, s.InsertNewAgreement("c", SuiteLegacy, NewLegacyComplete([]byte("3"))))

	_, ok := s.GetKeyMaterial("b")
	assert.False(t, ok, "b should have been silently evicted")

	_, ok = s.GetKeyMaterial("a")
	assert.True(t, ok)
	_, ok = s.GetKeyMaterial("c")
	assert.True(t, ok)
	assert.Equal(t, 2, s.Len())
}

func TestStore_InsertTouchesRecencyToo(t *testing.T) {
	s := NewStore(2)
	require.NoError(t, s.InsertNewAgreement("a", SuiteLegacy, NewLegacyComplete([]byte("1"))))
	require.NoError(t, s.InsertNewAgreement("b", SuiteLegacy, NewLegacyComplete([]byte("2"))))
	require.NoError(t, s.InsertNewAgreement("c", SuiteLegacy, NewLegacyComplete([]byte("3"))))

	_, ok := s.GetKeyMaterial("a")
	assert.False(t, ok, "a should have been evicted as the oldest insert")
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(50)
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func(i int) {
			id := fmt.Sprintf("session-%d", i)
			_ = s.InsertNewAgreement(id, SuiteLegacy, NewLegacyComplete([]byte("k")))
			_, _ = s.GetSharedSecret(id)
			s.RemoveAgreement(id)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 20; i++ {
		<-done
	}
}
