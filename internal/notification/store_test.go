package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigscope/sigscope/internal/errors"
)

func TestInMemoryStoreUnreadCount(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore(100)
	assert.Equal(t, 0, store.UnreadCount())

	n1 := NewNotification(TypeInfo, PriorityLow, "Test 1", "Message 1")
	n2 := NewNotification(TypeWarning, PriorityHigh, "Test 2", "Message 2")
	store.Save(n1)
	store.Save(n2)
	assert.Equal(t, 2, store.UnreadCount())

	require.NoError(t, store.MarkAsRead(n1.ID))
	assert.Equal(t, 1, store.UnreadCount())
	require.NoError(t, store.MarkAsRead(n1.ID))
	assert.Equal(t, 1, store.UnreadCount(), "marking twice must not double count")

	// Saving over an existing id replaces it.
	again, err := store.Get(n2.ID)
	require.NoError(t, err)
	again.Count = 3
	store.Save(again)
	assert.Equal(t, 1, store.UnreadCount())

	store.Delete(n2.ID)
	assert.Equal(t, 0, store.UnreadCount())
	store.Delete(n1.ID)
	assert.Equal(t, 0, store.UnreadCount())
}

func TestInMemoryStoreEvictsOldest(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore(2)
	base := time.Now()
	var ids []string
	for i := range 3 {
		n := NewNotification(TypeInfo, PriorityLow, "n", "m")
		n.Timestamp = base.Add(time.Duration(i) * time.Second)
		store.Save(n)
		ids = append(ids, n.ID)
	}

	_, err := store.Get(ids[0])
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))
	assert.Len(t, store.List(nil), 2)
	assert.Equal(t, 2, store.UnreadCount())
}

func TestInMemoryStoreListFilter(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore(0)
	base := time.Now()
	for i, typ := range []Type{TypeError, TypeWarning, TypeInfo, TypeError} {
		n := NewNotification(typ, PriorityMedium, "n", "m")
		n.Timestamp = base.Add(time.Duration(i) * time.Second)
		store.Save(n)
	}

	errs := store.List(&FilterOptions{Types: []Type{TypeError}})
	require.Len(t, errs, 2)
	assert.True(t, errs[0].Timestamp.After(errs[1].Timestamp), "newest first")

	since := base.Add(2 * time.Second)
	assert.Len(t, store.List(&FilterOptions{Since: &since}), 2)
	assert.Len(t, store.List(&FilterOptions{Limit: 1}), 1)
	assert.Empty(t, store.List(&FilterOptions{Status: []Status{StatusRead}}))
}

func TestStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore(10)
	n := NewNotification(TypeWarning, PriorityHigh, "t", "m").WithDetails([]string{"a"})
	store.Save(n)
	n.Details[0] = "mutated"

	got, err := store.Get(n.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Details)

	got.Title = "changed"
	again, err := store.Get(n.ID)
	require.NoError(t, err)
	assert.Equal(t, "t", again.Title)
}

func TestMarkUnknownNotification(t *testing.T) {
	t.Parallel()

	err := NewInMemoryStore(1).MarkAsRead("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotificationNotFound)
}
