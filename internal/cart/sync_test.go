package cart

import (
	"context"
	"errors"
	"testing"

	pkgerrors "github.com/HuuThai2910/wisdom-books-sub000/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestNewSyncerRequiresDeps(t *testing.T) {
	_, err := NewSyncer(nil, newFakeRemote())
	require.Error(t, err)
	_, err = NewSyncer(NewStore(), nil)
	require.Error(t, err)
}

func TestSyncerFetchLoadsCart(t *testing.T) {
	h := newHarness(t)
	h.remote.cart = []Item{line(1, book(1, "10.00", 5), 2, true)}

	require.NoError(t, h.syncer.Fetch(context.Background()))

	require.Equal(t, StatusSucceeded, h.store.Status())
	require.Len(t, h.store.Items(), 1)
	require.Equal(t, []string{"fetch:fulfilled"}, h.observer.ops)
}

func TestSyncerFetchFailureKeepsItems(t *testing.T) {
	h := newHarness(t, line(1, book(1, "10.00", 5), 2, true))
	h.remote.failWith(OpFetch, errors.New("connection refused"))

	err := h.syncer.Fetch(context.Background())
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))

	require.Equal(t, StatusFailed, h.store.Status())
	require.Equal(t, "could not load your cart", h.store.Err())
	require.Len(t, h.store.Items(), 1)
	require.Equal(t, []NoticeKind{NoticeRemoteFailure}, noticeKinds(h.inbox.Drain()))

	h.remote.failWith(OpFetch, nil)
	require.NoError(t, h.syncer.Fetch(context.Background()))
	require.Empty(t, h.store.Err())
}

func TestSyncerAddRejectsBeyondStockWithoutCalling(t *testing.T) {
	b := book(7, "9.00", 2)
	h := newHarness(t, line(1, b, 2, true))

	_, err := h.syncer.Add(context.Background(), b, 1)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	require.Empty(t, h.remote.callsFor(OpAdd))
	require.Equal(t, 2, h.mustItem(t, 1).Quantity)
	require.NotEqual(t, StatusFailed, h.store.Status())

	notices := h.inbox.Drain()
	require.Equal(t, []NoticeKind{NoticeExceedsStock}, noticeKinds(notices))
	require.Equal(t, int64(1), notices[0].ItemID)
}

func TestSyncerAddRejectsInvalidQuantityAndOutOfStock(t *testing.T) {
	h := newHarness(t)

	_, err := h.syncer.Add(context.Background(), book(1, "9.00", 5), 0)
	require.Error(t, err)
	_, err = h.syncer.Add(context.Background(), book(2, "9.00", 0), 1)
	require.Error(t, err)

	require.Empty(t, h.remote.Calls())
	require.Equal(t, []NoticeKind{NoticeInvalidQuantity, NoticeOutOfStock}, noticeKinds(h.inbox.Drain()))
}

func TestSyncerAddUpsertsServerItem(t *testing.T) {
	b := book(7, "9.00", 5)
	h := newHarness(t, line(1, b, 1, true))

	item, err := h.syncer.Add(context.Background(), b, 2)
	require.NoError(t, err)
	require.Equal(t, 3, item.Quantity)
	require.Len(t, h.store.Items(), 1)
	require.Equal(t, 3, h.mustItem(t, 1).Quantity)

	other := book(8, "4.00", 5)
	h.remote.books[other.ID] = other
	_, err = h.syncer.Add(context.Background(), other, 1)
	require.NoError(t, err)
	require.Len(t, h.store.Items(), 2)
}

func TestSyncerAddConflictRaisesStockNotice(t *testing.T) {
	b := book(7, "9.00", 5)
	h := newHarness(t)
	h.remote.books[b.ID] = b
	h.remote.failWith(OpAdd, pkgerrors.New(pkgerrors.CodeConflict, "only 1 copy left"))

	_, err := h.syncer.Add(context.Background(), b, 2)
	require.Error(t, err)

	require.Equal(t, StatusFailed, h.store.Status())
	require.Equal(t, "only 1 copy left", h.store.Err())
	notices := h.inbox.Drain()
	require.Equal(t, []NoticeKind{NoticeStockConflict}, noticeKinds(notices))
	require.Equal(t, OpAdd, notices[0].Op)
}

func TestSyncerRemoveAndClear(t *testing.T) {
	b := book(7, "9.00", 5)
	h := newHarness(t, line(1, b, 1, true), line(2, b, 1, true), line(3, b, 1, true))

	require.Error(t, h.syncer.Remove(context.Background(), nil))
	require.NoError(t, h.syncer.Remove(context.Background(), []int64{1, 2}))
	require.Len(t, h.store.Items(), 1)

	h.remote.failWith(OpClear, errors.New("boom"))
	require.Error(t, h.syncer.Clear(context.Background()))
	require.Len(t, h.store.Items(), 1)

	h.remote.failWith(OpClear, nil)
	require.NoError(t, h.syncer.Clear(context.Background()))
	require.Empty(t, h.store.Items())
}

func TestSyncerUpdateQuantityKeepsNewerLocalEdit(t *testing.T) {
	b := book(7, "9.00", 5)
	h := newHarness(t, line(1, b, 1, true))

	older, err := h.store.PatchQuantity(1, 2)
	require.NoError(t, err)
	_, err = h.store.PatchQuantity(1, 3)
	require.NoError(t, err)

	_, err = h.syncer.UpdateQuantity(context.Background(), 1, 2, older)
	require.NoError(t, err)

	require.Equal(t, 3, h.mustItem(t, 1).Quantity)
	require.Equal(t, 1, h.observer.stale)
}

func TestSyncerUpdateQuantityLastWriteWinsWhenStaleChecksOff(t *testing.T) {
	b := book(7, "9.00", 5)
	store := NewStore()
	remote := newFakeRemote(line(1, b, 1, true))
	syncer, err := NewSyncer(store, remote, WithDiscardStale(false))
	require.NoError(t, err)
	store.ReplaceAll(remote.cart)

	older, _ := store.PatchQuantity(1, 2)
	_, _ = store.PatchQuantity(1, 3)
	_, err = syncer.UpdateQuantity(context.Background(), 1, 2, older)
	require.NoError(t, err)

	item, _ := store.Item(1)
	require.Equal(t, 2, item.Quantity)
}

func TestSyncerWaitReturnsAfterBackgroundWrites(t *testing.T) {
	store := NewStore()
	syncer, err := NewSyncer(store, newFakeRemote())
	require.NoError(t, err)

	release := make(chan struct{})
	syncer.Go(func() { <-release })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, syncer.Wait(ctx), context.Canceled)

	close(release)
	require.NoError(t, syncer.Wait(context.Background()))
}
