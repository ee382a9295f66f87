package feed_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moments/apperror"
	"moments/feed"
	"moments/models"
)

const waitTimeout = 2 * time.Second

type reply struct {
	result *models.PagedResult
	err    error
}

// call is one request seen by fakeAPI. The test answers it through reply.
type call struct {
	op       string
	cursor   *string
	from     time.Time
	limit    int
	text     string
	author   string
	reply    chan reply
	canceled chan struct{}
}

func (c *call) respond(result *models.PagedResult, err error) {
	c.reply <- reply{result: result, err: err}
}

type fakeAPI struct {
	calls chan *call
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{calls: make(chan *call, 16)}
}

func (f *fakeAPI) do(ctx context.Context, c *call) (*models.PagedResult, error) {
	c.reply = make(chan reply, 1)
	c.canceled = make(chan struct{})
	f.calls <- c

	select {
	case r := <-c.reply:
		return r.result, r.err
	case <-ctx.Done():
		close(c.canceled)
		return nil, apperror.NetworkFailure(ctx.Err())
	}
}

func (f *fakeAPI) CreateMoment(ctx context.Context, text string, authorName string) error {
	_, err := f.do(ctx, &call{op: "create", text: text, author: authorName})
	return err
}

func (f *fakeAPI) ListMomentsByCursor(ctx context.Context, cursor *string, limit int) (*models.PagedResult, error) {
	return f.do(ctx, &call{op: "cursor", cursor: cursor, limit: limit})
}

func (f *fakeAPI) ListMomentsSince(ctx context.Context, fromTime time.Time, limit int) (*models.PagedResult, error) {
	return f.do(ctx, &call{op: "since", from: fromTime, limit: limit})
}

func (f *fakeAPI) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for an API call")
		return nil
	}
}

func (f *fakeAPI) assertNoCall(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected API call %q", c.op)
	case <-time.After(50 * time.Millisecond):
	}
}

// waitEvent returns the first event matching kind and op, skipping others
func waitEvent(t *testing.T, events <-chan feed.Event, kind feed.EventKind, op feed.Operation) feed.Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case evt, ok := <-events:
			require.True(t, ok, "event channel closed")
			if evt.Kind == kind && evt.Op == op && (kind != feed.EventChanged || !evt.Loading) {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event of %s", kind, op)
			return feed.Event{}
		}
	}
}

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// page builds moments with ids from..to (descending added time)
func page(from, to int64) []models.Moment {
	var items []models.Moment
	for id := from; id >= to; id-- {
		items = append(items, models.Moment{
			Id:      id,
			Text:    fmt.Sprintf("moment %d", id),
			AddedAt: base.Add(time.Duration(id) * time.Minute),
		})
	}
	return items
}

func newController(t *testing.T, api feed.API) (*feed.Controller, <-chan feed.Event) {
	t.Helper()
	ctrl := feed.New(context.Background(), api, feed.Config{PageSize: 10})
	_, events := ctrl.Subscribe()
	t.Cleanup(ctrl.Close)
	return ctrl, events
}

func momentIds(rows []feed.Row) []int64 {
	return lo.FilterMap(rows, func(r feed.Row, _ int) (int64, bool) {
		return r.Moment.Id, r.Kind == feed.RowMoment
	})
}

func TestStartLoadsFirstPage(t *testing.T) {
	fake := newFakeAPI()
	ctrl, events := newController(t, fake)

	ctrl.Start()

	c := fake.next(t)
	assert.Equal(t, "cursor", c.op)
	assert.Nil(t, c.cursor)
	assert.Equal(t, 10, c.limit)

	loading := <-events
	assert.Equal(t, feed.EventChanged, loading.Kind)
	assert.True(t, loading.Loading)
	assert.Equal(t, []feed.Row{{Kind: feed.RowLoaderBottom}}, loading.Rows)
	assert.Equal(t, feed.LoaderBottom, ctrl.Loader())

	c.respond(models.NewPagedResult(page(10, 1), lo.ToPtr("X")), nil)

	evt := waitEvent(t, events, feed.EventChanged, feed.OpLoadOlder)
	assert.Equal(t, []int64{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}, momentIds(evt.Rows))
	assert.Len(t, evt.Rows, 10, "loader must be gone")
	assert.True(t, evt.CanLoadMore)
	assert.False(t, evt.Loading)

	assert.Equal(t, "X", lo.FromPtr(ctrl.Cursor()))
	assert.True(t, ctrl.CanLoadMore())
	assert.Equal(t, feed.LoaderNone, ctrl.Loader())

	require.True(t, ctrl.LoadOlder())
	c = fake.next(t)
	assert.Equal(t, "X", lo.FromPtr(c.cursor), "next page uses the returned cursor")
}

func TestLoadOlderIsSingleFlight(t *testing.T) {
	fake := newFakeAPI()
	ctrl, events := newController(t, fake)
	ctrl.Start()

	c := fake.next(t)
	for i := 0; i < 5; i++ {
		assert.False(t, ctrl.LoadOlder())
		assert.False(t, ctrl.Refresh())
		assert.False(t, ctrl.OnScroll(0, 1, 1))
	}
	fake.assertNoCall(t)

	rows := ctrl.Snapshot()
	assert.Len(t, lo.Filter(rows, func(r feed.Row, _ int) bool { return r.IsLoader() }), 1)

	c.respond(models.NewPagedResult(page(3, 1), lo.ToPtr("A")), nil)
	waitEvent(t, events, feed.EventChanged, feed.OpLoadOlder)

	assert.False(t, ctrl.Loading())
	assert.True(t, ctrl.LoadOlder())
	fake.next(t)
	fake.assertNoCall(t)
}

func TestCursorSequence(t *testing.T) {
	fake := newFakeAPI()
	ctrl, events := newController(t, fake)
	ctrl.Start()

	steps := []struct {
		wantRequestCursor *string
		replyCursor       *string
		items             []models.Moment
		wantMore          bool
	}{
		{wantRequestCursor: nil, replyCursor: lo.ToPtr("A"), items: page(40, 31), wantMore: true},
		{wantRequestCursor: lo.ToPtr("A"), replyCursor: lo.ToPtr("B"), items: page(30, 21), wantMore: true},
		{wantRequestCursor: lo.ToPtr("B"), replyCursor: lo.ToPtr("C"), items: page(20, 11), wantMore: true},
		{wantRequestCursor: lo.ToPtr("C"), replyCursor: nil, items: page(10, 5), wantMore: false},
	}

	for i, step := range steps {
		if i > 0 {
			require.True(t, ctrl.LoadOlder(), "step %d", i)
		}
		c := fake.next(t)
		assert.Equal(t, step.wantRequestCursor, c.cursor, "step %d", i)

		c.respond(models.NewPagedResult(step.items, step.replyCursor), nil)
		waitEvent(t, events, feed.EventChanged, feed.OpLoadOlder)

		assert.Equal(t, step.replyCursor, ctrl.Cursor(), "step %d", i)
		assert.Equal(t, step.wantMore, ctrl.CanLoadMore(), "step %d", i)
	}

	assert.Len(t, ctrl.Items(), 36)
	assert.Equal(t, int64(40), ctrl.Items()[0].Id)
	assert.Equal(t, int64(5), ctrl.Items()[35].Id)

	assert.False(t, ctrl.LoadOlder(), "no more pages")
	assert.False(t, ctrl.OnScroll(30, 6, 36))
	fake.assertNoCall(t)
}

func TestLoadOlderFailureKeepsState(t *testing.T) {
	fake := newFakeAPI()
	ctrl, events := newController(t, fake)
	ctrl.Start()

	fake.next(t).respond(models.NewPagedResult(page(10, 1), lo.ToPtr("X")), nil)
	waitEvent(t, events, feed.EventChanged, feed.OpLoadOlder)

	require.True(t, ctrl.LoadOlder())
	c := fake.next(t)
	c.respond(nil, apperror.ServerFailure(500, "boom"))

	evt := waitEvent(t, events, feed.EventFailed, feed.OpLoadOlder)
	assert.ErrorIs(t, evt.Err, apperror.ErrServer)
	assert.True(t, apperror.IsConnectivity(evt.Err))
	assert.Len(t, evt.Rows, 10)
	assert.False(t, lo.SomeBy(evt.Rows, func(r feed.Row) bool { return r.IsLoader() }))
	assert.False(t, evt.Loading)

	assert.Equal(t, "X", lo.FromPtr(ctrl.Cursor()))
	assert.True(t, ctrl.CanLoadMore())
	assert.False(t, ctrl.Loading())

	require.True(t, ctrl.LoadOlder(), "retry is possible after a failure")
	assert.Equal(t, "X", lo.FromPtr(fake.next(t).cursor))
}

func TestLoadNewerOnEmptyFeedIsNoop(t *testing.T) {
	fake := newFakeAPI()
	ctrl, events := newController(t, fake)

	assert.False(t, ctrl.LoadNewer())
	fake.assertNoCall(t)
	assert.Empty(t, ctrl.Snapshot())
	assert.Equal(t, feed.LoaderNone, ctrl.Loader())
	assert.Empty(t, events)
}

func TestRefreshOnEmptyFeedLoadsOlder(t *testing.T) {
	fake := newFakeAPI()
	ctrl, _ := newController(t, fake)
	ctrl.Start()

	c := fake.next(t)
	c.respond(nil, apperror.NetworkFailure(errors.New("offline")))

	require.Eventually(t, func() bool { return !ctrl.Loading() }, waitTimeout, 5*time.Millisecond)
	assert.Empty(t, ctrl.Items())

	require.True(t, ctrl.Refresh())
	assert.Equal(t, "cursor", fake.next(t).op)
}

func TestLoadNewerPrepends(t *testing.T) {
	fake := newFakeAPI()
	ctrl, events := newController(t, fake)
	ctrl.Start()

	fake.next(t).respond(models.NewPagedResult(page(10, 1), lo.ToPtr("X")), nil)
	waitEvent(t, events, feed.EventChanged, feed.OpLoadOlder)

	require.True(t, ctrl.Refresh())
	c := fake.next(t)
	assert.Equal(t, "since", c.op)
	assert.Equal(t, base.Add(10*time.Minute), c.from, "newest moment's added time")
	assert.Equal(t, 10, c.limit)

	loading := ctrl.Snapshot()
	require.Len(t, loading, 11)
	assert.Equal(t, feed.RowLoaderTop, loading[0].Kind)
	assert.Equal(t, 1, len(lo.Filter(loading, func(r feed.Row, _ int) bool { return r.IsLoader() })))

	assert.False(t, ctrl.LoadOlder(), "older paging waits for the refresh")

	c.respond(models.NewPagedResult(page(12, 11), lo.ToPtr("ignored")), nil)
	evt := waitEvent(t, events, feed.EventChanged, feed.OpLoadNewer)

	assert.Equal(t, []int64{12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}, momentIds(evt.Rows))
	assert.Equal(t, "X", lo.FromPtr(ctrl.Cursor()), "refresh never touches the backward cursor")
	assert.True(t, ctrl.CanLoadMore())
}

func TestLoadNewerEmptyResult(t *testing.T) {
	fake := newFakeAPI()
	ctrl, events := newController(t, fake)
	ctrl.Start()

	fake.next(t).respond(models.NewPagedResult(page(10, 1), nil), nil)
	waitEvent(t, events, feed.EventChanged, feed.OpLoadOlder)
	assert.False(t, ctrl.CanLoadMore())
	before := ctrl.Items()

	require.True(t, ctrl.LoadNewer())
	fake.next(t).respond(models.NewPagedResult([]models.Moment{}, nil), nil)
	waitEvent(t, events, feed.EventChanged, feed.OpLoadNewer)

	assert.Equal(t, before, ctrl.Items())
	assert.False(t, ctrl.Loading())
	assert.Equal(t, feed.LoaderNone, ctrl.Loader())
	assert.False(t, ctrl.CanLoadMore())
}

func TestLoadNewerFailure(t *testing.T) {
	fake := newFakeAPI()
	ctrl, events := newController(t, fake)
	ctrl.Start()

	fake.next(t).respond(models.NewPagedResult(page(2, 1), lo.ToPtr("X")), nil)
	waitEvent(t, events, feed.EventChanged, feed.OpLoadOlder)

	require.True(t, ctrl.LoadNewer())
	fake.next(t).respond(nil, apperror.ParseFailure(errors.New("bad json")))

	evt := waitEvent(t, events, feed.EventFailed, feed.OpLoadNewer)
	assert.ErrorIs(t, evt.Err, apperror.ErrParse)
	assert.Equal(t, []int64{2, 1}, momentIds(evt.Rows))
	assert.Len(t, evt.Rows, 2)
	assert.Equal(t, "X", lo.FromPtr(ctrl.Cursor()))
}

func TestSubmit(t *testing.T) {
	fake := newFakeAPI()
	ctrl, events := newController(t, fake)
	ctrl.Start()
	fake.next(t).respond(models.NewPagedResult([]models.Moment{}, nil), nil)
	waitEvent(t, events, feed.EventChanged, feed.OpLoadOlder)

	t.Run("whitespace text is rejected locally", func(t *testing.T) {
		err := ctrl.Submit("  ", "kari")
		require.Error(t, err)
		assert.ErrorIs(t, err, apperror.ErrValidation)
		assert.False(t, apperror.IsConnectivity(err))

		var appErr *apperror.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "text", appErr.Field)

		fake.assertNoCall(t)
		assert.False(t, ctrl.Submitting())
	})

	t.Run("anonymous moment is accepted", func(t *testing.T) {
		require.NoError(t, ctrl.Submit("  hello ", ""))
		assert.True(t, ctrl.Submitting())
		assert.ErrorIs(t, ctrl.Submit("again", ""), feed.ErrSubmitInProgress)

		c := fake.next(t)
		assert.Equal(t, "create", c.op)
		assert.Equal(t, "hello", c.text)
		assert.Equal(t, "", c.author)
		c.respond(nil, nil)

		waitEvent(t, events, feed.EventSubmitted, feed.OpSubmit)
		assert.False(t, ctrl.Submitting())
		assert.Empty(t, ctrl.Items(), "submitted moments show up on the next refresh")

		assert.Equal(t, models.AnonymousAuthor, models.Moment{Text: "hello"}.DisplayAuthor())
	})

	t.Run("server failure is reported", func(t *testing.T) {
		require.NoError(t, ctrl.Submit("hello", "ola"))
		fake.next(t).respond(nil, apperror.ServerFailure(503, ""))

		evt := waitEvent(t, events, feed.EventFailed, feed.OpSubmit)
		assert.ErrorIs(t, evt.Err, apperror.ErrServer)
		assert.False(t, ctrl.Submitting())
	})
}

func TestSubmitDoesNotBlockPaging(t *testing.T) {
	fake := newFakeAPI()
	ctrl, _ := newController(t, fake)
	ctrl.Start()
	older := fake.next(t)

	require.NoError(t, ctrl.Submit("hello", ""))
	create := fake.next(t)
	assert.Equal(t, "create", create.op)
	assert.True(t, ctrl.Loading())

	create.respond(nil, nil)
	older.respond(models.NewPagedResult(page(1, 1), nil), nil)
	require.Eventually(t, func() bool { return !ctrl.Loading() && !ctrl.Submitting() }, waitTimeout, 5*time.Millisecond)
}

func TestCloseCancelsInFlight(t *testing.T) {
	fake := newFakeAPI()
	ctrl := feed.New(context.Background(), fake, feed.Config{})
	_, events := ctrl.Subscribe()
	ctrl.Start()

	c := fake.next(t)
	ctrl.Close()

	select {
	case <-c.canceled:
	case <-time.After(waitTimeout):
		t.Fatal("request was not canceled")
	}

	// Channel is drained and closed without a result event
	for evt := range events {
		assert.NotEqual(t, feed.EventFailed, evt.Kind)
	}

	assert.Empty(t, ctrl.Items())
	assert.False(t, ctrl.Loading())
	assert.Equal(t, feed.LoaderNone, ctrl.Loader())
	assert.False(t, ctrl.LoadOlder())
	assert.False(t, ctrl.Refresh())
	assert.ErrorIs(t, ctrl.Submit("hello", ""), feed.ErrClosed)

	ctrl.Close()
}

func TestUnsubscribe(t *testing.T) {
	fake := newFakeAPI()
	ctrl := feed.New(context.Background(), fake, feed.Config{})
	defer ctrl.Close()

	key, events := ctrl.Subscribe()
	ctrl.Unsubscribe(key)
	_, ok := <-events
	assert.False(t, ok)

	// No subscribers left, state still advances
	ctrl.Start()
	fake.next(t).respond(models.NewPagedResult(page(3, 1), nil), nil)
	require.Eventually(t, func() bool { return len(ctrl.Items()) == 3 }, waitTimeout, 5*time.Millisecond)
	assert.False(t, ctrl.CanLoadMore())
}

func TestOnScroll(t *testing.T) {
	tests := []struct {
		name                       string
		firstVisible, count, total int
		want                       bool
	}{
		{name: "empty list", firstVisible: 0, count: 0, total: 0, want: false},
		{name: "middle of list", firstVisible: 2, count: 5, total: 10, want: false},
		{name: "end of list", firstVisible: 5, count: 5, total: 10, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeAPI()
			ctrl := feed.New(context.Background(), fake, feed.Config{})
			defer ctrl.Close()

			assert.Equal(t, tt.want, ctrl.OnScroll(tt.firstVisible, tt.count, tt.total))
		})
	}
}
