// Package feed keeps the ordered list of moments shown to the user and drives
// paging through it: older history by cursor, newer items by time.
package feed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"moments/apperror"
	"moments/models"
)

// DefaultPageSize is the number of moments requested per page
const DefaultPageSize = 10

var (
	ErrClosed           = errors.New("feed controller is closed")
	ErrSubmitInProgress = errors.New("a moment is already being submitted")
)

// API is the part of the moments API client the controller needs
type API interface {
	CreateMoment(ctx context.Context, text string, authorName string) error
	ListMomentsByCursor(ctx context.Context, cursor *string, limit int) (*models.PagedResult, error)
	ListMomentsSince(ctx context.Context, fromTime time.Time, limit int) (*models.PagedResult, error)
}

// Operation names the asynchronous operation an event belongs to
type Operation int

const (
	OpNone Operation = iota
	OpLoadOlder
	OpLoadNewer
	OpSubmit
)

func (o Operation) String() string {
	switch o {
	case OpNone:
		return "none"
	case OpLoadOlder:
		return "load-older"
	case OpLoadNewer:
		return "load-newer"
	case OpSubmit:
		return "submit"
	}
	return "unknown"
}

// EventKind tells what an Event reports
type EventKind int

const (
	// EventChanged is sent after every change to the row list
	EventChanged EventKind = iota
	// EventFailed is sent when an operation failed. The loader is already gone.
	EventFailed
	// EventSubmitted is sent when a moment was accepted by the server
	EventSubmitted
)

func (k EventKind) String() string {
	switch k {
	case EventChanged:
		return "changed"
	case EventFailed:
		return "failed"
	case EventSubmitted:
		return "submitted"
	}
	return "unknown"
}

// Event is delivered to subscribers with a snapshot of the state it produced
type Event struct {
	Kind        EventKind
	Op          Operation
	Rows        []Row
	CanLoadMore bool
	Loading     bool
	Err         error
}

// Config holds the controller settings. Zero values fall back to defaults.
type Config struct {
	PageSize         int
	Workers          int
	QueueSize        int
	SubscriberBuffer int
}

// Controller owns the feed state. All state changes happen under mu, and the
// inFlight tag set inside it is what keeps paging single-flight.
type Controller struct {
	mu sync.Mutex

	api      API
	pageSize int

	items        []models.Moment
	cursor       *string
	hasMoreOlder bool
	inFlight     Operation
	loader       LoaderPosition
	submitting   bool
	closed       bool

	pool        *Pool
	broadcaster *Broadcaster
}

func New(ctx context.Context, api API, config Config) *Controller {
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 4
	}
	if config.SubscriberBuffer <= 0 {
		config.SubscriberBuffer = 64
	}

	c := &Controller{
		api:          api,
		pageSize:     config.PageSize,
		hasMoreOlder: true,
		pool:         NewPool(ctx, config.Workers, config.QueueSize),
		broadcaster:  NewBroadcaster(config.SubscriberBuffer),
	}
	c.pool.Start()
	return c
}

// Start loads the first page. Subscribe first to see its events.
func (c *Controller) Start() {
	c.LoadOlder()
}

// Close cancels any request in flight and closes all subscriber channels.
// Results arriving afterwards are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.inFlight = OpNone
	c.loader = LoaderNone
	c.submitting = false
	c.mu.Unlock()

	c.pool.Stop()
	subscribers := c.broadcaster.Count()
	c.broadcaster.Shutdown()
	log.WithField("subscribers", subscribers).Debug("Feed controller closed")
}

// Subscribe returns a key for Unsubscribe and a channel of events
func (c *Controller) Subscribe() (string, <-chan Event) {
	return c.broadcaster.Subscribe()
}

func (c *Controller) Unsubscribe(key string) {
	c.broadcaster.Unsubscribe(key)
}

// LoadOlder fetches the next page of older moments. It does nothing and
// returns false when there is nothing more to load or another load is
// running.
func (c *Controller) LoadOlder() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || !c.hasMoreOlder || c.inFlight != OpNone {
		return false
	}

	cursor := c.cursor
	limit := c.pageSize

	return c.beginLocked(OpLoadOlder, LoaderBottom, func(ctx context.Context) {
		result, err := c.api.ListMomentsByCursor(ctx, cursor, limit)
		c.finishOlder(result, err)
	}, log.Fields{
		"cursor": lo.FromPtr(cursor),
		"limit":  limit,
	})
}

// LoadNewer fetches moments added after the newest one in the feed. It does
// nothing and returns false on an empty feed or when another load is running.
func (c *Controller) LoadNewer() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || len(c.items) == 0 || c.inFlight != OpNone {
		return false
	}

	from := c.items[0].AddedAt
	limit := c.pageSize

	return c.beginLocked(OpLoadNewer, LoaderTop, func(ctx context.Context) {
		result, err := c.api.ListMomentsSince(ctx, from, limit)
		c.finishNewer(result, err)
	}, log.Fields{
		"from_time": models.FormatTime(from),
		"limit":     limit,
	})
}

// Refresh loads the first page on an empty feed and newer moments otherwise
func (c *Controller) Refresh() bool {
	c.mu.Lock()
	empty := len(c.items) == 0
	c.mu.Unlock()

	if empty {
		return c.LoadOlder()
	}
	return c.LoadNewer()
}

// OnScroll loads older moments once the visible window reaches the end of the
// list
func (c *Controller) OnScroll(firstVisible, visibleCount, total int) bool {
	if total > 0 && firstVisible+visibleCount == total {
		return c.LoadOlder()
	}
	return false
}

// Submit posts a new moment. Empty text fails right away with a validation
// error. The outcome is reported to subscribers as EventSubmitted or
// EventFailed; the feed itself is not changed until the next refresh.
func (c *Controller) Submit(text string, authorName string) error {
	text = strings.TrimSpace(text)
	authorName = strings.TrimSpace(authorName)

	if text == "" {
		return apperror.ValidationFailed("text", "text is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.submitting {
		return ErrSubmitInProgress
	}

	ok := c.pool.Submit(func(ctx context.Context) {
		err := c.api.CreateMoment(ctx, text, authorName)
		c.finishSubmit(err)
	})
	if !ok {
		return ErrClosed
	}
	c.submitting = true

	log.WithFields(log.Fields{
		"author": authorName,
		"length": len(text),
	}).Info("Submitting moment")

	return nil
}

// beginLocked moves into the given loading state and schedules job
func (c *Controller) beginLocked(op Operation, loader LoaderPosition, job Job, fields log.Fields) bool {
	c.inFlight = op
	c.loader = loader

	if !c.pool.Submit(job) {
		c.inFlight = OpNone
		c.loader = LoaderNone
		return false
	}

	log.WithFields(fields).WithField("op", op).Debug("Loading moments")
	c.notifyLocked(EventChanged, op, nil)
	return true
}

// endLocked returns to idle. It reports false when the controller was torn
// down and the result must be dropped.
func (c *Controller) endLocked(op Operation, err error) bool {
	if c.closed {
		log.WithField("op", op).Debug("Dropping result of closed feed controller")
		return false
	}

	c.inFlight = OpNone
	c.loader = LoaderNone

	if err != nil {
		log.WithFields(log.Fields{
			"op":    op,
			"kind":  apperror.Kind(err),
			"error": err,
		}).Warn("Loading moments failed")
		c.notifyLocked(EventFailed, op, err)
		return false
	}
	return true
}

func (c *Controller) finishOlder(result *models.PagedResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.endLocked(OpLoadOlder, err) {
		return
	}

	c.cursor = result.Cursor
	c.hasMoreOlder = result.HasMore
	if len(result.Items) > 0 {
		c.items = append(c.items, result.Items...)
	}

	log.WithFields(log.Fields{
		"count":    len(result.Items),
		"total":    len(c.items),
		"cursor":   lo.FromPtr(result.Cursor),
		"has_more": result.HasMore,
	}).Info("Loaded older moments")

	c.notifyLocked(EventChanged, OpLoadOlder, nil)
}

func (c *Controller) finishNewer(result *models.PagedResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.endLocked(OpLoadNewer, err) {
		return
	}

	if len(result.Items) > 0 {
		items := make([]models.Moment, 0, len(result.Items)+len(c.items))
		items = append(items, result.Items...)
		c.items = append(items, c.items...)
	}

	log.WithFields(log.Fields{
		"count": len(result.Items),
		"total": len(c.items),
	}).Info("Loaded newer moments")

	c.notifyLocked(EventChanged, OpLoadNewer, nil)
}

func (c *Controller) finishSubmit(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.submitting = false

	if err != nil {
		log.WithFields(log.Fields{
			"kind":  apperror.Kind(err),
			"error": err,
		}).Warn("Submitting moment failed")
		c.notifyLocked(EventFailed, OpSubmit, err)
		return
	}

	log.Info("Moment submitted")
	c.notifyLocked(EventSubmitted, OpSubmit, nil)
}

func (c *Controller) notifyLocked(kind EventKind, op Operation, err error) {
	c.broadcaster.Broadcast(Event{
		Kind:        kind,
		Op:          op,
		Rows:        buildRows(c.items, c.loader),
		CanLoadMore: c.hasMoreOlder,
		Loading:     c.inFlight != OpNone,
		Err:         err,
	})
}

// Snapshot returns the rows to display, with the loader row inline
func (c *Controller) Snapshot() []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	return buildRows(c.items, c.loader)
}

// Items returns a copy of the loaded moments, newest first
func (c *Controller) Items() []models.Moment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Moment(nil), c.items...)
}

// Cursor returns the cursor the next older page will be requested with
func (c *Controller) Cursor() *string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cursor == nil {
		return nil
	}
	return lo.ToPtr(*c.cursor)
}

// CanLoadMore reports whether older moments may still be available
func (c *Controller) CanLoadMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMoreOlder
}

// Loading reports whether a page load is in flight
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight != OpNone
}

// Submitting reports whether a new moment is waiting for the server
func (c *Controller) Submitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitting
}

// Loader returns where the loader row is currently shown
func (c *Controller) Loader() LoaderPosition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loader
}
