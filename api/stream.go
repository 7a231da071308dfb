package api

import (
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"taskboard/domain"
)

// boardBroker wakes SSE subscribers of a department when its board changes.
type boardBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func newBoardBroker() *boardBroker {
	return &boardBroker{subs: make(map[string]map[chan struct{}]struct{})}
}

func (b *boardBroker) subscribe(departmentID string) chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	if b.subs[departmentID] == nil {
		b.subs[departmentID] = make(map[chan struct{}]struct{})
	}
	b.subs[departmentID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *boardBroker) unsubscribe(departmentID string, ch chan struct{}) {
	b.mu.Lock()
	delete(b.subs[departmentID], ch)
	if len(b.subs[departmentID]) == 0 {
		delete(b.subs, departmentID)
	}
	b.mu.Unlock()
}

func (b *boardBroker) notify(departmentID string) {
	b.mu.Lock()
	for ch := range b.subs[departmentID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

// notifyAll wakes every subscriber so each stream re-checks its session.
func (b *boardBroker) notifyAll() {
	b.mu.Lock()
	for _, subs := range b.subs {
		for ch := range subs {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
	b.mu.Unlock()
}

func (b *boardBroker) subscribers(departmentID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[departmentID])
}

// streamBoard sends the department's columns on connect and again after every
// change to that department's board. Each wake-up re-reads the session: once
// the user is no longer the session user or has lost access to the department,
// an end event is sent and the stream closes. It also closes on shutdown.
func streamBoard(d *Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		user := sessionUser(c)
		deptID := c.Param("id")
		if !domain.CanViewDepartment(user, deptID) {
			return forbidden(c)
		}
		ctx := c.Request().Context()
		if _, found, err := d.Departments.Get(ctx, deptID); err != nil {
			return internalError(c, "store", err)
		} else if !found {
			return notFound(c, "department")
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "stream unsupported"})
		}
		c.Response().WriteHeader(http.StatusOK)

		ch := d.broker.subscribe(deptID)
		defer d.broker.unsubscribe(deptID, ch)
		for {
			cols, err := d.Board.Columns(ctx, deptID)
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			data, err := sonic.ConfigStd.Marshal(cols)
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			if err := writeEvent(c, flusher, "board", data); err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				return nil
			case <-d.Done:
				return writeEvent(c, flusher, "end", []byte(`{"reason":"shutdown"}`))
			case <-ch:
			}

			current, found, err := d.Auth.CurrentUser(ctx)
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			if !found || current.ID != user.ID {
				return writeEvent(c, flusher, "end", []byte(`{"reason":"session expired"}`))
			}
			if !domain.CanViewDepartment(&current, deptID) {
				return writeEvent(c, flusher, "end", []byte(`{"reason":"forbidden"}`))
			}
		}
	}
}

func writeEvent(c echo.Context, flusher http.Flusher, name string, data []byte) error {
	w := c.Response()
	if _, err := w.Write([]byte("event: " + name + "\ndata: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
