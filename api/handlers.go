package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
	"taskboard/events"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Auth == nil || d.Departments == nil || d.Board == nil || d.Sessions == nil {
		panic("api.Register: missing dependency")
	}
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	if d.broker == nil {
		d.broker = newBoardBroker()
	}
	deps := &d

	e.JSONSerializer = JSONSerializer{}
	e.GET("/healthz", healthz(deps))

	g := e.Group("/api", observe(deps.Logger), GzipRequestMiddleware())
	g.POST("/register", register(deps))
	g.POST("/session", login(deps))

	authed := g.Group("", requireSession(deps))
	authed.GET("/session", getSession())
	authed.DELETE("/session", logout(deps))

	authed.GET("/departments", listDepartments(deps))
	authed.POST("/departments", createDepartment(deps))
	authed.GET("/departments/:id/board", getBoard(deps))
	authed.POST("/departments/:id/tasks", createTask(deps))
	authed.GET("/departments/:id/stream", streamBoard(deps))
	authed.PUT("/tasks/:id/status", moveTask(deps))

	admin := authed.Group("/users", requireAdmin())
	admin.GET("", listUsers(deps))
	admin.POST("", createUser(deps))
	admin.PUT("/:id/role", updateRole(deps))
	admin.PUT("/:id/departments/:deptId", assignDepartment(deps))
	admin.DELETE("/:id/departments/:deptId", removeDepartment(deps))
}

func healthz(d *Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		if d.Health == nil {
			return c.NoContent(http.StatusOK)
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		if err := d.Health.Ping(ctx); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "store unavailable"})
		}
		return c.NoContent(http.StatusOK)
	}
}

// timed runs fn and charges its duration to the request's store time.
func timed(c echo.Context, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(c.Request().Context())
	metricsFrom(c).ObserveStore(time.Since(start))
	return err
}

func respond(c echo.Context, status int, body any, items int) error {
	m := metricsFrom(c)
	m.SetItemsReturned(items)
	start := time.Now()
	err := c.JSON(status, body)
	m.ObserveEncode(time.Since(start))
	if err != nil {
		m.SetErrorStage("encode_response")
	}
	return err
}

func (d *Deps) issueSession(user domain.User) (sessionResponse, error) {
	token, exp, err := d.Sessions.Issue(user.ID)
	if err != nil {
		return sessionResponse{}, err
	}
	d.dispatch(events.New(events.UserLoggedIn, "user", user.ID, user.ID, nil))
	d.broker.notifyAll()
	return sessionResponse{User: user, Token: token, ExpiresAt: &exp}, nil
}

// register is the public sign-up. The requested role is ignored.
func register(d *Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req registerRequest
		if err := decodeBody(c, &req); err != nil {
			return badRequest(c, "invalid body")
		}
		var (
			user    domain.User
			started bool
		)
		err := timed(c, func(ctx context.Context) (err error) {
			user, started, err = d.Auth.Register(ctx, strings.TrimSpace(req.Email), req.Password, req.Name, domain.RoleUser)
			return err
		})
		if err != nil {
			return domainError(c, "register", err)
		}
		d.dispatch(events.New(events.UserRegistered, "user", user.ID, user.ID, map[string]any{"role": user.Role}))

		resp := sessionResponse{User: user}
		if started {
			if resp, err = d.issueSession(user); err != nil {
				return internalError(c, "token", err)
			}
		}
		return respond(c, http.StatusCreated, resp, 1)
	}
}

func login(d *Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req loginRequest
		if err := decodeBody(c, &req); err != nil {
			return badRequest(c, "invalid body")
		}
		var user domain.User
		err := timed(c, func(ctx context.Context) (err error) {
			user, err = d.Auth.Login(ctx, strings.TrimSpace(req.Email), req.Password)
			return err
		})
		if err != nil {
			return domainError(c, "login", err)
		}
		resp, err := d.issueSession(user)
		if err != nil {
			return internalError(c, "token", err)
		}
		return respond(c, http.StatusOK, resp, 1)
	}
}

func getSession() echo.HandlerFunc {
	return func(c echo.Context) error {
		return respond(c, http.StatusOK, sessionResponse{User: *sessionUser(c)}, 1)
	}
}

func logout(d *Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		user := sessionUser(c)
		if err := timed(c, d.Auth.Logout); err != nil {
			return internalError(c, "store", err)
		}
		d.dispatch(events.New(events.UserLoggedOut, "user", user.ID, user.ID, nil))
		d.broker.notifyAll()
		return c.NoContent(http.StatusNoContent)
	}
}

func listUsers(d *Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var users []domain.User
		err := timed(c, func(ctx context.Context) (err error) {
			users, err = d.Auth.AllUsers(ctx)
			return err
		})
		if err != nil {
			return internalError(c, "store", err)
		}
		return respond(c, http.StatusOK, usersResponse{Users: users}, len(users))
	}
}

// createUser lets an admin add an account with any role. Failures are
// reported with a single generic message.
func createUser(d *Deps) echo.HandlerFunc {
	const failed = "failed to create user"
	return func(c echo.Context) error {
		var req registerRequest
		if err := decodeBody(c, &req); err != nil {
			return badRequest(c, failed)
		}
		var user domain.User
		err := timed(c, func(ctx context.Context) (err error) {
			user, _, err = d.Auth.Register(ctx, strings.TrimSpace(req.Email), req.Password, req.Name, req.Role)
			return err
		})
		if err != nil {
			status := statusForError(err)
			if status == http.StatusInternalServerError {
				c.Logger().Error(err)
			}
			metricsFrom(c).SetErrorStage("create_user")
			return c.JSON(status, errorResponse{Error: failed})
		}
		d.dispatch(events.New(events.UserRegistered, "user", user.ID, sessionUser(c).ID, map[string]any{"role": user.Role}))
		return respond(c, http.StatusCreated, user, 1)
	}
}

func updateRole(d *Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req roleRequest
		if err := decodeBody(c, &req); err != nil {
			return badRequest(c, "invalid body")
		}
		var user domain.User
		err := timed(c, func(ctx context.Context) (err error) {
			user, err = d.Auth.UpdateUserRole(ctx, c.Param("id"), req.Role)
			return err
		})
		if err != nil {
			return domainError(c, "update_role", err)
		}
		d.dispatch(events.New(events.UserRoleUpdated, "user", user.ID, sessionUser(c).ID, map[string]any{"role": user.Role}))
		d.broker.notifyAll()
		return respond(c, http.StatusOK, user, 1)
	}
}

func assignDepartment(d *Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		deptID := c.Param("deptId")
		var (
			user  domain.User
			found bool
		)
		err := timed(c, func(ctx context.Context) (err error) {
			if _, found, err = d.Departments.Get(ctx, deptID); err != nil || !found {
				return err
			}
			user, err = d.Auth.AssignToDepartment(ctx, c.Param("id"), deptID)
			return err
		})
		if err != nil {
			return domainError(c, "assign_department", err)
		}
		if !found {
			return notFound(c, "department")
		}
		d.dispatch(events.New(events.UserDepartmentAssigned, "user", user.ID, sessionUser(c).ID, map[string]any{"departmentId": deptID}))
		return respond(c, http.StatusOK, user, 1)
	}
}

func removeDepartment(d *Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		deptID := c.Param("deptId")
		var user domain.User
		err := timed(c, func(ctx context.Context) (err error) {
			user, err = d.Auth.RemoveFromDepartment(ctx, c.Param("id"), deptID)
			return err
		})
		if err != nil {
			return domainError(c, "remove_department", err)
		}
		d.dispatch(events.New(events.UserDepartmentRemoved, "user", user.ID, sessionUser(c).ID, map[string]any{"departmentId": deptID}))
		d.broker.notify(deptID)
		return respond(c, http.StatusOK, user, 1)
	}
}

func listDepartments(d *Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		user := sessionUser(c)
		var depts []domain.Department
		err := timed(c, func(ctx context.Context) error {
			visible, err := d.Departments.ListVisible(ctx, user)
			if err != nil {
				return err
			}
			users, err := d.Auth.AllUsers(ctx)
			if err != nil {
				return err
			}
			depts = domain.WithMembers(visible, users)
			return nil
		})
		if err != nil {
			return internalError(c, "store", err)
		}
		return respond(c, http.StatusOK, departmentsResponse{Departments: depts}, len(depts))
	}
}

func createDepartment(d *Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req departmentRequest
		if err := decodeBody(c, &req); err != nil {
			return badRequest(c, "invalid body")
		}
		user := sessionUser(c)
		var dept domain.Department
		err := timed(c, func(ctx context.Context) (err error) {
			dept, err = d.Departments.Create(ctx, req.Name, req.Description, user.ID)
			return err
		})
		if err != nil {
			return domainError(c, "create_department", err)
		}
		d.dispatch(events.New(events.DepartmentCreated, "department", dept.ID, user.ID, map[string]any{"name": dept.Name}))
		return respond(c, http.StatusCreated, dept, 1)
	}
}

func getBoard(d *Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		deptID := c.Param("id")
		if !domain.CanViewDepartment(sessionUser(c), deptID) {
			return forbidden(c)
		}
		var (
			resp  boardResponse
			found bool
		)
		err := timed(c, func(ctx context.Context) (err error) {
			if resp.Department, found, err = d.Departments.Get(ctx, deptID); err != nil || !found {
				return err
			}
			users, err := d.Auth.AllUsers(ctx)
			if err != nil {
				return err
			}
			resp.Department = domain.WithMembers([]domain.Department{resp.Department}, users)[0]
			resp.Columns, err = d.Board.Columns(ctx, deptID)
			return err
		})
		if err != nil {
			return internalError(c, "store", err)
		}
		if !found {
			return notFound(c, "department")
		}
		items := 0
		for _, col := range resp.Columns {
			items += len(col.Tasks)
		}
		return respond(c, http.StatusOK, resp, items)
	}
}

func createTask(d *Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		user := sessionUser(c)
		deptID := c.Param("id")
		if !domain.CanCreateTask(user, deptID) {
			return forbidden(c)
		}
		var req taskRequest
		if err := decodeBody(c, &req); err != nil {
			return badRequest(c, "invalid body")
		}
		ctx := c.Request().Context()

		key := strings.TrimSpace(c.Request().Header.Get(IdempotencyKeyHeader))
		if key != "" && d.Deduper != nil {
			added, err := d.Deduper.Add(ctx, user.ID, key)
			if err != nil {
				return internalError(c, "dedupe", err)
			}
			if !added {
				metricsFrom(c).SetErrorStage("duplicate")
				return c.JSON(http.StatusConflict, errorResponse{Error: "duplicate request"})
			}
		}

		var (
			task    domain.Task
			created bool
			found   bool
		)
		err := timed(c, func(ctx context.Context) (err error) {
			if _, found, err = d.Departments.Get(ctx, deptID); err != nil || !found {
				return err
			}
			task, created, err = d.Board.CreateTask(ctx, user, deptID, domain.TaskFields{
				Title:       req.Title,
				Description: req.Description,
				Status:      req.Status,
				Priority:    req.Priority,
				AssignedTo:  req.AssignedTo,
			})
			return err
		})
		if err != nil || !found || !created {
			if key != "" && d.Deduper != nil {
				if rerr := d.Deduper.Remove(context.WithoutCancel(ctx), user.ID, key); rerr != nil {
					d.Logger.Errorf("dedupe rollback failed, err: %v, key: %s, user: %s", rerr, key, user.ID)
				}
			}
		}
		switch {
		case err != nil:
			return domainError(c, "create_task", err)
		case !found:
			return notFound(c, "department")
		case !created:
			return forbidden(c)
		}

		d.dispatch(events.New(events.TaskCreated, "task", task.ID, user.ID, map[string]any{
			"departmentId": deptID,
			"status":       task.Status,
		}))
		d.broker.notify(deptID)
		return respond(c, http.StatusCreated, task, 1)
	}
}

func moveTask(d *Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req moveRequest
		if err := decodeBody(c, &req); err != nil {
			return badRequest(c, "invalid body")
		}
		if !req.Status.Valid() {
			return domainError(c, "move_task", domain.ErrInvalidStatus)
		}
		user := sessionUser(c)
		taskID := c.Param("id")

		var (
			task  domain.Task
			found bool
			moved bool
			from  domain.Status
		)
		err := timed(c, func(ctx context.Context) (err error) {
			var current domain.Task
			if current, found, err = d.Board.Task(ctx, taskID); err != nil || !found {
				return err
			}
			if !domain.CanMoveTask(user, current) {
				return errForbidden
			}
			from = current.Status
			task, moved, err = d.Board.MoveTask(ctx, taskID, req.Status)
			return err
		})
		switch {
		case errors.Is(err, errForbidden):
			return forbidden(c)
		case err != nil:
			return domainError(c, "move_task", err)
		case !found || !moved:
			return notFound(c, "task")
		}

		d.dispatch(events.New(events.TaskMoved, "task", task.ID, user.ID, map[string]any{
			"departmentId": task.DepartmentID,
			"from":         from,
			"to":           task.Status,
		}))
		d.broker.notify(task.DepartmentID)
		return respond(c, http.StatusOK, task, 1)
	}
}
