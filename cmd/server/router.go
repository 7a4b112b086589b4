package main

import (
	"errors"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sf7293/tmanager/internal/bootstrap"
	"github.com/sf7293/tmanager/internal/domain"
	"github.com/sf7293/tmanager/internal/errval"
	"github.com/sf7293/tmanager/internal/server"
)

const (
	headerUserID    = "X-User-ID"
	headerUserName  = "X-User-Name"
	headerUserStaff = "X-User-Staff"

	actorContextKey = "actor"
	dueDateLayout   = "2006-01-02"
)

// updateTaskRequest is the body of PUT/PATCH /tasks/:id; absent fields stay unchanged
type updateTaskRequest struct {
	Title          *string   `json:"title" binding:"omitempty,max=50"`
	Description    *string   `json:"description"`
	Status         *string   `json:"status" binding:"omitempty,validate_status"`
	Priority       *string   `json:"priority" binding:"omitempty,validate_priority"`
	Tags           *[]string `json:"tags" binding:"omitempty,dive,validate_tag"`
	DueTo          *string   `json:"due_to" binding:"omitempty,datetime=2006-01-02"`
	PreviousStatus *string   `json:"previous_status"`
}

func (r updateTaskRequest) toTaskUpdate() (domain.TaskUpdate, error) {
	update := domain.TaskUpdate{
		Title:       r.Title,
		Description: r.Description,
	}
	if r.Status != nil {
		status := domain.TaskStatus(*r.Status)
		update.Status = &status
	}
	if r.Priority != nil {
		priority := domain.TaskPriority(*r.Priority)
		update.Priority = &priority
	}
	if r.Tags != nil {
		tags := make([]domain.TaskTag, 0, len(*r.Tags))
		for _, t := range *r.Tags {
			tags = append(tags, domain.TaskTag(t))
		}
		update.Tags = &tags
	}
	if r.DueTo != nil {
		due, err := time.Parse(dueDateLayout, *r.DueTo)
		if err != nil {
			return domain.TaskUpdate{}, err
		}
		update.DueDate = &due
	}

	return update, nil
}

func setupHTTPServer(serverLogic *server.ServerLogic, isReady func() bool, checks []bootstrap.HealthCheck) *gin.Engine {
	r := gin.Default()
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		err := v.RegisterValidation("validate_status", validateStatus)
		if err != nil {
			log.Fatal("failed to bind validation rule of validate_status")
		}

		err = v.RegisterValidation("validate_priority", validatePriority)
		if err != nil {
			log.Fatal("failed to bind validation rule of validate_priority")
		}

		err = v.RegisterValidation("validate_tag", validateTag)
		if err != nil {
			log.Fatal("failed to bind validation rule of validate_tag")
		}
	}

	tasks := r.Group("/tasks", identify(), requireActor())
	tasks.GET("/:id", func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}

		task, err := serverLogic.GetTask(c, id)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"task": task})
	})

	updateTask := func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}

		req := updateTaskRequest{}
		// Request binding and validation
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Info("error occurred while binding request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.PreviousStatus != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "previous_status is read-only"})
			return
		}

		update, err := req.toTaskUpdate()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "due_to must be a date formatted as " + dueDateLayout})
			return
		}

		task, err := serverLogic.UpdateTask(c, id, actorFrom(c), update)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"task": task})
	}
	tasks.PATCH("/:id", updateTask)
	tasks.PUT("/:id", updateTask)

	tasks.GET("/:id/history", func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}

		taskHistory, err := serverLogic.GetTaskHistory(c, id)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"history": taskHistory})
	})

	tasks.DELETE("/:id", func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}

		if err := serverLogic.DeleteTask(c, id, actorFrom(c)); err != nil {
			writeError(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	})

	boards := r.Group("/boards", identify(), requireActor())
	boards.GET("/:id", func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}

		board, err := serverLogic.GetBoard(c, id)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"board": board})
	})
	boards.DELETE("/:id", func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}

		if err := serverLogic.DeleteBoard(c, id, actorFrom(c)); err != nil {
			writeError(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	})

	bootstrap.RegisterHealthRoutes(r, isReady, checks)

	return r
}

// identify reads the acting user from the headers set by the authenticating gateway
func identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		idStr := c.GetHeader(headerUserID)
		if idStr == "" {
			c.Next()
			return
		}

		id, err := strconv.ParseInt(idStr, 10, 32)
		if err != nil {
			slog.Info("Invalid user id header", "header", headerUserID, "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errval.ErrUnauthenticated.Error()})
			return
		}
		isStaff, _ := strconv.ParseBool(c.GetHeader(headerUserStaff))

		c.Set(actorContextKey, &domain.Actor{
			ID:       int32(id),
			Username: c.GetHeader(headerUserName),
			IsStaff:  isStaff,
		})
		c.Next()
	}
}

func requireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actorFrom(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errval.ErrUnauthenticated.Error()})
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) *domain.Actor {
	v, ok := c.Get(actorContextKey)
	if !ok {
		return nil
	}
	actor, _ := v.(*domain.Actor)

	return actor
}

func pathID(c *gin.Context) (int32, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 32)
	if err != nil {
		slog.Info("Invalid id parameter, error occurred while casting id str to int", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}

	return int32(id), true
}

// writeError maps the taxonomy to a status code; server-side failures are not detailed to the caller
func writeError(c *gin.Context, err error) {
	status := errval.HTTPStatus(err)
	switch {
	case status == http.StatusInternalServerError:
		c.JSON(status, gin.H{"error": errval.ErrInternal.Error()})
	case status == http.StatusServiceUnavailable:
		c.Header("Retry-After", "1")
		c.JSON(status, gin.H{"error": errval.ErrPersistence.Error()})
	case errors.Is(err, errval.ErrConflict):
		c.Header("Retry-After", "1")
		c.JSON(status, gin.H{"error": err.Error()})
	default:
		c.JSON(status, gin.H{"error": err.Error()})
	}
}

var validateStatus validator.Func = func(fl validator.FieldLevel) bool {
	return domain.TaskStatus(fl.Field().String()).IsKnown()
}

var validatePriority validator.Func = func(fl validator.FieldLevel) bool {
	return domain.TaskPriority(fl.Field().String()).IsKnown()
}

var validateTag validator.Func = func(fl validator.FieldLevel) bool {
	return domain.TaskTag(fl.Field().String()).IsKnown()
}
