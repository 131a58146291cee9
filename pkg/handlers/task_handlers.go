package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"costscan/pkg/registry"
	"costscan/pkg/response"

	"github.com/gin-gonic/gin"
)

// GetTask returns one task record by its public id
func (h *HandlerService) GetTask(c *gin.Context) {
	taskID := c.Param("task_id")

	task, err := h.tasks.Get(h.ctx, taskID)
	if err != nil {
		if errors.Is(err, registry.ErrTaskNotFound) {
			response.Error(c, http.StatusNotFound, "task not found", nil)
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to load task", err)
		return
	}

	response.OK(c, task)
}

// ListAccountTasks returns the recent task history of one cloud account
func (h *HandlerService) ListAccountTasks(c *gin.Context) {
	accountID := c.Param("account_id")

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, http.StatusBadRequest, "invalid limit parameter", nil)
			return
		}
		limit = parsed
	}

	tasks, err := h.tasks.ListByAccount(h.ctx, accountID, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list tasks", err)
		return
	}

	response.OK(c, gin.H{
		"cloud_account_id": accountID,
		"tasks":            tasks,
		"count":            len(tasks),
	})
}
