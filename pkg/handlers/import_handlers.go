package handlers

import (
	"errors"
	"net/http"

	"costscan/pkg/importer"
	"costscan/pkg/logger"
	"costscan/pkg/registry"
	"costscan/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TriggerImport starts an import run for one cloud account. The run executes
// in the background; the task record tracks its progress.
func (h *HandlerService) TriggerImport(c *gin.Context) {
	accountID := c.Param("account_id")

	account, err := h.accounts.Get(h.ctx, accountID)
	if err != nil {
		if errors.Is(err, registry.ErrAccountNotFound) {
			response.Error(c, http.StatusNotFound, "cloud account not found", nil)
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to load cloud account", err)
		return
	}

	if !account.Enabled {
		response.Error(c, http.StatusConflict, "cloud account is disabled", nil)
		return
	}

	go func() {
		if _, err := h.reports.ImportReport(h.ctx, account); err != nil {
			logger.Error("triggered import failed",
				zap.String("cloud_account_id", account.ID),
				zap.Error(err))
		}
	}()

	response.Accepted(c, gin.H{
		"cloud_account_id": account.ID,
		"status":           "started",
	})
}

// TriggerRecalculate reprices an account's raw records from its cost model
// and rebuilds the ledger.
func (h *HandlerService) TriggerRecalculate(c *gin.Context) {
	accountID := c.Param("account_id")

	account, err := h.accounts.Get(h.ctx, accountID)
	if err != nil {
		if errors.Is(err, registry.ErrAccountNotFound) {
			response.Error(c, http.StatusNotFound, "cloud account not found", nil)
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to load cloud account", err)
		return
	}

	go func() {
		if err := h.reports.RecalculateRawExpenses(h.ctx, account); err != nil {
			logger.Error("triggered recalculation failed",
				zap.String("cloud_account_id", account.ID),
				zap.Error(err))
		}
	}()

	response.Accepted(c, gin.H{
		"cloud_account_id": account.ID,
		"status":           "started",
	})
}

// DeleteAccountData tears down all pipeline data of a cloud account
func (h *HandlerService) DeleteAccountData(c *gin.Context) {
	accountID := c.Param("account_id")

	if _, err := h.accounts.Get(h.ctx, accountID); err != nil {
		if errors.Is(err, registry.ErrAccountNotFound) {
			response.Error(c, http.StatusNotFound, "cloud account not found", nil)
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to load cloud account", err)
		return
	}

	if err := h.reports.DeleteAccountData(h.ctx, accountID); err != nil {
		if errors.Is(err, importer.ErrAccountDisabled) {
			response.Error(c, http.StatusConflict, "cloud account is disabled", nil)
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to delete account data", err)
		return
	}

	response.OK(c, gin.H{
		"cloud_account_id": accountID,
		"status":           "deleted",
	})
}
