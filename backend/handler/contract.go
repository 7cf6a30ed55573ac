package handler

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/middleware"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/pkg/logger"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/service"
)

type ContractHandler struct {
	store    service.Store
	files    service.FileStorage
	notifier *service.NotificationService
	now      func() time.Time
}

func NewContractHandler(store service.Store, files service.FileStorage, notifier *service.NotificationService) *ContractHandler {
	return &ContractHandler{store: store, files: files, notifier: notifier, now: time.Now}
}

// ContractRequest is the editable part of a contract. Dates use YYYY-MM-DD.
type ContractRequest struct {
	ClientName      string               `json:"client_name" binding:"required"`
	ClientPhone     string               `json:"client_phone"`
	ClientEmail     string               `json:"client_email"`
	PropertyAddress string               `json:"property_address" binding:"required"`
	PropertyType    string               `json:"property_type"`
	RentalAmount    decimal.Decimal      `json:"rental_amount"`
	DepositAmount   decimal.Decimal      `json:"deposit_amount"`
	StartDate       string               `json:"start_date" binding:"required"`
	EndDate         string               `json:"end_date" binding:"required"`
	Status          model.ContractStatus `json:"status"`
	FilePath        string               `json:"contract_file_path"`
}

func (r *ContractRequest) apply(c *model.Contract) error {
	start, err := model.ParseDate(r.StartDate)
	if err != nil {
		return fmt.Errorf("%w: start_date: %v", service.ErrInvalidInput, err)
	}
	end, err := model.ParseDate(r.EndDate)
	if err != nil {
		return fmt.Errorf("%w: end_date: %v", service.ErrInvalidInput, err)
	}

	c.ClientName = strings.TrimSpace(r.ClientName)
	c.ClientPhone = r.ClientPhone
	c.ClientEmail = r.ClientEmail
	c.PropertyAddress = strings.TrimSpace(r.PropertyAddress)
	c.PropertyType = r.PropertyType
	c.RentalAmount = r.RentalAmount
	c.DepositAmount = r.DepositAmount
	c.StartDate = start
	c.EndDate = end
	c.FilePath = r.FilePath
	if r.Status != "" {
		c.Status = r.Status
	}
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	return c.Validate()
}

// List returns contracts, optionally filtered by status.
func (h *ContractHandler) List(c *gin.Context) {
	limit, offset, ok := paging(c)
	if !ok {
		return
	}

	q := service.ContractQuery{Limit: limit, Offset: offset}
	if raw := c.Query("status"); raw != "" {
		status := model.ContractStatus(raw)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
			return
		}
		q.Statuses = []model.ContractStatus{status}
	}

	contracts, err := h.store.ListContracts(c.Request.Context(), q)
	if err != nil {
		respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"contracts": contracts})
}

// Create stores a new contract and announces it to every active user.
func (h *ContractHandler) Create(c *gin.Context) {
	var req ContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	now := h.now()
	contract := model.Contract{
		Number:    model.NewContractNumber(now, strings.ReplaceAll(uuid.NewString(), "-", "")),
		CreatedBy: middleware.GetUserID(c),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := req.apply(&contract); err != nil {
		respondError(c, err, "")
		return
	}

	ctx := c.Request.Context()
	if err := h.store.CreateContract(ctx, &contract); err != nil {
		respondError(c, err, "")
		return
	}

	h.announce(ctx, &contract)

	c.JSON(http.StatusCreated, contract)
}

// announce sends the contract_created notice. Failures never fail the request.
func (h *ContractHandler) announce(ctx context.Context, contract *model.Contract) {
	users, err := h.store.ListUsers(ctx, service.UserQuery{ActiveOnly: true})
	if err != nil {
		logger.Warn(ctx, "failed to list users for contract notice", "contract_id", contract.ID, "error", err)
		return
	}
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}

	msg := h.notifier.Renderer().ContractCreated(contract)
	n, err := h.notifier.SendCustom(ctx, h.store, service.CustomNotification{
		UserIDs:    ids,
		Title:      msg.Title,
		Message:    msg.Body,
		Type:       model.TagContractCreated,
		ContractID: &contract.ID,
	})
	if err != nil {
		logger.Warn(ctx, "contract notice incomplete", "contract_id", contract.ID, "created", n, "error", err)
		return
	}
	logger.Debug(ctx, "contract notice sent", "contract_id", contract.ID, "created", n)
}

// Get returns a single contract
func (h *ContractHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	contract, err := h.store.GetContract(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Contract not found")
		return
	}

	c.JSON(http.StatusOK, contract)
}

// Update replaces the editable fields of a contract.
func (h *ContractHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req ContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ctx := c.Request.Context()
	contract, err := h.store.GetContract(ctx, id)
	if err != nil {
		respondError(c, err, "Contract not found")
		return
	}
	if err := req.apply(&contract); err != nil {
		respondError(c, err, "")
		return
	}
	contract.UpdatedAt = h.now()

	if err := h.store.UpdateContract(ctx, &contract); err != nil {
		respondError(c, err, "Contract not found")
		return
	}

	c.JSON(http.StatusOK, contract)
}

// Delete deletes a contract
func (h *ContractHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.store.DeleteContract(c.Request.Context(), id); err != nil {
		respondError(c, err, "Contract not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Contract deleted"})
}

// Download returns a time-limited URL for the stored contract file.
func (h *ContractHandler) Download(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	contract, err := h.store.GetContract(ctx, id)
	if err != nil {
		respondError(c, err, "Contract not found")
		return
	}
	if contract.FilePath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contract file not found"})
		return
	}

	url, err := h.files.GetPresignedURL(ctx, contract.FilePath)
	if err != nil {
		logger.Error(ctx, "failed to presign contract file", "object", contract.FilePath, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to generate URL"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":      url,
		"filename": path.Base(contract.FilePath),
	})
}
