package http

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/blockon/contracts-service/internal/http/middleware"
	"github.com/blockon/contracts-service/internal/model"
	"github.com/blockon/contracts-service/internal/service"
)

type Handler struct {
	contracts *service.ContractService
	users     *service.UserService
	uploadDir string
	log       zerolog.Logger
}

func NewHandler(contracts *service.ContractService, users *service.UserService, uploadDir string, log zerolog.Logger) *Handler {
	return &Handler{contracts: contracts, users: users, uploadDir: uploadDir, log: log}
}

func (h *Handler) Register(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	api := router.Group("/api")
	api.Use(authMiddleware)

	api.GET("/users/account-address", h.resolveAccountAddress)
	api.GET("/users/emails", h.searchEmails)

	api.POST("/contracts/register", h.registerContract)
	api.GET("/contracts", h.listContracts)
	api.POST("/contracts/photo", h.uploadPhoto)
	api.GET("/contracts/:index/paper", h.contractPaper)
	api.GET("/contracts/export", h.exportContracts)
}

type registerContractRequest struct {
	SellerEmail     string `json:"seller_email" binding:"required"`
	BuyerEmail      string `json:"buyer_email" binding:"required"`
	BuildingType    string `json:"building_type" binding:"required"`
	BuildingName    string `json:"building_name"`
	BuildingAddress string `json:"building_address"`
	PhotoPath       string `json:"photo_path"`
	ContractDate    string `json:"contract_date" binding:"required"`
	ContractType    int16  `json:"contract_type" binding:"required"`
}

type contractResponse struct {
	ContractIndex   int64  `json:"contract_index"`
	AgentAddress    string `json:"agent_address"`
	SellerAddress   string `json:"seller_address"`
	BuyerAddress    string `json:"buyer_address"`
	BuildingType    string `json:"building_type"`
	BuildingName    string `json:"building_name"`
	BuildingAddress string `json:"building_address"`
	PhotoPath       string `json:"photo_path"`
	ContractDate    string `json:"contract_date"`
	ContractType    int16  `json:"contract_type"`
	CreatedAt       string `json:"created_at"`
}

func (h *Handler) registerContract(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	var req registerContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contractDate, err := parseDate(req.ContractDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract_date"})
		return
	}

	contract, err := h.contracts.Register(c.Request.Context(), service.RegisterInput{
		Principal:       principal,
		SellerEmail:     req.SellerEmail,
		BuyerEmail:      req.BuyerEmail,
		BuildingType:    model.BuildingType(strings.ToUpper(strings.TrimSpace(req.BuildingType))),
		BuildingName:    req.BuildingName,
		BuildingAddress: req.BuildingAddress,
		PhotoPath:       req.PhotoPath,
		ContractDate:    contractDate,
		ContractType:    model.ContractType(req.ContractType),
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": toContractResponse(*contract)})
}

func (h *Handler) listContracts(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	contracts, err := h.contracts.List(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}

	out := make([]contractResponse, 0, len(contracts))
	for _, contract := range contracts {
		out = append(out, toContractResponse(contract))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *Handler) resolveAccountAddress(c *gin.Context) {
	identifier := c.Query("email")
	if identifier == "" {
		identifier = c.Query("eth_address")
	}

	user, err := h.users.ResolveAccountAddress(c.Request.Context(), identifier)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"accountAddress": user.AccountAddress}})
}

func (h *Handler) searchEmails(c *gin.Context) {
	emails, err := h.users.SearchEmails(c.Request.Context(), c.Query("query"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": emails})
}

func (h *Handler) uploadPhoto(c *gin.Context) {
	file, err := c.FormFile("thumbnail")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "thumbnail file is required"})
		return
	}

	name := uuid.NewString() + strings.ToLower(filepath.Ext(file.Filename))
	path := filepath.Join(h.uploadDir, name)
	if err := c.SaveUploadedFile(file, path); err != nil {
		h.log.Error().Err(err).Msg("save uploaded photo failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"path": path}})
}

func (h *Handler) contractPaper(c *gin.Context) {
	index, err := strconv.ParseInt(c.Param("index"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract index"})
		return
	}

	result, err := h.contracts.GeneratePaper(c.Request.Context(), index)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, "application/pdf", result.Content)
}

func (h *Handler) exportContracts(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	result, err := h.contracts.ExportLedger(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", result.Content)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrIdentityNotFound), errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInsufficientFunds), errors.Is(err, service.ErrSubmissionRejected):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrConfirmationTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func toContractResponse(contract model.Contract) contractResponse {
	return contractResponse{
		ContractIndex:   contract.ContractIndex,
		AgentAddress:    contract.AgentAddress,
		SellerAddress:   contract.SellerAddress,
		BuyerAddress:    contract.BuyerAddress,
		BuildingType:    string(contract.BuildingType),
		BuildingName:    contract.BuildingName,
		BuildingAddress: contract.BuildingAddress,
		PhotoPath:       contract.PhotoPath,
		ContractDate:    contract.ContractDate.Format("2006-01-02"),
		ContractType:    int16(contract.ContractType),
		CreatedAt:       contract.CreatedAt.Format(time.RFC3339),
	}
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, service.ErrInvalidInput
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, service.ErrInvalidInput
}
