package controllers

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	models "github.com/phillip/farewell-fund-go/models"
	services "github.com/phillip/farewell-fund-go/services"
	utils "github.com/phillip/farewell-fund-go/utils"
)

// ---------------- CREATE ----------------
func CreateContribution(svc *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			EventID     string          `json:"event_id"`
			Amount      decimal.Decimal `json:"amount"`
			Method      string          `json:"method"`
			PaymentRef  string          `json:"transaction_reference"`
			ReceiptURL  string          `json:"receipt_url"`
			Manual      bool            `json:"manual"`
			Contributor string          `json:"contributor_id"`
			AdminNotes  string          `json:"admin_notes"`
			AutoApprove bool            `json:"auto_approve"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		contribution, err := svc.Contributions.Create(ctx, identity(c), services.CreateContributionInput{
			EventID:       input.EventID,
			Amount:        input.Amount,
			Method:        models.PaymentMethod(strings.ToLower(strings.TrimSpace(input.Method))),
			PaymentRef:    input.PaymentRef,
			ReceiptURL:    input.ReceiptURL,
			Manual:        input.Manual,
			ContributorID: input.Contributor,
			AdminNotes:    input.AdminNotes,
			AutoApprove:   input.AutoApprove,
		})
		// the row is committed even when the follow-up approve failed
		var partial *services.AutoApproveError
		if errors.As(err, &partial) {
			_, body := errorResponse(c, partial.Err)
			c.JSON(http.StatusCreated, gin.H{
				"contribution":  partial.Contribution,
				"approve_error": body["error"],
			})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, contribution)
	}
}

// ---------------- RECEIPT ----------------

// UploadReceipt accepts a multipart "receipt" image and returns its URL for
// use as receipt_url on create.
func UploadReceipt(svc *services.Services, blobs utils.BlobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID := c.PostForm("event_id")
		if eventID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "event_id is required", "field": "event_id"})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()
		if err := svc.Authz.RequireMember(ctx, identity(c), eventID); err != nil {
			respondError(c, err)
			return
		}

		fileHeader, err := c.FormFile("receipt")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "receipt file is required", "field": "receipt"})
			return
		}
		if fileHeader.Size > utils.MaxReceiptBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ErrReceiptTooLarge.Error(), "field": "receipt"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open file"})
			return
		}
		defer file.Close()

		data, _, err := utils.ReadReceipt(file)
		switch {
		case errors.Is(err, utils.ErrReceiptTooLarge), errors.Is(err, utils.ErrReceiptNotImage):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": "receipt"})
			return
		case err != nil:
			respondError(c, err)
			return
		}

		// UploadReceipt applies its own deadline
		url, err := blobs.UploadReceipt(c.Request.Context(), eventID, bytes.NewReader(data))
		if errors.Is(err, utils.ErrUploadsDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "receipt upload failed"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"receipt_url": url})
	}
}

// ---------------- LIST ----------------
func ListMyContributions(svc *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		list, err := svc.Contributions.ListOwn(ctx, identity(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		writeContributions(c, list)
	}
}

// ListContributions is the admin view; ?status=a,b narrows it.
func ListContributions(svc *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var statuses []models.ContributionStatus
		if raw := c.Query("status"); raw != "" {
			for _, s := range strings.Split(raw, ",") {
				if s = strings.TrimSpace(s); s != "" {
					statuses = append(statuses, models.ContributionStatus(s))
				}
			}
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		list, err := svc.Contributions.ListAll(ctx, identity(c), c.Param("id"), statuses...)
		if err != nil {
			respondError(c, err)
			return
		}
		writeContributions(c, list)
	}
}

func writeContributions(c *gin.Context, list []models.Contribution) {
	if len(list) == 0 {
		c.JSON(http.StatusOK, []models.Contribution{})
		return
	}

	// --- Pick the most recently updated contribution ---
	latest := list[0]
	for _, ctn := range list {
		if ctn.UpdatedAt.After(latest.UpdatedAt) {
			latest = ctn
		}
	}
	if notModified(c, listVersion(latest.ID, len(list)), latest.UpdatedAt) {
		return
	}

	c.JSON(http.StatusOK, list)
}

// ---------------- GET ----------------
func GetContribution(svc *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		contribution, err := svc.Contributions.Get(ctx, identity(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if notModified(c, contribution.ID, contribution.UpdatedAt) {
			return
		}

		c.JSON(http.StatusOK, contribution)
	}
}

// ---------------- TRANSITIONS ----------------
func MarkContributionPaid(svc *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			PaymentRef string `json:"transaction_reference"`
		}
		if err := bindOptionalJSON(c, &input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		contribution, err := svc.Contributions.MarkPaid(ctx, identity(c), c.Param("id"), input.PaymentRef)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, contribution)
	}
}

func VerifyContribution(svc *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Notes string `json:"notes"`
		}
		if err := bindOptionalJSON(c, &input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		contribution, err := svc.Contributions.Verify(ctx, identity(c), c.Param("id"), input.Notes)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, contribution)
	}
}

func ApproveContribution(svc *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		contribution, err := svc.Contributions.Approve(ctx, identity(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, contribution)
	}
}

func RejectContribution(svc *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Notes string `json:"notes"`
		}
		if err := bindOptionalJSON(c, &input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		contribution, err := svc.Contributions.Reject(ctx, identity(c), c.Param("id"), input.Notes)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, contribution)
	}
}

func RefundContribution(svc *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Kind string `json:"kind" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": "kind"})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		kind := models.RefundStatus(strings.ToLower(strings.TrimSpace(input.Kind)))
		contribution, err := svc.Contributions.Refund(ctx, identity(c), c.Param("id"), kind)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, contribution)
	}
}
