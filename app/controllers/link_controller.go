package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/snipfox/snipfox/app/models"
	"github.com/snipfox/snipfox/app/repository"
	"github.com/snipfox/snipfox/internal/pkg/apperr"
	"github.com/snipfox/snipfox/internal/pkg/clickcounter"
	"github.com/snipfox/snipfox/internal/pkg/quota"
	"github.com/snipfox/snipfox/internal/pkg/s3store"
	"github.com/snipfox/snipfox/internal/pkg/shortcode"
	"github.com/snipfox/snipfox/internal/pkg/usagemeter"
	"github.com/snipfox/snipfox/internal/pkg/usercontext"
)

// MaxUploadSize caps file-backed links at 100 MiB.
const MaxUploadSize = 100 << 20

// LinkController serves link creation, redirects and stats.
type LinkController struct {
	repos     *repository.Repositories
	resolver  *quota.Resolver
	allocator *shortcode.Allocator
	meter     *usagemeter.Meter
}

var linkController *LinkController

// InitializeLinkController wires the link controller with the global repositories.
func InitializeLinkController() {
	repos := repository.GetGlobalRepositories()
	linkController = &LinkController{
		repos:     repos,
		resolver:  quota.NewResolver(repos.Link, repos.Subscription, repos.Plan),
		allocator: shortcode.NewAllocator(repos.Link),
		meter:     usagemeter.NewMeter(repos.Usage),
	}
}

type shortenRequest struct {
	TargetURL string   `json:"target_url" form:"target_url"`
	Alias     string   `json:"alias" form:"alias"`
	Password  string   `json:"password" form:"password"`
	ExpiresIn int64    `json:"expires_in" form:"expires_in"` // seconds from now
	Features  []string `json:"features" form:"features"`
}

// HandleShorten creates a short link from a target URL or an uploaded file.
// The quota is evaluated up front, before any file touches object storage, so
// a denied request cannot leave an orphaned upload behind; the authoritative
// check still runs inside the insert transaction in the repository.
func HandleShorten(c *fiber.Ctx) error {
	ctrl := linkController
	identity := usercontext.GetUserContext(c)

	decision, err := ctrl.resolver.Evaluate(identity)
	if err != nil {
		return apperr.Respond(c, apperr.Internal(err))
	}
	if !decision.Allowed {
		if decision.Reason == quota.ReasonNoActivePlan {
			return apperr.Respond(c, apperr.NoActivePlan("account has no active subscription"))
		}
		return apperr.Respond(c, apperr.QuotaExceeded("link quota exceeded for the current plan", decision.Snapshot))
	}
	plan := decision.Plan

	var req shortenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Respond(c, apperr.Validation("invalid request body"))
	}

	link := &models.Link{
		Type:             models.LINK_TYPE_URL,
		TargetURL:        req.TargetURL,
		PlanIDAtCreation: plan.ID,
	}
	if identity.IsLoggedIn {
		uid := identity.UserID
		link.UserID = &uid
	} else {
		link.OwnerIP = identity.ClientIP
	}

	if req.Password != "" {
		hash, err := models.HashPassword(req.Password)
		if err != nil {
			return apperr.Respond(c, apperr.Internal(err))
		}
		link.PasswordHash = hash
	}

	if req.ExpiresIn > 0 {
		expiry := time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
		link.ExpiresAt = &expiry
	} else if req.ExpiresIn < 0 {
		return apperr.Respond(c, apperr.Validation("expires_in must be positive"))
	}

	if err := link.SetFeatures(req.Features); err != nil {
		return apperr.Respond(c, apperr.Validation("invalid features"))
	}

	// Multipart upload turns the link into a file-backed one
	fileUploaded := false
	if header, err := c.FormFile("file"); err == nil && header != nil {
		if header.Size > MaxUploadSize {
			return apperr.Respond(c, apperr.Validation("file exceeds the maximum upload size"))
		}

		store, err := s3store.GetClient()
		if err != nil {
			return apperr.Respond(c, apperr.Internal(err))
		}

		file, err := header.Open()
		if err != nil {
			return apperr.Respond(c, apperr.Internal(err))
		}
		defer file.Close()

		contentType := header.Header.Get("Content-Type")
		storageKey := store.ObjectKey(uuid.New().String(), time.Now())
		if err := store.Upload(c.Context(), storageKey, file, header.Size, contentType); err != nil {
			return apperr.Respond(c, apperr.Internal(err))
		}

		link.Type = models.LINK_TYPE_FILE
		link.TargetURL = ""
		link.StorageKey = storageKey
		link.FileName = header.Filename
		link.FileSize = header.Size
		link.ContentType = contentType
		fileUploaded = true
	}

	if link.Type == models.LINK_TYPE_URL && link.TargetURL == "" {
		return apperr.Respond(c, apperr.Validation("target_url is required"))
	}

	used, err := ctrl.allocator.Allocate(link, req.Alias, plan.LinkLimit)
	if err != nil {
		if fileUploaded {
			ctrl.cleanupUpload(c.Context(), link.StorageKey)
		}
		switch {
		case errors.Is(err, shortcode.ErrInvalidAlias):
			return apperr.Respond(c, apperr.Validation(err.Error()))
		case errors.Is(err, shortcode.ErrAliasTaken):
			return apperr.Respond(c, apperr.Conflict("alias is already taken"))
		case errors.Is(err, repository.ErrQuotaExceeded):
			snapshot := quota.NewSnapshot(used, plan.LinkLimit)
			return apperr.Respond(c, apperr.QuotaExceeded("link quota exceeded for the current plan", snapshot))
		case errors.Is(err, shortcode.ErrSpaceExhausted):
			return apperr.Respond(c, apperr.Internal(err))
		default:
			return apperr.Respond(c, apperr.Internal(err))
		}
	}

	// Only enterprise accounts are metered for usage-based billing
	if identity.IsLoggedIn && plan.IsEnterprise() {
		ctrl.recordUsage(identity.UserID, link, fileUploaded)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"code":  link.Code,
		"url":   publicURL(link.Code),
		"type":  link.Type,
		"quota": quota.NewSnapshot(used+1, plan.LinkLimit),
	})
}

// recordUsage meters the creation. Metering failures never fail the request,
// but every one is logged: a dropped counter is unbilled usage.
func (ctrl *LinkController) recordUsage(userID uint, link *models.Link, fileUploaded bool) {
	if err := ctrl.meter.RecordLinkCreated(userID); err != nil {
		log.Errorf("[Link] Metering link creation failed for user %d: %v", userID, err)
	}
	if fileUploaded {
		if err := ctrl.meter.RecordFileUploaded(userID, link.FileSize); err != nil {
			log.Errorf("[Link] Metering file upload failed for user %d: %v", userID, err)
		}
	}
	if names := link.FeatureList(); len(names) > 0 {
		if err := ctrl.meter.RecordFeatures(userID, names); err != nil {
			log.Errorf("[Link] Metering features failed for user %d: %v", userID, err)
		}
	}
}

// cleanupUpload removes an uploaded object whose link row never made it into
// the database.
func (ctrl *LinkController) cleanupUpload(ctx context.Context, storageKey string) {
	store, err := s3store.GetClient()
	if err != nil {
		return
	}
	if err := store.Delete(ctx, storageKey); err != nil {
		log.Errorf("[Link] Failed to delete orphaned upload %s: %v", storageKey, err)
	}
}

// HandleUserLinks returns the caller's links, newest first, paginated.
func HandleUserLinks(c *fiber.Ctx) error {
	ctrl := linkController
	identity := usercontext.GetUserContext(c)

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	links, err := ctrl.repos.Link.GetByUserID(identity.UserID, (page-1)*limit, limit)
	if err != nil {
		return apperr.Respond(c, apperr.Internal(err))
	}

	return c.JSON(fiber.Map{
		"links": links,
		"page":  page,
		"limit": limit,
	})
}

// HandleRedirect resolves a short code. Expiry wins over everything else, then
// password protection; file-backed links redirect to a presigned S3 URL.
func HandleRedirect(c *fiber.Ctx) error {
	ctrl := linkController

	code := c.Params("code")
	link, err := ctrl.repos.Link.GetByCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Respond(c, apperr.NotFound("short link not found"))
		}
		return apperr.Respond(c, apperr.Internal(err))
	}

	// Expired links are gone for everyone, password or not
	if link.IsExpired(time.Now()) {
		return apperr.Respond(c, apperr.Gone("this link has expired"))
	}

	if link.IsPasswordProtected() {
		password := c.Query("password")
		if password == "" {
			password = c.Get("X-Link-Password")
		}
		if password == "" {
			return apperr.Respond(c, &apperr.Error{
				Code: apperr.CodePasswordNeeded, Status: fiber.StatusUnauthorized,
				Message: "this link requires a password",
			})
		}
		if !link.CheckPassword(password) {
			return apperr.Respond(c, &apperr.Error{
				Code: apperr.CodeInvalidPassword, Status: fiber.StatusUnauthorized,
				Message: "wrong password",
			})
		}
	}

	// Click lands in Redis; a worker flushes it to the links table
	if err := clickcounter.Add(link.ID); err != nil {
		// Never fail a redirect over a counter
		_ = err
	}

	if link.IsFileBacked() {
		store, err := s3store.GetClient()
		if err != nil {
			return apperr.Respond(c, apperr.Internal(err))
		}
		url, err := store.PresignDownload(c.Context(), link.StorageKey, link.FileName, s3store.DefaultDownloadTTL)
		if err != nil {
			return apperr.Respond(c, apperr.Internal(err))
		}
		return c.Redirect(url, fiber.StatusFound)
	}

	return c.Redirect(link.TargetURL, fiber.StatusFound)
}

// HandleStats returns metadata and the click count for a code. Buffered clicks
// that have not been flushed yet are included.
func HandleStats(c *fiber.Ctx) error {
	ctrl := linkController

	code := c.Params("code")
	link, err := ctrl.repos.Link.GetByCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Respond(c, apperr.NotFound("short link not found"))
		}
		return apperr.Respond(c, apperr.Internal(err))
	}

	return c.JSON(fiber.Map{
		"code":        link.Code,
		"type":        link.Type,
		"target_url":  link.TargetURL,
		"file_name":   link.FileName,
		"file_size":   link.FileSize,
		"features":    link.FeatureList(),
		"click_count": link.ClickCount + clickcounter.Pending(link.ID),
		"protected":   link.IsPasswordProtected(),
		"expires_at":  link.ExpiresAt,
		"created_at":  link.CreatedAt,
	})
}
