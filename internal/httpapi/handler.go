// Package httpapi wires the core services to Fiber routes. Handlers stay
// thin: parse, call a service, map the error, render JSON.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/MagnunAVF/shortlinks/internal/access"
	"github.com/MagnunAVF/shortlinks/internal/analytics"
	"github.com/MagnunAVF/shortlinks/internal/links"
	"github.com/MagnunAVF/shortlinks/internal/logger"
	"github.com/MagnunAVF/shortlinks/internal/metrics"
	"github.com/MagnunAVF/shortlinks/internal/models"
	"github.com/MagnunAVF/shortlinks/internal/review"
	"github.com/MagnunAVF/shortlinks/internal/roles"
	"github.com/MagnunAVF/shortlinks/internal/store"
	"github.com/MagnunAVF/shortlinks/internal/visits"
)

const (
	// netid of the caller, set by the SSO proxy in front of the service.
	principalHeader = "X-Netid"

	trackingCookie    = "tracking_id"
	trackingCookieAge = 365 * 24 * time.Hour
)

// Store is the slice of the data layer the handlers touch directly;
// everything else goes through a service.
type Store interface {
	HealthCheck(ctx context.Context) error
	GetLink(ctx context.Context, id uuid.UUID) (*models.Link, error)
	LinksOwnedBy(ctx context.Context, owner string) ([]models.Link, error)
	CreateOrganizationWithAdmin(ctx context.Context, org *models.Organization, member *models.OrgMember) error
	AddOrgMember(ctx context.Context, member *models.OrgMember) error
	RemoveOrgMember(ctx context.Context, orgID uuid.UUID, netid string) error
	AddPhishingDomain(ctx context.Context, entry *models.PhishingDomain) error
}

type Handler struct {
	store     Store
	links     *links.Service
	access    *access.Resolver
	visits    *visits.Recorder
	analytics *analytics.Engine
	review    *review.Service
	roles     *roles.Service
	domain    string
}

func New(
	st Store,
	linkSvc *links.Service,
	resolver *access.Resolver,
	recorder *visits.Recorder,
	engine *analytics.Engine,
	reviewSvc *review.Service,
	roleSvc *roles.Service,
	domain string,
) *Handler {
	return &Handler{
		store:     st,
		links:     linkSvc,
		access:    resolver,
		visits:    recorder,
		analytics: engine,
		review:    reviewSvc,
		roles:     roleSvc,
		domain:    domain,
	}
}

func (h *Handler) Register(app *fiber.App) {
	app.Get("/healthz", h.health)
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api/v1")

	api.Post("/links", h.createLink)
	api.Get("/links", h.listOwnLinks)
	api.Get("/links/:id", h.getLink)
	api.Patch("/links/:id", h.modifyLink)
	api.Delete("/links/:id", h.deleteLink)
	api.Post("/links/:id/aliases", h.upsertAlias)
	api.Delete("/links/:id/aliases/:alias", h.deleteAlias)
	api.Post("/links/:id/clear-visits", h.clearVisits)

	api.Get("/links/:id/stats", h.overallStats)
	api.Get("/links/:id/stats/daily", h.dailyStats)
	api.Get("/links/:id/stats/monthly", h.monthlyStats)
	api.Get("/links/:id/stats/geo", h.geoStats)
	api.Get("/links/:id/stats/browsers", h.browserStats)
	api.Get("/links/:id/stats/referers", h.refererStats)
	api.Get("/stats/geo", h.siteGeoStats)
	api.Get("/stats/traffic", h.trafficSummary)

	api.Get("/requests", h.listRequests)
	api.Post("/requests/:id/promote", h.promoteRequest)
	api.Post("/requests/:id/reject", h.rejectRequest)
	api.Post("/requests/:id/reconsider", h.reconsiderRequest)

	api.Get("/roles", h.listRoleKinds)
	api.Get("/roles/:role", h.listRoleHolders)
	api.Put("/roles/:role/:entity", h.grantRole)
	api.Delete("/roles/:role/:entity", h.revokeRole)

	api.Post("/orgs", h.createOrg)
	api.Post("/orgs/:id/members", h.addOrgMember)
	api.Delete("/orgs/:id/members/:netid", h.removeOrgMember)

	api.Post("/phishing", h.addPhishingDomain)

	// alias resolution is last so API paths never shadow an alias
	app.Get("/:alias", h.redirect)
}

// ==================== redirect ====================

func (h *Handler) redirect(c *fiber.Ctx) error {
	res, err := h.visits.Visit(
		c.UserContext(),
		c.Params("alias"),
		c.Cookies(trackingCookie),
		c.IP(),
		c.Get(fiber.HeaderUserAgent),
		c.Get(fiber.HeaderReferer),
	)
	if visits.IsNotFound(err) {
		metrics.RecordRedirect(false)
		// deleted, expired and never-existed all look identical
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "short link not found"})
	}
	if err != nil {
		return h.fail(c, err)
	}
	metrics.RecordRedirect(true)

	c.Cookie(&fiber.Cookie{
		Name:    trackingCookie,
		Value:   res.TrackingID,
		Expires: time.Now().Add(trackingCookieAge),
	})

	dest := visits.AppendQuery(res.Destination, string(c.Request().URI().QueryString()))
	return c.Redirect(dest, fiber.StatusFound)
}

// ==================== links ====================

type createLinkRequest struct {
	Title       string     `json:"title"`
	Destination string     `json:"destination"`
	Owner       string     `json:"owner"`
	OwnerIsOrg  bool       `json:"owner_is_org"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

func (h *Handler) createLink(c *fiber.Ctx) error {
	principal := c.Get(principalHeader)
	if principal == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing identity"})
	}

	var req createLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Destination == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "destination cannot be empty"})
	}
	owner := req.Owner
	if owner == "" {
		owner = principal
	}

	// admins and power users skip the reputation hold
	bypass := h.hasAnyRole(c, principal, roles.Admin, roles.PowerUser)

	out, err := h.review.Create(c.UserContext(), links.CreateRequest{
		Title:       req.Title,
		Destination: req.Destination,
		Owner:       owner,
		OwnerIsOrg:  req.OwnerIsOrg,
		ExpiresAt:   req.ExpiresAt,
		SourceIP:    c.IP(),
	}, bypass)
	if err != nil {
		return h.fail(c, err)
	}

	if out.Pending != nil {
		metrics.RecordLinkHeld()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"status":     "pending_review",
			"pending_id": out.Pending.ID,
		})
	}
	metrics.RecordLinkCreated()
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": out.LinkID})
}

func (h *Handler) listOwnLinks(c *fiber.Ctx) error {
	principal := c.Get(principalHeader)
	if principal == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing identity"})
	}
	owned, err := h.store.LinksOwnedBy(c.UserContext(), principal)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"links": owned})
}

func (h *Handler) getLink(c *fiber.Ctx) error {
	linkID, principal, refuse := h.linkAndPrincipal(c)
	if refuse != nil {
		return refuse()
	}
	if !h.allowed(c, h.access.MayView, linkID, principal) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}
	link, err := h.store.GetLink(c.UserContext(), linkID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(link)
}

type modifyLinkRequest struct {
	Title       *string    `json:"title"`
	Destination *string    `json:"destination"`
	ExpiresAt   *time.Time `json:"expires_at"`
	ClearExpiry bool       `json:"clear_expiry"`
}

func (h *Handler) modifyLink(c *fiber.Ctx) error {
	linkID, principal, refuse := h.linkAndPrincipal(c)
	if refuse != nil {
		return refuse()
	}
	if !h.allowed(c, h.access.MayEdit, linkID, principal) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}

	var req modifyLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	err := h.links.Modify(c.UserContext(), linkID, links.ModifyRequest{
		Title:       req.Title,
		Destination: req.Destination,
		ExpiresAt:   req.ExpiresAt,
		ClearExpiry: req.ClearExpiry,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) deleteLink(c *fiber.Ctx) error {
	linkID, principal, refuse := h.linkAndPrincipal(c)
	if refuse != nil {
		return refuse()
	}
	if !h.allowed(c, h.access.MayEdit, linkID, principal) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}
	if err := h.links.Delete(c.UserContext(), linkID, principal); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type upsertAliasRequest struct {
	Alias       string `json:"alias"`
	Description string `json:"description"`
}

func (h *Handler) upsertAlias(c *fiber.Ctx) error {
	linkID, principal, refuse := h.linkAndPrincipal(c)
	if refuse != nil {
		return refuse()
	}
	if !h.allowed(c, h.access.MayEdit, linkID, principal) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}

	var req upsertAliasRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	name, err := h.links.CreateOrModifyAlias(c.UserContext(), linkID, req.Alias, req.Description)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"alias":     name,
		"short_url": fmt.Sprintf("%s/%s", h.domain, name),
	})
}

func (h *Handler) deleteAlias(c *fiber.Ctx) error {
	linkID, principal, refuse := h.linkAndPrincipal(c)
	if refuse != nil {
		return refuse()
	}
	if !h.allowed(c, h.access.MayEdit, linkID, principal) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}
	if err := h.links.DeleteAlias(c.UserContext(), linkID, c.Params("alias")); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) clearVisits(c *fiber.Ctx) error {
	linkID, principal, refuse := h.linkAndPrincipal(c)
	if refuse != nil {
		return refuse()
	}
	if !h.allowed(c, h.access.MayEdit, linkID, principal) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}
	if err := h.links.ClearVisits(c.UserContext(), linkID); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ==================== stats ====================

type statsFunc func(c *fiber.Ctx, linkID uuid.UUID, alias string) (interface{}, error)

func (h *Handler) linkStats(c *fiber.Ctx, fn statsFunc) error {
	linkID, principal, refuse := h.linkAndPrincipal(c)
	if refuse != nil {
		return refuse()
	}
	if !h.allowed(c, h.access.MayView, linkID, principal) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}
	out, err := fn(c, linkID, c.Query("alias"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(out)
}

func (h *Handler) overallStats(c *fiber.Ctx) error {
	return h.linkStats(c, func(c *fiber.Ctx, id uuid.UUID, alias string) (interface{}, error) {
		return h.analytics.OverallVisits(c.UserContext(), id, alias)
	})
}

func (h *Handler) dailyStats(c *fiber.Ctx) error {
	return h.linkStats(c, func(c *fiber.Ctx, id uuid.UUID, alias string) (interface{}, error) {
		return h.analytics.DailyVisits(c.UserContext(), id, alias)
	})
}

func (h *Handler) monthlyStats(c *fiber.Ctx) error {
	return h.linkStats(c, func(c *fiber.Ctx, id uuid.UUID, alias string) (interface{}, error) {
		return h.analytics.MonthlyVisits(c.UserContext(), id, alias)
	})
}

func (h *Handler) geoStats(c *fiber.Ctx) error {
	return h.linkStats(c, func(c *fiber.Ctx, id uuid.UUID, alias string) (interface{}, error) {
		return h.analytics.GeoStats(c.UserContext(), id, alias)
	})
}

func (h *Handler) browserStats(c *fiber.Ctx) error {
	return h.linkStats(c, func(c *fiber.Ctx, id uuid.UUID, alias string) (interface{}, error) {
		return h.analytics.BrowserStats(c.UserContext(), id, alias)
	})
}

func (h *Handler) refererStats(c *fiber.Ctx) error {
	return h.linkStats(c, func(c *fiber.Ctx, id uuid.UUID, alias string) (interface{}, error) {
		return h.analytics.RefererStats(c.UserContext(), id, alias)
	})
}

// siteGeoStats aggregates over every link; admin only.
func (h *Handler) siteGeoStats(c *fiber.Ctx) error {
	if resp := h.requireAdmin(c); resp != nil {
		return resp()
	}
	out, err := h.analytics.GeoStats(c.UserContext(), uuid.Nil, "")
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(out)
}

func (h *Handler) trafficSummary(c *fiber.Ctx) error {
	if resp := h.requireAdmin(c); resp != nil {
		return resp()
	}
	to := time.Now()
	from := to.AddDate(0, 0, -30)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "from must be YYYY-MM-DD"})
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "to must be YYYY-MM-DD"})
		}
		to = t
	}
	out, err := h.analytics.TrafficSummary(c.UserContext(), from, to)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"days": out})
}

// ==================== review queue ====================

func (h *Handler) listRequests(c *fiber.Ctx) error {
	if resp := h.requireAdmin(c); resp != nil {
		return resp()
	}
	status := models.ReviewStatus(c.Query("status", string(models.StatusPending)))
	out, err := h.review.List(c.UserContext(), status)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"requests": out})
}

func (h *Handler) promoteRequest(c *fiber.Ctx) error {
	if resp := h.requireAdmin(c); resp != nil {
		return resp()
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request id"})
	}
	linkID, err := h.review.Promote(c.UserContext(), id, c.Get(principalHeader))
	if err != nil {
		return h.fail(c, err)
	}
	metrics.RecordLinkCreated()
	return c.JSON(fiber.Map{"id": linkID})
}

func (h *Handler) rejectRequest(c *fiber.Ctx) error {
	return h.disposeRequest(c, h.review.Reject)
}

func (h *Handler) reconsiderRequest(c *fiber.Ctx) error {
	return h.disposeRequest(c, h.review.Reconsider)
}

func (h *Handler) disposeRequest(c *fiber.Ctx, op func(ctx context.Context, id uuid.UUID, modifier string) error) error {
	if resp := h.requireAdmin(c); resp != nil {
		return resp()
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request id"})
	}
	if err := op(c.UserContext(), id, c.Get(principalHeader)); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ==================== roles ====================

func (h *Handler) listRoleKinds(c *fiber.Ctx) error {
	if resp := h.requireAdmin(c); resp != nil {
		return resp()
	}
	return c.JSON(fiber.Map{"roles": h.roles.Kinds()})
}

func (h *Handler) listRoleHolders(c *fiber.Ctx) error {
	if resp := h.requireAdmin(c); resp != nil {
		return resp()
	}
	entities, err := h.roles.Entities(c.UserContext(), c.Params("role"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"entities": entities})
}

func (h *Handler) grantRole(c *fiber.Ctx) error {
	if resp := h.requireAdmin(c); resp != nil {
		return resp()
	}
	err := h.roles.Grant(c.UserContext(), c.Params("role"), c.Params("entity"), c.Get(principalHeader))
	if err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) revokeRole(c *fiber.Ctx) error {
	if resp := h.requireAdmin(c); resp != nil {
		return resp()
	}
	if err := h.roles.Revoke(c.UserContext(), c.Params("role"), c.Params("entity")); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ==================== orgs and phishing table ====================

type createOrgRequest struct {
	Name string `json:"name"`
}

func (h *Handler) createOrg(c *fiber.Ctx) error {
	principal := c.Get(principalHeader)
	if principal == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing identity"})
	}
	var req createOrgRequest
	if err := c.BodyParser(&req); err != nil || req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name cannot be empty"})
	}
	// one transaction: no organization ever exists without its founding admin
	org := &models.Organization{ID: uuid.New(), Name: req.Name}
	member := &models.OrgMember{ID: uuid.New(), OrgID: org.ID, NetID: principal, IsAdmin: true}
	if err := h.store.CreateOrganizationWithAdmin(c.UserContext(), org, member); err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(org)
}

type addMemberRequest struct {
	NetID   string `json:"netid"`
	IsAdmin bool   `json:"is_admin"`
}

func (h *Handler) addOrgMember(c *fiber.Ctx) error {
	if resp := h.requireAdmin(c); resp != nil {
		return resp()
	}
	orgID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid org id"})
	}
	var req addMemberRequest
	if err := c.BodyParser(&req); err != nil || req.NetID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "netid cannot be empty"})
	}
	member := &models.OrgMember{ID: uuid.New(), OrgID: orgID, NetID: req.NetID, IsAdmin: req.IsAdmin}
	if err := h.store.AddOrgMember(c.UserContext(), member); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusCreated)
}

func (h *Handler) removeOrgMember(c *fiber.Ctx) error {
	if resp := h.requireAdmin(c); resp != nil {
		return resp()
	}
	orgID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid org id"})
	}
	if err := h.store.RemoveOrgMember(c.UserContext(), orgID, c.Params("netid")); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type addPhishingRequest struct {
	Domain string `json:"domain"`
}

func (h *Handler) addPhishingDomain(c *fiber.Ctx) error {
	if resp := h.requireAdmin(c); resp != nil {
		return resp()
	}
	var req addPhishingRequest
	if err := c.BodyParser(&req); err != nil || req.Domain == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "domain cannot be empty"})
	}
	entry := &models.PhishingDomain{ID: uuid.New(), Domain: req.Domain, AddedBy: c.Get(principalHeader)}
	if err := h.store.AddPhishingDomain(c.UserContext(), entry); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusCreated)
}

// ==================== shared plumbing ====================

func (h *Handler) health(c *fiber.Ctx) error {
	if err := h.store.HealthCheck(c.UserContext()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "down", "error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// linkAndPrincipal parses the caller identity and link id. A non-nil
// refusal closure means the request is rejected; run it and stop.
func (h *Handler) linkAndPrincipal(c *fiber.Ctx) (uuid.UUID, string, func() error) {
	principal := c.Get(principalHeader)
	if principal == "" {
		return uuid.Nil, "", func() error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing identity"})
		}
	}
	linkID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, "", func() error {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid link id"})
		}
	}
	return linkID, principal, nil
}

type accessCheck func(ctx context.Context, linkID uuid.UUID, principal string) (bool, error)

// allowed runs an access check; admins pass everything.
func (h *Handler) allowed(c *fiber.Ctx, check accessCheck, linkID uuid.UUID, principal string) bool {
	if h.hasAnyRole(c, principal, roles.Admin) {
		return true
	}
	ok, err := check(c.UserContext(), linkID, principal)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.FromContext(c.UserContext()).Error("access check failed", "link_id", linkID, "err", err)
	}
	return ok
}

func (h *Handler) hasAnyRole(c *fiber.Ctx, principal string, names ...string) bool {
	for _, name := range names {
		ok, err := h.roles.Has(c.UserContext(), name, principal)
		if err != nil {
			logger.FromContext(c.UserContext()).Error("role check failed", "role", name, "err", err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// requireAdmin returns nil when the caller is an admin, otherwise a
// closure rendering the refusal.
func (h *Handler) requireAdmin(c *fiber.Ctx) func() error {
	principal := c.Get(principalHeader)
	if principal == "" {
		return func() error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing identity"})
		}
	}
	if !h.hasAnyRole(c, principal, roles.Admin) {
		return func() error {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin role required"})
		}
	}
	return nil
}

// fail maps service errors onto HTTP statuses with field-specific
// messages for the two validation failures.
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	var destErr *links.BadDestinationError
	var aliasErr *links.BadAliasError

	switch {
	case errors.As(err, &destErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": destErr.Reason, "field": "destination"})
	case errors.As(err, &aliasErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": aliasErr.Reason, "field": "alias"})
	case errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	case errors.Is(err, review.ErrPendingOrRejected):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "destination already pending or rejected"})
	case errors.Is(err, review.ErrInvalidStateChange):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "invalid state change"})
	case errors.Is(err, roles.ErrAlreadyGranted):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "entity already holds role"})
	case errors.Is(err, roles.ErrUnknownRole), errors.Is(err, roles.ErrBadEntity):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, store.ErrDuplicateAlias):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already exists"})
	}

	logger.FromContext(c.UserContext()).Error("request failed", "path", c.Path(), "err", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}
