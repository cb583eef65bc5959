package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-workflow/internal/api/dto"
	"github.com/spec-kit/ticket-workflow/internal/auth"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/service"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util/errorutil"
)

// TicketsHandler manages ticket workflow endpoints.
type TicketsHandler struct {
	tickets     *service.TicketService
	escalations *service.EscalationService
	messages    *service.MessageService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, escalations *service.EscalationService, messages *service.MessageService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, escalations: escalations, messages: messages}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.tickets.CreateTicket(c.UserContext(), service.TicketCreateInput{
		Title:            req.Title,
		Description:      req.Description,
		Priority:         req.Priority,
		Type:             req.Type,
		Area:             req.Area,
		CreatedBy:        principal.User.ID,
		CreatedByRole:    principal.User.Role,
		OriginalTicketID: req.OriginalTicketID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket, false)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	tickets, err := h.tickets.ListTickets(c.UserContext(), principal.User, parseTicketQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i], false))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.visibleTicket(c, c.Params("id"))
	if err != nil {
		return err
	}
	resp := ticketResponse(ticket, true)
	sla := h.tickets.SLA(*ticket)
	resp.SLA = &dto.SLAResponse{
		State:          sla.State,
		ThresholdHours: sla.ThresholdHours,
		ElapsedHours:   sla.ElapsedHours,
		OperationSLA:   sla.OperationSLA,
		ValidationSLA:  sla.ValidationSLA,
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Transition POST /tickets/:id/transitions.
func (h *TicketsHandler) Transition(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	if _, err := h.visibleTicket(c, c.Params("id")); err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.ApplyStatusTransition(c.UserContext(), c.Params("id"), req.Status, principal.User.ID, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket, true)})
}

// EscalateToArea POST /tickets/:id/escalations/area.
func (h *TicketsHandler) EscalateToArea(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	if _, err := h.visibleTicket(c, c.Params("id")); err != nil {
		return err
	}
	var req dto.EscalateToAreaRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.escalations.EscalateToArea(c.UserContext(), c.Params("id"), req.Area, req.Reason, principal.User.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket, true)})
}

// EscalateToManager POST /tickets/:id/escalations/manager.
func (h *TicketsHandler) EscalateToManager(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	if _, err := h.visibleTicket(c, c.Params("id")); err != nil {
		return err
	}
	var req dto.EscalateToManagerRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.escalations.EscalateToManager(c.UserContext(), c.Params("id"), req.ManagerID, req.Reason, principal.User.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket, true)})
}

// LinkTicket POST /tickets/:id/links.
func (h *TicketsHandler) LinkTicket(c *fiber.Ctx) error {
	if _, err := h.visibleTicket(c, c.Params("id")); err != nil {
		return err
	}
	var req dto.LinkTicketRequest
	if err := c.BodyParser(&req); err != nil || req.LinkedTicketID == "" {
		return apperrors.NewValidationError("linked_ticket_id required", nil)
	}
	if err := h.tickets.LinkTickets(c.UserContext(), c.Params("id"), req.LinkedTicketID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ListLinks GET /tickets/:id/links.
func (h *TicketsHandler) ListLinks(c *fiber.Ctx) error {
	if _, err := h.visibleTicket(c, c.Params("id")); err != nil {
		return err
	}
	linked, err := h.tickets.GetLinkedTickets(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.LinkedTicketResponse, 0, len(linked))
	for i := range linked {
		items = append(items, dto.LinkedTicketResponse{
			Relation: string(linked[i].Relation),
			Ticket:   ticketResponse(&linked[i].Ticket, false),
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// PostMessage POST /tickets/:id/messages.
func (h *TicketsHandler) PostMessage(c *fiber.Ctx) error {
	ticket, err := h.visibleTicket(c, c.Params("id"))
	if err != nil {
		return err
	}
	principal, _ := auth.PrincipalFromContext(c)
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.messages.PostMessage(c.UserContext(), ticket.ID, principal.User, req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": messageResponse(msg)})
}

// ListMessages GET /tickets/:id/messages.
func (h *TicketsHandler) ListMessages(c *fiber.Ctx) error {
	ticket, err := h.visibleTicket(c, c.Params("id"))
	if err != nil {
		return err
	}
	items, err := h.messages.ListMessages(c.UserContext(), ticket.ID)
	if err != nil {
		return err
	}
	resp := make([]dto.TicketMessageResponse, 0, len(items))
	for i := range items {
		resp = append(resp, messageResponse(&items[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// visibleTicket hides tickets the caller may not see behind NotFound.
func (h *TicketsHandler) visibleTicket(c *fiber.Ctx, id string) (*domain.Ticket, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("user required")
	}
	ticket, err := h.tickets.GetTicket(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	if !domain.IsRelevant(principal.User, *ticket) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	return ticket, nil
}

func parseTicketQuery(c *fiber.Ctx) service.TicketListFilter {
	filter := service.TicketListFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.TrimSpace(part)))
		}
	}
	if area := c.Query("area"); area != "" {
		a := domain.Area(area)
		filter.Area = &a
	}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		filter.SearchTerm = &q
	}
	filter.OpenOnly = c.QueryBool("open", false)
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponse(t *domain.Ticket, detail bool) dto.TicketResponse {
	resp := dto.TicketResponse{
		ID:               t.ID,
		Title:            t.Title,
		Description:      t.Description,
		Status:           t.Status,
		StatusLabel:      t.Status.Label(),
		Priority:         t.Priority,
		Type:             t.Type,
		Area:             t.Area,
		AreaOriginal:     t.AreaOriginal,
		ResponsibleRole:  t.ResponsibleRole,
		TargetManagerID:  t.TargetManagerID,
		CreatedBy:        t.CreatedBy,
		CreatedByRole:    t.CreatedByRole,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		ExecutedAt:       t.ExecutedAt,
		ValidatedAt:      t.ValidatedAt,
		LinkedTicketIDs:  t.LinkedTicketIDs,
		OriginalTicketID: t.OriginalTicketID,
		IsLinked:         t.IsLinked,
		Version:          t.Version,
	}
	if resp.LinkedTicketIDs == nil {
		resp.LinkedTicketIDs = []string{}
	}
	if !detail {
		return resp
	}
	resp.NextStatuses = domain.NextStatuses(t.Status)
	resp.History = make([]dto.HistoryEntryResponse, 0, len(t.StatusHistory))
	for _, e := range t.StatusHistory {
		resp.History = append(resp.History, dto.HistoryEntryResponse{
			PreviousStatus:  e.PreviousStatus,
			NewStatus:       e.NewStatus,
			Actor:           e.Actor,
			Timestamp:       e.Timestamp,
			Comment:         e.Comment,
			Kind:            e.Kind,
			FromArea:        e.FromArea,
			ToArea:          e.ToArea,
			TargetManagerID: e.TargetManagerID,
		})
	}
	return resp
}

func messageResponse(m *domain.TicketMessage) dto.TicketMessageResponse {
	return dto.TicketMessageResponse{
		ID:         m.ID,
		TicketID:   m.TicketID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		SenderRole: m.SenderRole,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt,
	}
}
