package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/repository"

	"gorm.io/datatypes"
)

type AuditEventResponse struct {
	ID          uint                   `json:"id"`
	EntityType  string                 `json:"entity_type"`
	EntityID    string                 `json:"entity_id"`
	Actor       string                 `json:"actor"`
	Action      string                 `json:"action"`
	Field       string                 `json:"field,omitempty"`
	OldValue    string                 `json:"old_value,omitempty"`
	NewValue    string                 `json:"new_value,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Description string                 `json:"description"`
	CreatedAt   string                 `json:"created_at"`
}

// HistoryResponse carries structured events and the rendered "[timestamp] actor description" lines
type HistoryResponse struct {
	EntityType string               `json:"entity_type"`
	EntityID   string               `json:"entity_id"`
	Events     []AuditEventResponse `json:"events"`
	Lines      []string             `json:"lines"`
}

type AuditService interface {
	History(ctx context.Context, entityType, entityID, legacyLog string) (HistoryResponse, error)
	GetAuditLogs(ctx context.Context, page, limit int) ([]AuditEventResponse, int64, error)
}

type auditService struct {
	auditRepo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repository.AuditRepository) AuditService {
	return &auditService{auditRepo: auditRepo}
}

func (s *auditService) History(ctx context.Context, entityType, entityID, legacyLog string) (HistoryResponse, error) {
	events, err := s.auditRepo.ForEntity(ctx, entityType, entityID)
	if err != nil {
		return HistoryResponse{}, fmt.Errorf("failed to load history: %w", err)
	}

	res := HistoryResponse{
		EntityType: entityType,
		EntityID:   entityID,
		Events:     make([]AuditEventResponse, 0, len(events)),
		Lines:      legacyLines(legacyLog),
	}
	for _, e := range events {
		item := toAuditEventResponse(e)
		res.Events = append(res.Events, item)
		res.Lines = append(res.Lines, RenderAuditLine(e))
	}
	return res, nil
}

func (s *auditService) GetAuditLogs(ctx context.Context, page, limit int) ([]AuditEventResponse, int64, error) {
	events, total, err := s.auditRepo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}
	res := make([]AuditEventResponse, 0, len(events))
	for _, e := range events {
		res = append(res, toAuditEventResponse(e))
	}
	return res, total, nil
}

// RenderAuditLine formats an event as "[{ISO timestamp}] {actor} {description}"
func RenderAuditLine(e model.AuditEvent) string {
	return fmt.Sprintf("[%s] %s %s", e.CreatedAt.UTC().Format(time.RFC3339), e.Actor, describe(e))
}

func describe(e model.AuditEvent) string {
	details := decodeDetails(e.Details)
	switch e.Action {
	case model.ActionVerifyPayment:
		return "verified payment"
	case model.ActionCreateFromVerify:
		return "created from verified submission " + e.EntityID
	case model.ActionDeleteSubmission:
		return "deleted submission"
	case model.ActionRestoreSubmission:
		return "restored submission to pending"
	case model.ActionUpdateField:
		return fmt.Sprintf("changed %s from %q to %q", e.Field, e.OldValue, e.NewValue)
	case model.ActionAutoReconcile:
		return fmt.Sprintf("auto-reconciled: matches verified payment %v", details["matched_payment"])
	case model.ActionStatusRecompute:
		return fmt.Sprintf("status %q -> %q (paid %v%%, SEDA %q)", e.OldValue, e.NewValue, details["percent"], details["seda_status"])
	case model.ActionLinkPayment:
		return "linked payment " + e.NewValue
	case model.ActionSoftDelete:
		return "deleted (was " + e.OldValue + ")"
	}
	return strings.ToLower(strings.ReplaceAll(e.Action, "_", " "))
}

func legacyLines(log string) []string {
	var lines []string
	for _, line := range strings.Split(log, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			lines = append(lines, l)
		}
	}
	if lines == nil {
		lines = []string{}
	}
	return lines
}

func decodeDetails(raw datatypes.JSON) map[string]interface{} {
	out := map[string]interface{}{}
	if len(raw) == 0 {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}

func newAuditEvent(entityType, entityID, actor, action string) *model.AuditEvent {
	if actor == "" {
		actor = model.SystemActor
	}
	return &model.AuditEvent{
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      actor,
		Action:     action,
		CreatedAt:  time.Now(),
	}
}

func withDetails(e *model.AuditEvent, details map[string]interface{}) *model.AuditEvent {
	if raw, err := json.Marshal(details); err == nil {
		e.Details = datatypes.JSON(raw)
	}
	return e
}

func toAuditEventResponse(e model.AuditEvent) AuditEventResponse {
	return AuditEventResponse{
		ID:          e.ID,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Actor:       e.Actor,
		Action:      e.Action,
		Field:       e.Field,
		OldValue:    e.OldValue,
		NewValue:    e.NewValue,
		Details:     decodeDetails(e.Details),
		Description: describe(e),
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
	}
}
