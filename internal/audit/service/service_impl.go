package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/realvest/internal/audit/domain"
	"github.com/smallbiznis/realvest/internal/clock"
	obscontext "github.com/smallbiznis/realvest/internal/observability/context"
	"github.com/smallbiznis/realvest/internal/usercontext"
	"github.com/smallbiznis/realvest/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
	clock clock.Clock
}

func NewService(p Params) auditdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: clk,
	}
}

func (s *Service) Record(ctx context.Context, db *gorm.DB, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	ownerID, ok := usercontext.UserIDFromContext(ctx)
	if !ok || ownerID == 0 {
		return auditdomain.ErrInvalidOwner
	}

	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}
	actorType, actorID := resolveActor(ctx, ownerID)

	payload := map[string]any{}
	for key, value := range entry.Metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		payload["request_id"] = requestID
	}

	log := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		OwnerID:    ownerID,
		ActorType:  actorType,
		ActorID:    &actorID,
		Action:     action,
		TargetType: targetType,
		Metadata:   datatypes.JSONMap(payload),
		CreatedAt:  s.clock.Now().UTC(),
	}
	if entry.TargetID != 0 {
		targetID := entry.TargetID.String()
		log.TargetID = &targetID
	}

	if db == nil {
		db = s.db
	}
	if err := s.repo.Insert(ctx, db, &log); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	ownerID, ok := usercontext.UserIDFromContext(ctx)
	if !ok || ownerID == 0 {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidOwner
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	offset, err := req.Offset()
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}
	limit := req.Limit()

	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		OwnerID:    ownerID,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Offset:     offset,
		Limit:      limit,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	items, pageInfo := pagination.BuildPageInfo(items, limit, offset)
	logs := make([]auditdomain.AuditLog, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		logs = append(logs, *item)
	}

	return auditdomain.ListAuditLogResponse{PageInfo: pageInfo, AuditLogs: logs}, nil
}

// resolveActor prefers an actor set on the context, e.g. a scheduler job,
// over the acting user.
func resolveActor(ctx context.Context, ownerID snowflake.ID) (string, string) {
	if actorType, actorID := obscontext.ActorFromContext(ctx); actorType != "" {
		return actorType, actorID
	}
	return "user", ownerID.String()
}
