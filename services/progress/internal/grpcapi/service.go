// Package grpcapi serves lesson progress to internal callers over gRPC.
package grpcapi

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/example/learning-platform/services/progress/internal/domain"
	"github.com/example/learning-platform/services/progress/internal/store"
)

const (
	ServiceName = "learning.progress.v1.ProgressService"
	maxBatchIDs = 200
)

// ProgressServer is the server API of ProgressService.
type ProgressServer interface {
	UpsertLessonProgress(context.Context, *UpsertLessonProgressRequest) (*UpsertLessonProgressResponse, error)
	GetLessonProgress(context.Context, *GetLessonProgressRequest) (*GetLessonProgressResponse, error)
	BatchGetLessonProgress(context.Context, *BatchGetLessonProgressRequest) (*BatchGetLessonProgressResponse, error)
}

// ProgressService implements ProgressServer on a progress repository.
type ProgressService struct {
	Progress store.ProgressRepository
	Log      *zap.Logger
	Now      func() time.Time
}

func userIDFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errUnauthenticated("AUTH_MISSING", "missing metadata")
	}
	vals := md.Get("user_id")
	if len(vals) == 0 || strings.TrimSpace(vals[0]) == "" {
		return "", errUnauthenticated("AUTH_MISSING", "missing user_id in metadata")
	}
	return strings.TrimSpace(vals[0]), nil
}

func (s *ProgressService) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *ProgressService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *ProgressService) UpsertLessonProgress(ctx context.Context, req *UpsertLessonProgressRequest) (*UpsertLessonProgressResponse, error) {
	userID, err := userIDFromMD(ctx)
	if err != nil {
		return nil, err
	}
	contentID := strings.TrimSpace(req.ContentID)
	if contentID == "" {
		return nil, errInvalidArgument("MISSING_ID", "content_id is required", map[string]string{"content_id": "required"})
	}
	if req.CurrentTime < 0 {
		return nil, errInvalidArgument("INVALID_POSITION", "current_time must not be negative", map[string]string{"current_time": "gte=0"})
	}

	p, err := domain.NewProgress(userID, contentID, req.CurrentTime, req.Duration, s.now())
	if errors.Is(err, domain.ErrDurationUnknown) {
		return &UpsertLessonProgressResponse{Skipped: true}, nil
	}
	if err != nil {
		return nil, errInvalidArgument("INVALID_PROGRESS", err.Error(), nil)
	}
	p.ClientTsMs = domain.OrderingTs(req.ClientTsMs, p.LastAccessedAt)
	out, err := s.Progress.Upsert(ctx, p)
	if err != nil {
		s.log().Error("grpc upsert progress failed", zap.String("content_id", contentID), zap.Error(err))
		return nil, errUnavailable("STORE_UNAVAILABLE", "progress store unavailable")
	}
	return &UpsertLessonProgressResponse{Progress: &out}, nil
}

func (s *ProgressService) GetLessonProgress(ctx context.Context, req *GetLessonProgressRequest) (*GetLessonProgressResponse, error) {
	userID, err := userIDFromMD(ctx)
	if err != nil {
		return nil, err
	}
	contentID := strings.TrimSpace(req.ContentID)
	if contentID == "" {
		return nil, errInvalidArgument("MISSING_ID", "content_id is required", map[string]string{"content_id": "required"})
	}
	p, ok, err := s.Progress.Get(ctx, userID, contentID)
	if err != nil {
		s.log().Error("grpc get progress failed", zap.String("content_id", contentID), zap.Error(err))
		return nil, errUnavailable("STORE_UNAVAILABLE", "progress store unavailable")
	}
	if !ok {
		return &GetLessonProgressResponse{}, nil
	}
	return &GetLessonProgressResponse{Found: true, Progress: &p}, nil
}

func (s *ProgressService) BatchGetLessonProgress(ctx context.Context, req *BatchGetLessonProgressRequest) (*BatchGetLessonProgressResponse, error) {
	userID, err := userIDFromMD(ctx)
	if err != nil {
		return nil, err
	}
	if len(req.ContentIDs) > maxBatchIDs {
		return nil, errInvalidArgument("TOO_MANY_IDS", "too many content_ids", map[string]string{"content_ids": "max=200"})
	}
	rows, err := s.Progress.GetMany(ctx, userID, req.ContentIDs)
	if err != nil {
		s.log().Error("grpc batch get progress failed", zap.Int("count", len(req.ContentIDs)), zap.Error(err))
		return nil, errUnavailable("STORE_UNAVAILABLE", "progress store unavailable")
	}
	out := &BatchGetLessonProgressResponse{Progress: make(map[string]domain.LessonProgress, len(rows))}
	for _, p := range rows {
		out.Progress[p.ContentID] = p
	}
	return out, nil
}

// RegisterProgressServer registers srv on s under ServiceName.
func RegisterProgressServer(s grpc.ServiceRegistrar, srv ProgressServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes ProgressService for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ProgressServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "UpsertLessonProgress", Handler: upsertHandler},
		{MethodName: "GetLessonProgress", Handler: getHandler},
		{MethodName: "BatchGetLessonProgress", Handler: batchGetHandler},
	},
	Metadata: "learning/progress/v1/progress.json",
}

func upsertHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UpsertLessonProgressRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProgressServer).UpsertLessonProgress(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/UpsertLessonProgress"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(ProgressServer).UpsertLessonProgress(ctx, req.(*UpsertLessonProgressRequest))
	})
}

func getHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetLessonProgressRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProgressServer).GetLessonProgress(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetLessonProgress"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(ProgressServer).GetLessonProgress(ctx, req.(*GetLessonProgressRequest))
	})
}

func batchGetHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BatchGetLessonProgressRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProgressServer).BatchGetLessonProgress(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/BatchGetLessonProgress"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(ProgressServer).BatchGetLessonProgress(ctx, req.(*BatchGetLessonProgressRequest))
	})
}

// LoggingInterceptor logs every unary call with its status code.
func LoggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("duration", time.Since(start)),
		}
		if code == codes.OK || code == codes.InvalidArgument || code == codes.Unauthenticated {
			log.Debug("grpc call", fields...)
		} else {
			log.Warn("grpc call", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}
