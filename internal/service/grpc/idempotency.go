package grpcsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// IdempotencyKeyHeader: metadata с ключом идемпотентности.
const IdempotencyKeyHeader = "idempotency-key"

const replayFailedMessage = "previous request with the same idempotency key failed"

type cachedFailure struct {
	Code    uint32 `json:"code"`
	Message string `json:"message"`
}

func (s *OrderService) withIdempotency(
	ctx context.Context,
	method string,
	req *structpb.Struct,
	handler func(context.Context) (*structpb.Struct, error),
) (*structpb.Struct, error) {
	if s.idemRepo == nil {
		return handler(ctx)
	}

	key, err := readIdempotencyKey(ctx)
	if err != nil {
		return nil, err
	}
	hash, err := requestHash(method, req)
	if err != nil {
		s.logger.WithError(err).WithField("method", method).Warn("failed to hash request")
		return nil, status.Error(codes.Internal, "failed to initialize idempotent request")
	}

	record, err := s.idemRepo.CreateProcessing(ctx, key, hash, time.Now().UTC().Add(domain.DefaultIdempotencyTTL))
	if err != nil {
		return s.replay(record, err)
	}

	resp, runErr := handler(ctx)
	if runErr != nil {
		s.storeFailure(ctx, key, runErr)
		return nil, runErr
	}

	body, err := protojson.Marshal(resp)
	if err == nil {
		err = s.idemRepo.MarkDone(ctx, key, body, int(codes.OK))
	}
	if err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to cache idempotent response")
	}
	return resp, nil
}

func (s *OrderService) replay(record domain.IdempotencyRecord, createErr error) (*structpb.Struct, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used with a different request")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
	case errors.Is(createErr, domain.ErrIdempotencyKeyRequired):
		return nil, status.Error(codes.InvalidArgument, createErr.Error())
	default:
		s.logger.WithError(createErr).Warn("failed to create idempotency record")
		return nil, status.Error(codes.Internal, "failed to initialize idempotent request")
	}

	switch record.Status {
	case domain.IdempotencyStatusProcessing:
		return nil, status.Error(codes.Aborted, "request with the same idempotency key is still processing")
	case domain.IdempotencyStatusFailed:
		return nil, decodeFailure(record)
	case domain.IdempotencyStatusDone:
		resp := &structpb.Struct{}
		if err := protojson.Unmarshal(record.ResponseBody, resp); err != nil {
			s.logger.WithError(err).WithField("idempotency_key", record.Key).Warn("failed to decode cached response")
			return nil, status.Error(codes.Internal, "failed to decode cached response")
		}
		return resp, nil
	default:
		return nil, status.Error(codes.Internal, "unknown idempotency record status")
	}
}

func (s *OrderService) storeFailure(ctx context.Context, key string, runErr error) {
	st := status.Convert(runErr)
	code := st.Code()
	if code == codes.OK {
		code = codes.Internal
	}

	body, err := json.Marshal(cachedFailure{Code: uint32(code), Message: st.Message()})
	if err != nil {
		body = nil
	}
	if err := s.idemRepo.MarkFailed(ctx, key, body, int(code)); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to cache idempotent failure")
	}
}

func decodeFailure(record domain.IdempotencyRecord) error {
	var failure cachedFailure
	if len(record.ResponseBody) > 0 && json.Unmarshal(record.ResponseBody, &failure) == nil {
		code := codes.Code(failure.Code)
		if code == codes.OK || code > codes.Unauthenticated {
			code = codes.Internal
		}
		if failure.Message == "" {
			failure.Message = replayFailedMessage
		}
		return status.Error(code, failure.Message)
	}
	if record.HTTPStatus > 0 && record.HTTPStatus <= int(codes.Unauthenticated) {
		return status.Error(codes.Code(record.HTTPStatus), replayFailedMessage)
	}
	return status.Error(codes.Internal, replayFailedMessage)
}

func readIdempotencyKey(ctx context.Context) (string, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		for _, value := range md.Get(IdempotencyKeyHeader) {
			if key := strings.TrimSpace(value); key != "" {
				return key, nil
			}
		}
	}
	return "", status.Error(codes.InvalidArgument, "idempotency-key metadata is required")
}

// requestHash: sha256 от имени метода и детерминированной сериализации запроса.
func requestHash(method string, req *structpb.Struct) (string, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{':'})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
