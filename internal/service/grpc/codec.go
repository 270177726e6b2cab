package grpcsvc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/orderstore/internal/api"
)

// decodeStruct раскладывает Struct в DTO через JSON.
func decodeStruct(in *structpb.Struct, dst any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request struct: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// encodeStruct собирает Struct из DTO через JSON.
func encodeStruct(src any) (*structpb.Struct, error) {
	raw, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("decode response struct: %w", err)
	}
	return out, nil
}

func invalidRequest(err error) error {
	return status.Error(codes.InvalidArgument, err.Error())
}

// toStatus переводит ошибку движка в gRPC-статус.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	resp := api.NewErrorResponse(err)
	code := codes.Internal
	switch resp.Code {
	case api.CodeValidation:
		code = codes.InvalidArgument
	case api.CodeNotFound:
		code = codes.NotFound
	case api.CodeAlreadyExists:
		code = codes.AlreadyExists
	case api.CodeCatalogLookup:
		code = codes.FailedPrecondition
	}
	return status.Error(code, resp.Error)
}
