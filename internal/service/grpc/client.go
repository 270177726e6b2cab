package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/orderstore/internal/api"
)

// OrderServiceClient: типизированный клиент поверх ClientConn.Invoke.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

// WithIdempotencyKey добавляет ключ идемпотентности в исходящие metadata.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, IdempotencyKeyHeader, key)
}

func (c *OrderServiceClient) CreateOrder(ctx context.Context, req api.CreateOrderRequest, opts ...grpc.CallOption) (api.Order, error) {
	var out api.Order
	err := c.call(ctx, MethodCreateOrder, req, &out, opts...)
	return out, err
}

func (c *OrderServiceClient) GetOrder(ctx context.Context, id string, opts ...grpc.CallOption) (api.Order, error) {
	var out api.Order
	err := c.call(ctx, MethodGetOrder, idRequest{ID: id}, &out, opts...)
	return out, err
}

// ListOrders возвращает все заказы или только со статусом status.
func (c *OrderServiceClient) ListOrders(ctx context.Context, status string, opts ...grpc.CallOption) (api.OrderList, error) {
	var out api.OrderList
	err := c.call(ctx, MethodListOrders, listRequest{Status: status}, &out, opts...)
	return out, err
}

func (c *OrderServiceClient) UpdateOrder(ctx context.Context, id string, req api.UpdateOrderRequest, opts ...grpc.CallOption) (api.Order, error) {
	var out api.Order
	err := c.call(ctx, MethodUpdateOrder, updateRequest{ID: id, UpdateOrderRequest: req}, &out, opts...)
	return out, err
}

func (c *OrderServiceClient) DeleteOrder(ctx context.Context, id string, opts ...grpc.CallOption) error {
	var out deleteResponse
	return c.call(ctx, MethodDeleteOrder, idRequest{ID: id}, &out, opts...)
}

func (c *OrderServiceClient) GetOrderItems(ctx context.Context, id string, opts ...grpc.CallOption) (api.ItemList, error) {
	var out api.ItemList
	err := c.call(ctx, MethodGetOrderItems, idRequest{ID: id}, &out, opts...)
	return out, err
}

func (c *OrderServiceClient) CheckConsistency(ctx context.Context, id string, opts ...grpc.CallOption) (api.DriftReport, error) {
	var out api.DriftReport
	err := c.call(ctx, MethodCheckConsistency, idRequest{ID: id}, &out, opts...)
	return out, err
}

func (c *OrderServiceClient) ReconcileOrder(ctx context.Context, id string, opts ...grpc.CallOption) (api.Order, error) {
	var out api.Order
	err := c.call(ctx, MethodReconcileOrder, idRequest{ID: id}, &out, opts...)
	return out, err
}

func (c *OrderServiceClient) OrderStats(ctx context.Context, opts ...grpc.CallOption) (api.Stats, error) {
	var out api.Stats
	err := c.call(ctx, MethodOrderStats, struct{}{}, &out, opts...)
	return out, err
}

func (c *OrderServiceClient) call(ctx context.Context, method string, req, out any, opts ...grpc.CallOption) error {
	in, err := encodeStruct(req)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, resp, opts...); err != nil {
		return err
	}
	return decodeStruct(resp, out)
}
