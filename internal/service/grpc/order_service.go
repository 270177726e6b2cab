// Package grpcsvc отдаёт движок заказов по gRPC.
package grpcsvc

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/orderstore/internal/api"
	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// OrderService реализует OrderServiceServer поверх api.Orders.
type OrderService struct {
	orders   api.Orders
	idemRepo domain.IdempotencyRepository
	logger   *log.Entry
}

type idRequest struct {
	ID string `json:"id"`
}

type listRequest struct {
	Status string `json:"status"`
}

type updateRequest struct {
	ID string `json:"id"`
	api.UpdateOrderRequest
}

type deleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// NewOrderService создаёт сервис. idemRepo == nil отключает idempotency-key для CreateOrder.
func NewOrderService(orders api.Orders, idemRepo domain.IdempotencyRepository, logger *log.Entry) *OrderService {
	if logger == nil {
		logger = log.WithField("component", "grpc-order-service")
	}
	return &OrderService{orders: orders, idemRepo: idemRepo, logger: logger}
}

func (s *OrderService) CreateOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.withIdempotency(ctx, MethodCreateOrder, in, func(ctx context.Context) (*structpb.Struct, error) {
		var req api.CreateOrderRequest
		if err := decodeStruct(in, &req); err != nil {
			return nil, invalidRequest(err)
		}
		header, items := req.Header()
		order, err := s.orders.CreateOrder(ctx, header, items)
		if err != nil {
			return nil, s.fail(MethodCreateOrder, "", err)
		}
		return encodeStruct(api.FromOrder(order))
	})
}

func (s *OrderService) GetOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireID(in)
	if err != nil {
		return nil, err
	}
	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, s.fail(MethodGetOrder, id, err)
	}
	return encodeStruct(api.FromOrder(order))
}

func (s *OrderService) ListOrders(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req listRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, invalidRequest(err)
	}

	var (
		list []domain.Order
		err  error
	)
	if filter := strings.TrimSpace(req.Status); filter != "" {
		list, err = s.orders.ListOrdersByStatus(ctx, domain.OrderStatus(filter))
	} else {
		list, err = s.orders.ListOrders(ctx)
	}
	if err != nil {
		return nil, s.fail(MethodListOrders, "", err)
	}
	return encodeStruct(api.FromOrders(list))
}

func (s *OrderService) UpdateOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req updateRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, invalidRequest(err)
	}
	patch, replacement := req.Patch()
	order, err := s.orders.UpdateOrder(ctx, req.ID, patch, replacement)
	if err != nil {
		return nil, s.fail(MethodUpdateOrder, req.ID, err)
	}
	return encodeStruct(api.FromOrder(order))
}

func (s *OrderService) DeleteOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireID(in)
	if err != nil {
		return nil, err
	}
	if err := s.orders.DeleteOrder(ctx, id); err != nil {
		return nil, s.fail(MethodDeleteOrder, id, err)
	}
	return encodeStruct(deleteResponse{ID: id, Deleted: true})
}

func (s *OrderService) GetOrderItems(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireID(in)
	if err != nil {
		return nil, err
	}
	items, err := s.orders.GetOrderItems(ctx, id)
	if err != nil {
		return nil, s.fail(MethodGetOrderItems, id, err)
	}
	return encodeStruct(api.ItemList{OrderID: id, Items: api.FromLineItems(items)})
}

func (s *OrderService) CheckConsistency(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireID(in)
	if err != nil {
		return nil, err
	}
	report, err := s.orders.CheckConsistency(ctx, id)
	if err != nil {
		return nil, s.fail(MethodCheckConsistency, id, err)
	}
	return encodeStruct(api.FromDriftReport(report))
}

func (s *OrderService) ReconcileOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireID(in)
	if err != nil {
		return nil, err
	}
	order, err := s.orders.ReconcileOrder(ctx, id)
	if err != nil {
		return nil, s.fail(MethodReconcileOrder, id, err)
	}
	return encodeStruct(api.FromOrder(order))
}

func (s *OrderService) OrderStats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	summary, err := s.orders.StatusSummary(ctx)
	if err != nil {
		return nil, s.fail(MethodOrderStats, "", err)
	}
	return encodeStruct(api.FromSummary(summary))
}

// requireID достаёт id; пустой id проверяет движок, здесь только формат запроса.
func requireID(in *structpb.Struct) (string, error) {
	var req idRequest
	if err := decodeStruct(in, &req); err != nil {
		return "", invalidRequest(err)
	}
	return req.ID, nil
}

func (s *OrderService) fail(method, orderID string, err error) error {
	st := toStatus(err)
	if status.Code(st) == codes.Internal {
		s.logger.WithError(err).WithFields(log.Fields{
			"method":   method,
			"order_id": orderID,
		}).Error("order request failed")
	}
	return st
}

var _ OrderServiceServer = (*OrderService)(nil)
