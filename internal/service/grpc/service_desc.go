package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName: полное имя gRPC-сервиса.
const ServiceName = "orderstore.v1.OrderService"

// Полные имена методов.
const (
	MethodCreateOrder      = "/" + ServiceName + "/CreateOrder"
	MethodGetOrder         = "/" + ServiceName + "/GetOrder"
	MethodListOrders       = "/" + ServiceName + "/ListOrders"
	MethodUpdateOrder      = "/" + ServiceName + "/UpdateOrder"
	MethodDeleteOrder      = "/" + ServiceName + "/DeleteOrder"
	MethodGetOrderItems    = "/" + ServiceName + "/GetOrderItems"
	MethodCheckConsistency = "/" + ServiceName + "/CheckConsistency"
	MethodReconcileOrder   = "/" + ServiceName + "/ReconcileOrder"
	MethodOrderStats       = "/" + ServiceName + "/OrderStats"
)

// OrderServiceServer: серверная сторона. Сообщения, google.protobuf.Struct
// с JSON-представлением из пакета api.
type OrderServiceServer interface {
	CreateOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListOrders(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrderItems(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckConsistency(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReconcileOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OrderStats(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(OrderServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc регистрируется вручную: сгенерированного кода нет.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateOrder", Handler: unaryHandler(MethodCreateOrder, OrderServiceServer.CreateOrder)},
		{MethodName: "GetOrder", Handler: unaryHandler(MethodGetOrder, OrderServiceServer.GetOrder)},
		{MethodName: "ListOrders", Handler: unaryHandler(MethodListOrders, OrderServiceServer.ListOrders)},
		{MethodName: "UpdateOrder", Handler: unaryHandler(MethodUpdateOrder, OrderServiceServer.UpdateOrder)},
		{MethodName: "DeleteOrder", Handler: unaryHandler(MethodDeleteOrder, OrderServiceServer.DeleteOrder)},
		{MethodName: "GetOrderItems", Handler: unaryHandler(MethodGetOrderItems, OrderServiceServer.GetOrderItems)},
		{MethodName: "CheckConsistency", Handler: unaryHandler(MethodCheckConsistency, OrderServiceServer.CheckConsistency)},
		{MethodName: "ReconcileOrder", Handler: unaryHandler(MethodReconcileOrder, OrderServiceServer.ReconcileOrder)},
		{MethodName: "OrderStats", Handler: unaryHandler(MethodOrderStats, OrderServiceServer.OrderStats)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "orderstore/v1/order_service",
}

// RegisterOrderServiceServer регистрирует сервис на gRPC-сервере.
func RegisterOrderServiceServer(registrar grpc.ServiceRegistrar, srv OrderServiceServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}
