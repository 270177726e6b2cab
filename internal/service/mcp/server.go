// Package mcpsvc отдаёт операции чтения и сверки заказов как инструменты MCP.
package mcpsvc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/api"
	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

const ServerName = "orderstore-mcp"

// Server связывает MCP-сервер с движком заказов.
type Server struct {
	mcp    *server.MCPServer
	orders api.Orders
	logger *log.Entry
}

// NewServer регистрирует инструменты заказов.
func NewServer(orders api.Orders, version string, logger *log.Entry) *Server {
	if logger == nil {
		logger = log.WithField("component", "mcp")
	}
	s := &Server{
		mcp:    server.NewMCPServer(ServerName, version, server.WithToolCapabilities(false)),
		orders: orders,
		logger: logger,
	}

	s.mcp.AddTool(getOrderTool(), s.handleGetOrder)
	s.mcp.AddTool(listOrdersTool(), s.handleListOrders)
	s.mcp.AddTool(getOrderItemsTool(), s.handleGetOrderItems)
	s.mcp.AddTool(checkDriftTool(), s.handleCheckDrift)
	s.mcp.AddTool(reconcileOrderTool(), s.handleReconcileOrder)
	s.mcp.AddTool(orderStatsTool(), s.handleOrderStats)
	return s
}

// MCPServer нужен для тестов и альтернативных транспортов.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio блокируется до закрытия stdin.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleGetOrder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("order_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return s.toolError(ToolGetOrder, err), nil
	}
	return jsonResult(api.FromOrder(order))
}

func (s *Server) handleListOrders(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		list []domain.Order
		err  error
	)
	if status := request.GetString("status", ""); status != "" {
		list, err = s.orders.ListOrdersByStatus(ctx, domain.OrderStatus(status))
	} else {
		list, err = s.orders.ListOrders(ctx)
	}
	if err != nil {
		return s.toolError(ToolListOrders, err), nil
	}
	return jsonResult(api.FromOrders(list))
}

func (s *Server) handleGetOrderItems(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("order_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items, err := s.orders.GetOrderItems(ctx, id)
	if err != nil {
		return s.toolError(ToolGetOrderItems, err), nil
	}
	return jsonResult(api.ItemList{OrderID: id, Items: api.FromLineItems(items)})
}

func (s *Server) handleCheckDrift(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("order_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	report, err := s.orders.CheckConsistency(ctx, id)
	if err != nil {
		return s.toolError(ToolCheckDrift, err), nil
	}
	return jsonResult(api.FromDriftReport(report))
}

func (s *Server) handleReconcileOrder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("order_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	order, err := s.orders.ReconcileOrder(ctx, id)
	if err != nil {
		return s.toolError(ToolReconcileOrder, err), nil
	}
	s.logger.WithField("order_id", id).Info("order snapshot rebuilt via mcp")
	return jsonResult(api.FromOrder(order))
}

func (s *Server) handleOrderStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summary, err := s.orders.StatusSummary(ctx)
	if err != nil {
		return s.toolError(ToolOrderStats, err), nil
	}
	return jsonResult(api.FromSummary(summary))
}

// toolError возвращает ошибку движка как результат инструмента с флагом isError.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	resp := api.NewErrorResponse(err)
	if resp.Code == api.CodeInternal || resp.Code == api.CodePersistence {
		s.logger.WithError(err).WithField("tool", tool).Error("mcp tool failed")
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", resp.Code, resp.Error))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
