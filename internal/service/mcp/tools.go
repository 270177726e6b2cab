package mcpsvc

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Имена инструментов.
const (
	ToolGetOrder       = "get_order"
	ToolListOrders     = "list_orders"
	ToolGetOrderItems  = "get_order_items"
	ToolCheckDrift     = "check_order_drift"
	ToolReconcileOrder = "reconcile_order"
	ToolOrderStats     = "order_stats"
)

func orderIDParam() mcp.ToolOption {
	return mcp.WithString("order_id",
		mcp.Required(),
		mcp.Description("Order identifier"),
	)
}

func getOrderTool() mcp.Tool {
	return mcp.NewTool(ToolGetOrder,
		mcp.WithDescription("Return an order with its embedded line item snapshot"),
		orderIDParam(),
	)
}

func listOrdersTool() mcp.Tool {
	return mcp.NewTool(ToolListOrders,
		mcp.WithDescription("List orders, optionally filtered by status"),
		mcp.WithString("status",
			mcp.Description("Order status filter"),
			mcp.Enum("pending", "processing", "shipped", "delivered", "declined", "success"),
		),
	)
}

func getOrderItemsTool() mcp.Tool {
	return mcp.NewTool(ToolGetOrderItems,
		mcp.WithDescription("Read line items of an order directly from the line item store"),
		orderIDParam(),
	)
}

func checkDriftTool() mcp.Tool {
	return mcp.NewTool(ToolCheckDrift,
		mcp.WithDescription("Compare the embedded snapshot of an order with the line item store without writing"),
		orderIDParam(),
	)
}

func reconcileOrderTool() mcp.Tool {
	return mcp.NewTool(ToolReconcileOrder,
		mcp.WithDescription("Rebuild the embedded snapshot of an order from the line item store"),
		orderIDParam(),
	)
}

func orderStatsTool() mcp.Tool {
	return mcp.NewTool(ToolOrderStats,
		mcp.WithDescription("Count orders per status"),
	)
}
