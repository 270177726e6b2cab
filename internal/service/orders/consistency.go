package orders

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// DriftReport сравнивает встроенный снимок заказа с хранилищем позиций.
type DriftReport struct {
	OrderID       string
	SnapshotCount int
	StoreCount    int
	// Missing: позиции есть в хранилище, но отсутствуют в снимке.
	Missing []string
	// Stale: позиции есть в снимке, но удалены из хранилища.
	Stale []string
	// Changed: позиции есть в обоих местах, но отличаются полями.
	Changed   []string
	CheckedAt time.Time
}

// InSync сообщает, что снимок совпадает с хранилищем.
func (r DriftReport) InSync() bool {
	return len(r.Missing) == 0 && len(r.Stale) == 0 && len(r.Changed) == 0 && r.SnapshotCount == r.StoreCount
}

// CheckConsistency сверяет снимок заказа с хранилищем позиций, ничего не записывая.
func (e *Engine) CheckConsistency(ctx context.Context, id string) (DriftReport, error) {
	defer e.metrics.ObserveOperation(OpCheck)()

	order, err := e.loadOrder(ctx, OpCheck, id)
	if err != nil {
		e.recordFailure(OpCheck, err)
		return DriftReport{}, err
	}
	stored, err := e.items.FindByOrderID(ctx, id)
	if err != nil {
		err = &domain.PersistenceError{Op: OpCheck, Step: StepLoadItems, OrderID: id, Err: err}
		e.recordFailure(OpCheck, err)
		return DriftReport{}, err
	}

	report := compareItems(id, order.Items, stored)
	report.CheckedAt = e.timestamp()
	if !report.InSync() {
		e.metrics.RecordDriftDetected()
		e.logger.WithFields(log.Fields{
			"order_id": id,
			"missing":  len(report.Missing),
			"stale":    len(report.Stale),
			"changed":  len(report.Changed),
		}).Warn("order snapshot drifted from line item store")
	}
	return report, nil
}

// ReconcileOrder пересобирает снимок заказа из хранилища позиций.
func (e *Engine) ReconcileOrder(ctx context.Context, id string) (domain.Order, error) {
	defer e.metrics.ObserveOperation(OpReconcile)()

	order, err := e.loadOrder(ctx, OpReconcile, id)
	if err != nil {
		e.recordFailure(OpReconcile, err)
		return domain.Order{}, err
	}
	order.UpdatedAt = e.timestamp()

	reconciled, err := e.reconcile(ctx, OpReconcile, order, nil)
	if err != nil {
		e.recordFailure(OpReconcile, err)
		return domain.Order{}, err
	}

	e.metrics.RecordOrderReconciled()
	e.logger.WithFields(log.Fields{
		"order_id": id,
		"items":    len(reconciled.Items),
	}).Info("order snapshot rebuilt")
	e.publish(ctx, domain.EventOrderReconciled, reconciled)
	return reconciled, nil
}

func compareItems(orderID string, snapshot, stored []domain.LineItem) DriftReport {
	report := DriftReport{
		OrderID:       orderID,
		SnapshotCount: len(snapshot),
		StoreCount:    len(stored),
		Missing:       []string{},
		Stale:         []string{},
		Changed:       []string{},
	}

	inSnapshot := make(map[string]domain.LineItem, len(snapshot))
	for _, item := range snapshot {
		inSnapshot[item.ID] = item
	}

	inStore := make(map[string]struct{}, len(stored))
	for _, item := range stored {
		inStore[item.ID] = struct{}{}
		cached, ok := inSnapshot[item.ID]
		switch {
		case !ok:
			report.Missing = append(report.Missing, item.ID)
		case !sameItem(cached, item):
			report.Changed = append(report.Changed, item.ID)
		}
	}
	for _, item := range snapshot {
		if _, ok := inStore[item.ID]; !ok {
			report.Stale = append(report.Stale, item.ID)
		}
	}
	return report
}

func sameItem(a, b domain.LineItem) bool {
	return a.OrderID == b.OrderID &&
		a.ProductID == b.ProductID &&
		a.Quantity == b.Quantity &&
		a.UnitPrice.Equal(b.UnitPrice) &&
		a.Position == b.Position
}
