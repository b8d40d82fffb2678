// Package procurement manages purchase orders: validation charges the project's
// ledger and reception books the ordered goods into the project's stock.
package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/projectledger/internal/approval"
	"github.com/odyssey-erp/projectledger/internal/inventory"
	"github.com/odyssey-erp/projectledger/internal/ledger"
	"github.com/odyssey-erp/projectledger/internal/sequence"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (PurchaseOrder, []Line, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error)
}

// TxRepository exposes transactional operations used by Service.
type TxRepository interface {
	Counter() sequence.Counter
	Ledger() ledger.TxRepository
	Inventory() inventory.TxRepository
	Approvals() approval.Recorder
	InsertOrder(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
	UpdateLine(ctx context.Context, line Line) error
	GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, []Line, error)
	UpdateTotal(ctx context.Context, id int64, po PurchaseOrder) error
	UpdateStatus(ctx context.Context, id int64, status approval.State, decision approval.Decision, receivedDate *time.Time) error
}

// Service orchestrates procurement flows.
type Service struct {
	repo  RepositoryPort
	codes *sequence.Generator
	now   func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, codes *sequence.Generator) *Service {
	if codes == nil {
		codes = sequence.NewGenerator(nil)
	}
	return &Service{repo: repo, codes: codes, now: time.Now}
}

func validateLine(in LineInput) error {
	if in.ProductID == 0 {
		return fmt.Errorf("procurement: line product required: %w", shared.ErrValidation)
	}
	if !in.Quantity.IsPositive() {
		return fmt.Errorf("procurement: line quantity %s: %w", in.Quantity, shared.ErrInvalidAmount)
	}
	if in.UnitPrice.IsNegative() {
		return fmt.Errorf("procurement: line unit price %s: %w", in.UnitPrice, shared.ErrInvalidAmount)
	}
	return nil
}

// CreatePurchaseOrder persists the order and its lines with a fresh ACH code. An order
// created as validated charges the project once.
func (s *Service) CreatePurchaseOrder(ctx context.Context, in CreateInput) (PurchaseOrder, []Line, error) {
	if in.ProjectID == 0 || in.SupplierID == 0 || in.ActorID == 0 {
		return PurchaseOrder{}, nil, fmt.Errorf("procurement: project, supplier and actor required: %w", shared.ErrValidation)
	}
	if in.PaymentMethod != "" && !in.PaymentMethod.Valid() {
		return PurchaseOrder{}, nil, fmt.Errorf("procurement: payment method %q: %w", in.PaymentMethod, shared.ErrValidation)
	}
	for _, l := range in.Lines {
		if err := validateLine(l); err != nil {
			return PurchaseOrder{}, nil, err
		}
	}
	step, err := Workflow.Birth(in.Status)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	orderDate := in.OrderDate
	if orderDate.IsZero() {
		orderDate = s.now()
	}
	po := PurchaseOrder{
		ProjectID:         in.ProjectID,
		SupplierID:        in.SupplierID,
		OrderDate:         orderDate,
		SupplierInvoiceNo: in.SupplierInvoiceNo,
		PaymentMethod:     in.PaymentMethod,
		Status:            StatusDraft,
		Notes:             in.Notes,
		CreatedBy:         in.ActorID,
	}
	var lines []Line
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.Ledger().LockProject(ctx, po.ProjectID); err != nil {
			return err
		}
		code, err := s.codes.Next(ctx, tx.Counter(), sequence.KindPurchaseOrder)
		if err != nil {
			return err
		}
		po.Code = code
		if po.ID, err = tx.InsertOrder(ctx, po); err != nil {
			return err
		}
		for _, li := range in.Lines {
			line := RecomputeLine(Line{OrderID: po.ID, ProductID: li.ProductID, Quantity: li.Quantity, UnitPrice: li.UnitPrice, Notes: li.Notes})
			if line.ID, err = tx.InsertLine(ctx, line); err != nil {
				return err
			}
			lines = append(lines, line)
		}
		po.Total = OrderTotal(lines)
		if err := tx.UpdateTotal(ctx, po.ID, po); err != nil {
			return err
		}
		submit := approval.Step{From: StatusDraft, To: StatusDraft, Action: approval.ActionSubmit}
		if err := tx.Approvals().RecordApproval(ctx, approval.NewLog(Module, po.ID, submit, in.ActorID, "")); err != nil {
			return err
		}
		if !step.Decides {
			return nil
		}
		po, err = s.step(ctx, tx, po, lines, step, in.ActorID, "", nil)
		return err
	})
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	return po, lines, nil
}

// AddLine appends a line to a draft order and re-derives its total.
func (s *Service) AddLine(ctx context.Context, orderID int64, in LineInput) (PurchaseOrder, Line, error) {
	if err := validateLine(in); err != nil {
		return PurchaseOrder{}, Line{}, err
	}
	var po PurchaseOrder
	var line Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var lines []Line
		var err error
		po, lines, err = s.editable(ctx, tx, orderID)
		if err != nil {
			return err
		}
		line = RecomputeLine(Line{OrderID: orderID, ProductID: in.ProductID, Quantity: in.Quantity, UnitPrice: in.UnitPrice, Notes: in.Notes})
		if line.ID, err = tx.InsertLine(ctx, line); err != nil {
			return err
		}
		po.Total = OrderTotal(append(lines, line))
		return tx.UpdateTotal(ctx, orderID, po)
	})
	if err != nil {
		return PurchaseOrder{}, Line{}, err
	}
	return po, line, nil
}

// UpdateLine rewrites a draft order line and re-derives the order total.
func (s *Service) UpdateLine(ctx context.Context, orderID, lineID int64, in LineInput) (PurchaseOrder, Line, error) {
	if err := validateLine(in); err != nil {
		return PurchaseOrder{}, Line{}, err
	}
	var po PurchaseOrder
	var line Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var lines []Line
		var err error
		po, lines, err = s.editable(ctx, tx, orderID)
		if err != nil {
			return err
		}
		found := false
		for i := range lines {
			if lines[i].ID != lineID {
				continue
			}
			lines[i] = RecomputeLine(Line{ID: lineID, OrderID: orderID, ProductID: in.ProductID, Quantity: in.Quantity, UnitPrice: in.UnitPrice, Notes: in.Notes})
			line, found = lines[i], true
		}
		if !found {
			return fmt.Errorf("procurement: line %d: %w", lineID, shared.ErrNotFound)
		}
		if err := tx.UpdateLine(ctx, line); err != nil {
			return err
		}
		po.Total = OrderTotal(lines)
		return tx.UpdateTotal(ctx, orderID, po)
	})
	if err != nil {
		return PurchaseOrder{}, Line{}, err
	}
	return po, line, nil
}

func (s *Service) editable(ctx context.Context, tx TxRepository, orderID int64) (PurchaseOrder, []Line, error) {
	po, lines, err := tx.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	if po.Status != StatusDraft {
		return PurchaseOrder{}, nil, fmt.Errorf("procurement: edit %s order: %w", po.Status, shared.ErrInvalidTransition)
	}
	return po, lines, nil
}

// Transition moves an order to status to, applying its ledger or stock effect.
func (s *Service) Transition(ctx context.Context, id int64, to approval.State, actor int64, note string) (PurchaseOrder, error) {
	return s.transition(ctx, id, to, actor, note, nil)
}

func (s *Service) transition(ctx context.Context, id int64, to approval.State, actor int64, note string, receivedDate *time.Time) (PurchaseOrder, error) {
	if actor == 0 {
		return PurchaseOrder{}, fmt.Errorf("procurement: actor required: %w", shared.ErrValidation)
	}
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, lines, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		step, err := Workflow.Step(current.Status, to)
		if err != nil {
			return err
		}
		po, err = s.step(ctx, tx, current, lines, step, actor, note, receivedDate)
		return err
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// ValidatePurchaseOrder approves a draft order and charges the project.
func (s *Service) ValidatePurchaseOrder(ctx context.Context, id, actor int64) (PurchaseOrder, error) {
	return s.Transition(ctx, id, StatusValidated, actor, "")
}

// ReceivePurchaseOrder books every line into the project's stock. A zero date means today.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, id, actor int64, receivedDate time.Time) (PurchaseOrder, error) {
	if receivedDate.IsZero() {
		receivedDate = s.now()
	}
	return s.transition(ctx, id, StatusReceived, actor, "", &receivedDate)
}

// CancelPurchaseOrder cancels a draft or validated order. A validated order's ledger
// entry is kept.
func (s *Service) CancelPurchaseOrder(ctx context.Context, id, actor int64, reason string) (PurchaseOrder, error) {
	return s.Transition(ctx, id, StatusCancelled, actor, reason)
}

// GetPurchaseOrder returns the order with its lines.
func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, []Line, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListPurchaseOrders returns orders.
func (s *Service) ListPurchaseOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error) {
	if filter.Limit <= 0 {
		filter.Limit = 200
	}
	return s.repo.ListOrders(ctx, filter)
}

func (s *Service) step(ctx context.Context, tx TxRepository, po PurchaseOrder, lines []Line, step approval.Step, actor int64, note string, receivedDate *time.Time) (PurchaseOrder, error) {
	now := s.now()
	if step.Approves {
		_, err := ledger.Append(ctx, tx.Ledger(), ledger.AppendInput{
			ProjectID:     po.ProjectID,
			Kind:          ledger.KindExpense,
			Amount:        po.Total,
			Date:          po.OrderDate,
			Category:      LedgerCategory,
			PaymentMethod: string(po.PaymentMethod),
			Reference:     po.Code,
			Description:   fmt.Sprintf("Achat %s", po.Code),
			SourceModule:  Module,
			SourceID:      po.ID,
			CreatedBy:     actor,
		})
		if err != nil {
			return PurchaseOrder{}, err
		}
	}
	if step.To == StatusReceived {
		if receivedDate == nil {
			receivedDate = &now
		}
		orderID := po.ID
		for _, l := range lines {
			_, err := inventory.Receive(ctx, tx.Inventory(), inventory.ReceiveInput{
				ProjectID:       po.ProjectID,
				ProductID:       l.ProductID,
				Quantity:        l.Quantity,
				UnitPrice:       l.UnitPrice,
				PurchaseOrderID: &orderID,
				Note:            fmt.Sprintf("Réception %s", po.Code),
				ActorID:         actor,
			}, now)
			if err != nil {
				return PurchaseOrder{}, err
			}
		}
		po.ReceivedDate = receivedDate
	} else {
		receivedDate = nil
	}
	decision := approval.Decide(step, actor, now)
	if err := tx.UpdateStatus(ctx, po.ID, step.To, decision, receivedDate); err != nil {
		return PurchaseOrder{}, err
	}
	po.Status = step.To
	if decision.By != nil {
		po.ApprovedBy, po.ApprovedAt = decision.By, decision.At
	}
	if err := tx.Approvals().RecordApproval(ctx, approval.NewLog(Module, po.ID, step, actor, note)); err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}
