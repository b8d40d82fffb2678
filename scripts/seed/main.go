package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/projectledger/internal/app"
	"github.com/odyssey-erp/projectledger/internal/expenses"
	"github.com/odyssey-erp/projectledger/internal/inventory"
	"github.com/odyssey-erp/projectledger/internal/invoicing"
	"github.com/odyssey-erp/projectledger/internal/ledger"
	"github.com/odyssey-erp/projectledger/internal/personnel"
	"github.com/odyssey-erp/projectledger/internal/platform/db"
	"github.com/odyssey-erp/projectledger/internal/procurement"
	"github.com/odyssey-erp/projectledger/internal/projects"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

const seedActor int64 = 1

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := db.Migrate(cfg.PGDSN); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	svc := app.NewServices(pool, cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	today := time.Now().UTC().Truncate(24 * time.Hour)

	// Phase 1: project and opening deposit
	fmt.Println("→ Seeding project...")
	project, err := svc.Projects.Create(ctx, projects.CreateInput{
		Name:          "Résidence Les Palmiers",
		PlannedBudget: d("25000000"),
		Status:        projects.StatusActive,
		StartDate:     today.AddDate(0, -2, 0),
		CreatedBy:     seedActor,
	})
	if err != nil {
		log.Fatalf("seed project: %v", err)
	}
	if _, err := svc.Ledger.Record(ctx, ledger.AppendInput{
		ProjectID:     project.ID,
		Kind:          ledger.KindDeposit,
		Amount:        d("10000000"),
		Date:          today.AddDate(0, -2, 0),
		Category:      "Avance client",
		PaymentMethod: string(shared.PaymentTransfer),
		Description:   "Opening advance",
		CreatedBy:     seedActor,
	}); err != nil {
		log.Fatalf("seed deposit: %v", err)
	}

	// Phase 2: catalogue
	fmt.Println("→ Seeding products...")
	cement, err := svc.Inventory.CreateProduct(ctx, inventory.ProductInput{
		Name: "Ciment CPJ 45", Category: "Matériaux", Unit: "sac", ReorderThreshold: d("50"),
	})
	if err != nil {
		log.Fatalf("seed cement: %v", err)
	}
	rebar, err := svc.Inventory.CreateProduct(ctx, inventory.ProductInput{
		Name: "Fer à béton 12mm", Category: "Matériaux", Unit: "barre", ReorderThreshold: d("20"),
	})
	if err != nil {
		log.Fatalf("seed rebar: %v", err)
	}

	// Phase 3: purchase order, validated then received
	fmt.Println("→ Seeding procurement...")
	order, _, err := svc.Procurement.CreatePurchaseOrder(ctx, procurement.CreateInput{
		ProjectID:     project.ID,
		SupplierID:    1,
		OrderDate:     today.AddDate(0, 0, -20),
		PaymentMethod: shared.PaymentCheque,
		Lines: []procurement.LineInput{
			{ProductID: cement.ID, Quantity: d("200"), UnitPrice: d("5000")},
			{ProductID: rebar.ID, Quantity: d("60"), UnitPrice: d("4500")},
		},
		ActorID: seedActor,
	})
	if err != nil {
		log.Fatalf("seed purchase order: %v", err)
	}
	if _, err := svc.Procurement.ValidatePurchaseOrder(ctx, order.ID, seedActor); err != nil {
		log.Fatalf("validate purchase order: %v", err)
	}
	if _, err := svc.Procurement.ReceivePurchaseOrder(ctx, order.ID, seedActor, today.AddDate(0, 0, -18)); err != nil {
		log.Fatalf("receive purchase order: %v", err)
	}
	if _, err := svc.Inventory.Move(ctx, inventory.MovementInput{
		ProjectID: project.ID, ProductID: cement.ID, Kind: inventory.MovementOut, Quantity: d("160"),
		Note: "Fondations bloc A", ActorID: seedActor,
	}); err != nil {
		log.Fatalf("seed stock out: %v", err)
	}

	// Phase 4: expenses and personnel
	fmt.Println("→ Seeding expenses and personnel...")
	if _, err := svc.Expenses.Create(ctx, expenses.CreateInput{
		ProjectID: project.ID, Category: "Location engins", Date: today.AddDate(0, 0, -10),
		Amount: d("350000"), PaymentMethod: shared.PaymentCash, Description: "Pelleteuse 2 jours",
		Status: expenses.StatusValidated, ActorID: seedActor,
	}); err != nil {
		log.Fatalf("seed expense: %v", err)
	}
	agreed := d("900000")
	mason, err := svc.Personnel.RegisterWorker(ctx, personnel.WorkerInput{
		FirstName: "Kofi", LastName: "Mensah", Role: "Maçon", ContractType: "Journalier",
		DailySalary: d("15000"), AgreedSalary: &agreed,
	})
	if err != nil {
		log.Fatalf("seed worker: %v", err)
	}
	if _, err := svc.Personnel.CreatePayment(ctx, personnel.PaymentInput{
		WorkerID: mason.ID, ProjectID: project.ID, Date: today.AddDate(0, 0, -7), Amount: d("300000"),
		Days: 20, PaymentMethod: shared.PaymentMobileMoney, Status: personnel.StatusValidated, ActorID: seedActor,
	}); err != nil {
		log.Fatalf("seed personnel payment: %v", err)
	}

	// Phase 5: billing
	fmt.Println("→ Seeding invoicing...")
	projectID := project.ID
	quote, _, err := svc.Invoicing.CreateQuote(ctx, invoicing.QuoteInput{
		ProjectID: &projectID, CustomerID: 1, IssueDate: today.AddDate(0, -2, 0),
		Lines: []invoicing.LineInput{
			{Description: "Gros œuvre bloc A", Unit: "forfait", Quantity: d("1"), UnitPrice: d("8000000")},
		},
		ActorID: seedActor,
	})
	if err != nil {
		log.Fatalf("seed quote: %v", err)
	}
	if _, err := svc.Invoicing.TransitionQuote(ctx, quote.ID, invoicing.QuoteAccepted, seedActor, "signed"); err != nil {
		log.Fatalf("accept quote: %v", err)
	}
	invoice, _, err := svc.Invoicing.CreateInvoiceFromQuote(ctx, quote.ID, invoicing.FromQuoteInput{
		IssueDate: today.AddDate(0, -1, 0), ActorID: seedActor,
	})
	if err != nil {
		log.Fatalf("seed invoice: %v", err)
	}
	if _, _, err := svc.Invoicing.RecordPayment(ctx, invoice.ID, invoicing.PaymentInput{
		Date: today.AddDate(0, 0, -5), Amount: d("4000000"), Method: shared.PaymentTransfer, ActorID: seedActor,
	}); err != nil {
		log.Fatalf("seed invoice payment: %v", err)
	}

	summary, err := svc.Projects.Summary(ctx, project.ID)
	if err != nil {
		log.Fatalf("summary: %v", err)
	}
	fmt.Printf("✓ Seeded %s: balance %s\n", project.Code, summary.CashBalance.StringFixed(2))
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
