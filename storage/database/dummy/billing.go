package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/billing"
)

type billingRepository struct {
	db *DB
}

var _ billing.Repository = (*billingRepository)(nil) // interface compliance check

func NewBillingRepository(db *DB) billing.Repository {
	return &billingRepository{db: db}
}

// payment plans

func (repo *billingRepository) checkPlan(p billing.PaymentPlan) error {
	if p.CurriculumID != nil {
		if _, ok := repo.db.curricula[*p.CurriculumID]; !ok {
			return core.NewFieldError("curriculum_id", errReferencedMissing)
		}
	}
	return nil
}

func (repo *billingRepository) CreatePaymentPlan(_ context.Context, p billing.PaymentPlan, _ ...core.DBExecutor) (billing.PaymentPlan, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if err := repo.checkPlan(p); err != nil {
		return billing.PaymentPlan{}, err
	}
	p.ID = repo.db.nextPK("payment_plans")
	repo.db.plans[p.ID] = &p
	return p, nil
}

func (repo *billingRepository) GetPaymentPlan(_ context.Context, id int, _ ...core.DBExecutor) (billing.PaymentPlan, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.plans[id]; ok {
		return *p, nil
	}
	return billing.PaymentPlan{}, billing.ErrPlanNotFound
}

func (repo *billingRepository) QueryPaymentPlans(_ context.Context, filter billing.PlanFilter, _ ...core.DBExecutor) ([]billing.PaymentPlan, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	list := make([]billing.PaymentPlan, 0)
	for _, p := range rows(repo.db.plans) {
		if filter.CurriculumID != 0 && p.CurriculumID != nil && *p.CurriculumID != filter.CurriculumID {
			continue
		}
		if filter.IsActive != nil && p.IsActive != *filter.IsActive {
			continue
		}
		list = append(list, p)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (repo *billingRepository) UpdatePaymentPlan(_ context.Context, p billing.PaymentPlan, _ ...core.DBExecutor) (billing.PaymentPlan, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.plans[p.ID]; !ok {
		return billing.PaymentPlan{}, billing.ErrPlanNotFound
	}
	if err := repo.checkPlan(p); err != nil {
		return billing.PaymentPlan{}, err
	}
	repo.db.plans[p.ID] = &p
	return p, nil
}

func (repo *billingRepository) DeletePaymentPlan(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.plans[id]; !ok {
		return billing.ErrPlanNotFound
	}
	delete(repo.db.plans, id)
	for _, e := range repo.db.enrollments {
		if intPtrEquals(e.PaymentPlanID, id) {
			e.PaymentPlanID = nil
		}
	}
	for _, p := range repo.db.payments {
		if intPtrEquals(p.PaymentPlanID, id) {
			p.PaymentPlanID = nil
		}
	}
	return nil
}

// invoices

// LockInvoiceNumbering is a no-op: CreateInvoice already runs under the write lock and rejects taken numbers.
func (repo *billingRepository) LockInvoiceNumbering(_ context.Context, _ string, _ ...core.DBExecutor) error {
	return nil
}

func (repo *billingRepository) LastInvoiceNumber(_ context.Context, prefix string, _ ...core.DBExecutor) (string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var last string
	for _, inv := range repo.db.invoices {
		if !strings.HasPrefix(inv.Number, prefix) {
			continue
		}
		if len(inv.Number) > len(last) || (len(inv.Number) == len(last) && inv.Number > last) {
			last = inv.Number
		}
	}
	return last, nil
}

func (repo *billingRepository) invoice(inv billing.Invoice) billing.Invoice {
	inv.Items = append(make([]billing.InvoiceItem, 0), repo.db.invoiceItems[inv.ID]...)
	return inv
}

func (repo *billingRepository) CreateInvoice(_ context.Context, inv billing.Invoice, _ ...core.DBExecutor) (billing.Invoice, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.children[inv.ChildProfileID]; !ok {
		return billing.Invoice{}, core.NewFieldError("child_profile_id", errReferencedMissing)
	}
	for _, other := range repo.db.invoices {
		if other.Number == inv.Number {
			return billing.Invoice{}, billing.ErrDuplicateNumber
		}
	}

	inv.ID = repo.db.nextPK("invoices")
	items := make([]billing.InvoiceItem, 0, len(inv.Items))
	for _, it := range inv.Items {
		it.ID = repo.db.nextPK("invoice_items")
		it.InvoiceID = inv.ID
		items = append(items, it)
	}
	inv.Items = nil
	repo.db.invoices[inv.ID] = &inv
	repo.db.invoiceItems[inv.ID] = items
	return repo.invoice(inv), nil
}

func (repo *billingRepository) GetInvoice(_ context.Context, id int, _ ...core.DBExecutor) (billing.Invoice, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if inv, ok := repo.db.invoices[id]; ok {
		return repo.invoice(*inv), nil
	}
	return billing.Invoice{}, billing.ErrInvoiceNotFound
}

func (repo *billingRepository) QueryInvoices(_ context.Context, filter billing.InvoiceFilter, _ ...core.DBExecutor) ([]billing.Invoice, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	list := make([]billing.Invoice, 0)
	for _, inv := range rows(repo.db.invoices) {
		switch {
		case filter.ChildProfileID != 0 && inv.ChildProfileID != filter.ChildProfileID:
			continue
		case filter.Status != "" && inv.Status != filter.Status:
			continue
		case filter.Search != "" && !containsFold(inv.Number, filter.Search):
			continue
		}
		list = append(list, repo.invoice(inv))
	}
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].IssueDate.Equal(list[j].IssueDate) {
			return list[i].IssueDate.After(list[j].IssueDate)
		}
		return list[i].ID > list[j].ID
	})
	return list, nil
}

func (repo *billingRepository) UpdateInvoiceStatus(_ context.Context, id int, status string, at time.Time, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	inv, ok := repo.db.invoices[id]
	if !ok {
		return billing.ErrInvoiceNotFound
	}
	inv.Status = status
	inv.UpdatedAt = at.UTC()
	return nil
}

// payments

func (repo *billingRepository) checkPayment(p billing.Payment) error {
	if _, ok := repo.db.children[p.ChildProfileID]; !ok {
		return core.NewFieldError("child_profile_id", errReferencedMissing)
	}
	if p.InvoiceID != nil {
		if _, ok := repo.db.invoices[*p.InvoiceID]; !ok {
			return core.NewFieldError("invoice_id", errReferencedMissing)
		}
	}
	if p.PaymentPlanID != nil {
		if _, ok := repo.db.plans[*p.PaymentPlanID]; !ok {
			return core.NewFieldError("payment_plan_id", errReferencedMissing)
		}
	}
	return nil
}

func (repo *billingRepository) CreatePayment(_ context.Context, p billing.Payment, _ ...core.DBExecutor) (billing.Payment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if err := repo.checkPayment(p); err != nil {
		return billing.Payment{}, err
	}
	p.ID = repo.db.nextPK("payments")
	repo.db.payments[p.ID] = &p
	return p, nil
}

func (repo *billingRepository) GetPayment(_ context.Context, id int, _ ...core.DBExecutor) (billing.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.payments[id]; ok {
		return *p, nil
	}
	return billing.Payment{}, billing.ErrPaymentNotFound
}

func (repo *billingRepository) QueryPayments(_ context.Context, filter billing.PaymentFilter, _ ...core.DBExecutor) ([]billing.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	now := filter.Now
	if now.IsZero() {
		now = time.Now()
	}
	list := make([]billing.Payment, 0)
	for _, p := range rows(repo.db.payments) {
		switch {
		case filter.ChildProfileID != 0 && p.ChildProfileID != filter.ChildProfileID:
			continue
		case filter.InvoiceID != 0 && !intPtrEquals(p.InvoiceID, filter.InvoiceID):
			continue
		case filter.Status != "" && p.Status != filter.Status:
			continue
		case filter.Overdue != nil && p.IsOverdue(now) != *filter.Overdue:
			continue
		}
		list = append(list, p)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
	return list, nil
}

func (repo *billingRepository) UpdatePayment(_ context.Context, p billing.Payment, _ ...core.DBExecutor) (billing.Payment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.payments[p.ID]; !ok {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}
	if err := repo.checkPayment(p); err != nil {
		return billing.Payment{}, err
	}
	repo.db.payments[p.ID] = &p
	return p, nil
}
