package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/billing"
)

// overduePayment matches the payments billing.Payment.IsOverdue reports at the bound instant.
const overduePayment = "status <> 'completed' AND due_date IS NOT NULL AND due_date < ?"

type billingRepository struct {
	base
}

var _ billing.Repository = (*billingRepository)(nil) // interface compliance check

func NewBillingRepository(db core.DBExecutor) billing.Repository {
	return &billingRepository{base{db: db}}
}

func trapBillingErr(err, notFound error, table, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	switch code, _ := pqError(err); code {
	case codeUniqueViolation:
		return billing.ErrDuplicateNumber
	case codeForeignKeyViolation:
		if table == "" {
			return core.NewValidationError(errReferenced)
		}
		return foreignKeyError(err, table)
	}
	if err == notFound {
		return err
	}
	return errors.Wrap(err, msg)
}

// payment plans

func (repo *billingRepository) CreatePaymentPlan(ctx context.Context, p billing.PaymentPlan, exec ...core.DBExecutor) (billing.PaymentPlan, error) {
	id, err := insert(ctx, repo.getExec(exec), `
		INSERT INTO payment_plans (name, frequency, amount, installments, curriculum_id, is_active, created_at, updated_at)
		VALUES (:name, :frequency, :amount, :installments, :curriculum_id, :is_active, :created_at, :updated_at)
		RETURNING id`,
		p)
	if err != nil {
		return billing.PaymentPlan{}, trapBillingErr(err, billing.ErrPlanNotFound, "payment_plans", "inserting payment plan")
	}
	p.ID = id
	return p, nil
}

func (repo *billingRepository) GetPaymentPlan(ctx context.Context, id int, exec ...core.DBExecutor) (billing.PaymentPlan, error) {
	var p billing.PaymentPlan
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &p, "SELECT * FROM payment_plans WHERE id = $1", id); err != nil {
		return billing.PaymentPlan{}, trapBillingErr(err, billing.ErrPlanNotFound, "payment_plans", "finding payment plan")
	}
	return p, nil
}

func (repo *billingRepository) QueryPaymentPlans(ctx context.Context, filter billing.PlanFilter, exec ...core.DBExecutor) ([]billing.PaymentPlan, error) {
	var q query
	// plans without a curriculum apply to every curriculum
	if filter.CurriculumID != 0 {
		q.where("curriculum_id = ? OR curriculum_id IS NULL", filter.CurriculumID)
	}
	if filter.IsActive != nil {
		q.where("is_active = ?", *filter.IsActive)
	}
	stmt, args, err := q.build("SELECT * FROM payment_plans", "ORDER BY name, id")
	if err != nil {
		return nil, err
	}

	list := make([]billing.PaymentPlan, 0)
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &list, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "querying payment plans")
	}
	return list, nil
}

func (repo *billingRepository) UpdatePaymentPlan(ctx context.Context, p billing.PaymentPlan, exec ...core.DBExecutor) (billing.PaymentPlan, error) {
	err := update(ctx, repo.getExec(exec), `
		UPDATE payment_plans SET
			name = :name, frequency = :frequency, amount = :amount, installments = :installments,
			curriculum_id = :curriculum_id, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`,
		p, billing.ErrPlanNotFound)
	if err != nil {
		return billing.PaymentPlan{}, trapBillingErr(err, billing.ErrPlanNotFound, "payment_plans", "updating payment plan")
	}
	return p, nil
}

func (repo *billingRepository) DeletePaymentPlan(ctx context.Context, id int, exec ...core.DBExecutor) error {
	err := remove(ctx, repo.getExec(exec), "DELETE FROM payment_plans WHERE id = $1", id, billing.ErrPlanNotFound)
	if err != nil {
		return trapBillingErr(err, billing.ErrPlanNotFound, "", "deleting payment plan")
	}
	return nil
}

// invoices

func (repo *billingRepository) LockInvoiceNumbering(ctx context.Context, prefix string, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", prefix)
	return errors.Wrap(err, "acquiring invoice numbering lock")
}

func (repo *billingRepository) LastInvoiceNumber(ctx context.Context, prefix string, exec ...core.DBExecutor) (string, error) {
	var number string
	err := sqlx.GetContext(ctx, repo.getExec(exec), &number, `
		SELECT invoice_number FROM invoices
		WHERE invoice_number LIKE $1 || '%'
		ORDER BY LENGTH(invoice_number) DESC, invoice_number DESC
		LIMIT 1`,
		prefix)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return number, errors.Wrap(err, "finding last invoice number")
}

func (repo *billingRepository) CreateInvoice(ctx context.Context, inv billing.Invoice, exec ...core.DBExecutor) (billing.Invoice, error) {
	e := repo.getExec(exec)
	id, err := insert(ctx, e, `
		INSERT INTO invoices (
			invoice_number, child_profile_id, academic_year_id, curriculum_id, program_enrollment_id,
			issue_date, due_date, status, total, notes, created_at, updated_at
		) VALUES (
			:invoice_number, :child_profile_id, :academic_year_id, :curriculum_id, :program_enrollment_id,
			:issue_date, :due_date, :status, :total, :notes, :created_at, :updated_at
		) RETURNING id`,
		inv)
	if err != nil {
		return billing.Invoice{}, trapBillingErr(err, billing.ErrInvoiceNotFound, "invoices", "inserting invoice")
	}
	inv.ID = id

	for i := range inv.Items {
		inv.Items[i].InvoiceID = id
		itemID, err := insert(ctx, e, `
			INSERT INTO invoice_items (invoice_id, description, quantity, unit_price, amount)
			VALUES (:invoice_id, :description, :quantity, :unit_price, :amount)
			RETURNING id`,
			inv.Items[i])
		if err != nil {
			return billing.Invoice{}, errors.Wrap(err, "inserting invoice item")
		}
		inv.Items[i].ID = itemID
	}
	return inv, nil
}

// loadItems fills the items of invoices with a single query.
func (repo *billingRepository) loadItems(ctx context.Context, e core.DBExecutor, invoices []billing.Invoice) error {
	if len(invoices) == 0 {
		return nil
	}
	idx := make(map[int]int, len(invoices))
	ids := make([]int, 0, len(invoices))
	for i, inv := range invoices {
		idx[inv.ID] = i
		ids = append(ids, inv.ID)
		invoices[i].Items = []billing.InvoiceItem{}
	}

	stmt, args, err := sqlx.In("SELECT * FROM invoice_items WHERE invoice_id IN (?) ORDER BY id", ids)
	if err != nil {
		return errors.Wrap(err, "expanding query arguments")
	}
	var items []billing.InvoiceItem
	if err = sqlx.SelectContext(ctx, e, &items, sqlx.Rebind(sqlx.DOLLAR, stmt), args...); err != nil {
		return errors.Wrap(err, "querying invoice items")
	}
	for _, it := range items {
		i := idx[it.InvoiceID]
		invoices[i].Items = append(invoices[i].Items, it)
	}
	return nil
}

func (repo *billingRepository) GetInvoice(ctx context.Context, id int, exec ...core.DBExecutor) (billing.Invoice, error) {
	e := repo.getExec(exec)
	invoices := make([]billing.Invoice, 1)
	if err := sqlx.GetContext(ctx, e, &invoices[0], "SELECT * FROM invoices WHERE id = $1", id); err != nil {
		return billing.Invoice{}, trapBillingErr(err, billing.ErrInvoiceNotFound, "invoices", "finding invoice")
	}
	if err := repo.loadItems(ctx, e, invoices); err != nil {
		return billing.Invoice{}, err
	}
	return invoices[0], nil
}

func (repo *billingRepository) QueryInvoices(ctx context.Context, filter billing.InvoiceFilter, exec ...core.DBExecutor) ([]billing.Invoice, error) {
	var q query
	if filter.ChildProfileID != 0 {
		q.where("child_profile_id = ?", filter.ChildProfileID)
	}
	if filter.Status != "" {
		q.where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		q.where("invoice_number ILIKE ?", like(filter.Search))
	}
	stmt, args, err := q.build("SELECT * FROM invoices", "ORDER BY issue_date DESC, id DESC")
	if err != nil {
		return nil, err
	}

	e := repo.getExec(exec)
	list := make([]billing.Invoice, 0)
	if err = sqlx.SelectContext(ctx, e, &list, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "querying invoices")
	}
	if err = repo.loadItems(ctx, e, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (repo *billingRepository) UpdateInvoiceStatus(ctx context.Context, id int, status string, at time.Time, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx,
		"UPDATE invoices SET status = $1, updated_at = $2 WHERE id = $3", status, at.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "updating invoice status")
	}
	return checkAffected(res.RowsAffected, billing.ErrInvoiceNotFound)
}

// payments

func (repo *billingRepository) CreatePayment(ctx context.Context, p billing.Payment, exec ...core.DBExecutor) (billing.Payment, error) {
	id, err := insert(ctx, repo.getExec(exec), `
		INSERT INTO payments (
			child_profile_id, invoice_id, payment_plan_id, amount, method, status, due_date, paid_at,
			reference, notes, created_at, updated_at
		) VALUES (
			:child_profile_id, :invoice_id, :payment_plan_id, :amount, :method, :status, :due_date, :paid_at,
			:reference, :notes, :created_at, :updated_at
		) RETURNING id`,
		p)
	if err != nil {
		return billing.Payment{}, trapBillingErr(err, billing.ErrPaymentNotFound, "payments", "inserting payment")
	}
	p.ID = id
	return p, nil
}

func (repo *billingRepository) GetPayment(ctx context.Context, id int, exec ...core.DBExecutor) (billing.Payment, error) {
	var p billing.Payment
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &p, "SELECT * FROM payments WHERE id = $1", id); err != nil {
		return billing.Payment{}, trapBillingErr(err, billing.ErrPaymentNotFound, "payments", "finding payment")
	}
	return p, nil
}

func (repo *billingRepository) QueryPayments(ctx context.Context, filter billing.PaymentFilter, exec ...core.DBExecutor) ([]billing.Payment, error) {
	var q query
	if filter.ChildProfileID != 0 {
		q.where("child_profile_id = ?", filter.ChildProfileID)
	}
	if filter.InvoiceID != 0 {
		q.where("invoice_id = ?", filter.InvoiceID)
	}
	if filter.Status != "" {
		q.where("status = ?", filter.Status)
	}
	if filter.Overdue != nil {
		now := filter.Now
		if now.IsZero() {
			now = time.Now()
		}
		if *filter.Overdue {
			q.where(overduePayment, now.UTC())
		} else {
			q.where("NOT ("+overduePayment+")", now.UTC())
		}
	}
	stmt, args, err := q.build("SELECT * FROM payments", "ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, err
	}

	list := make([]billing.Payment, 0)
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &list, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	return list, nil
}

func (repo *billingRepository) UpdatePayment(ctx context.Context, p billing.Payment, exec ...core.DBExecutor) (billing.Payment, error) {
	err := update(ctx, repo.getExec(exec), `
		UPDATE payments SET
			invoice_id = :invoice_id, payment_plan_id = :payment_plan_id, amount = :amount, method = :method,
			status = :status, due_date = :due_date, paid_at = :paid_at, reference = :reference, notes = :notes,
			updated_at = :updated_at
		WHERE id = :id`,
		p, billing.ErrPaymentNotFound)
	if err != nil {
		return billing.Payment{}, trapBillingErr(err, billing.ErrPaymentNotFound, "payments", "updating payment")
	}
	return p, nil
}
