package billing

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/activity"
	"github.com/trezcool/elimu/core/profile"
)

var (
	// errors
	ErrPlanNotFound      = errors.New("payment plan not found")
	ErrInvoiceNotFound   = errors.New("invoice not found")
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrDuplicateNumber   = errors.New("this invoice number is already in use")
	ErrInvoiceNotPayable = errors.New("this invoice cannot receive payments")
	ErrInvoiceLocked     = errors.New("a paid or cancelled invoice cannot change status")

	errDueBeforeIssue = errors.New("due date cannot be before the issue date")

	invoiceIssuedTemplate = "invoice_issued"
)

type (
	Repository interface {
		CreatePaymentPlan(ctx context.Context, p PaymentPlan, exec ...core.DBExecutor) (PaymentPlan, error)
		GetPaymentPlan(ctx context.Context, id int, exec ...core.DBExecutor) (PaymentPlan, error)
		QueryPaymentPlans(ctx context.Context, filter PlanFilter, exec ...core.DBExecutor) ([]PaymentPlan, error)
		UpdatePaymentPlan(ctx context.Context, p PaymentPlan, exec ...core.DBExecutor) (PaymentPlan, error)
		DeletePaymentPlan(ctx context.Context, id int, exec ...core.DBExecutor) error

		// LockInvoiceNumbering serialises invoice numbering for prefix until the end of the transaction held by exec.
		LockInvoiceNumbering(ctx context.Context, prefix string, exec ...core.DBExecutor) error
		// LastInvoiceNumber returns the greatest number starting with prefix, or "" when there is none.
		LastInvoiceNumber(ctx context.Context, prefix string, exec ...core.DBExecutor) (string, error)
		// CreateInvoice stores the invoice and its items; ErrDuplicateNumber is returned when the number is taken.
		CreateInvoice(ctx context.Context, inv Invoice, exec ...core.DBExecutor) (Invoice, error)
		GetInvoice(ctx context.Context, id int, exec ...core.DBExecutor) (Invoice, error)
		QueryInvoices(ctx context.Context, filter InvoiceFilter, exec ...core.DBExecutor) ([]Invoice, error)
		UpdateInvoiceStatus(ctx context.Context, id int, status string, at time.Time, exec ...core.DBExecutor) error

		CreatePayment(ctx context.Context, p Payment, exec ...core.DBExecutor) (Payment, error)
		GetPayment(ctx context.Context, id int, exec ...core.DBExecutor) (Payment, error)
		QueryPayments(ctx context.Context, filter PaymentFilter, exec ...core.DBExecutor) ([]Payment, error)
		UpdatePayment(ctx context.Context, p Payment, exec ...core.DBExecutor) (Payment, error)
	}

	Service interface {
		CreatePaymentPlan(ctx context.Context, data PaymentPlanData) (PaymentPlan, error)
		GetPaymentPlan(ctx context.Context, id int) (PaymentPlan, error)
		QueryPaymentPlans(ctx context.Context, filter PlanFilter) ([]PaymentPlan, error)
		// ActivePlansFor lists the active plans usable for a curriculum (curriculum-less plans included).
		// Lookup failures are logged and yield an empty list.
		ActivePlansFor(ctx context.Context, curriculumID int) []PaymentPlan
		UpdatePaymentPlan(ctx context.Context, id int, data PaymentPlanData) (PaymentPlan, error)
		DeletePaymentPlan(ctx context.Context, id int) error

		CreateInvoice(ctx context.Context, data NewInvoice) (Invoice, error)
		GetInvoice(ctx context.Context, id int) (Invoice, error)
		QueryInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
		SetInvoiceStatus(ctx context.Context, id int, data InvoiceStatusData) (Invoice, error)

		RecordPayment(ctx context.Context, data NewPayment) (Payment, error)
		GetPayment(ctx context.Context, id int) (Payment, error)
		QueryPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error)
		SetPaymentStatus(ctx context.Context, id int, data PaymentStatusData) (Payment, error)
	}

	service struct {
		db       core.DB
		repo     Repository
		profiles profile.Repository
		activity activity.Recorder
		mailSvc  core.EmailService
		validate *validator.Validate
		logger   core.Logger
		conf     *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.DB,
	repo Repository,
	profiles profile.Repository,
	recorder activity.Recorder,
	mailSvc core.EmailService,
	validate *validator.Validate,
	logger core.Logger,
	conf *core.Config,
) Service {
	return &service{
		db:       db,
		repo:     repo,
		profiles: profiles,
		activity: recorder,
		mailSvc:  mailSvc,
		validate: validate,
		logger:   logger,
		conf:     conf,
	}
}

func (svc *service) now() time.Time { return NowFunc().In(svc.conf.Timezone) }

// payment plans

func (svc *service) CreatePaymentPlan(ctx context.Context, data PaymentPlanData) (PaymentPlan, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return PaymentPlan{}, err
	}

	now := NowFunc().UTC()
	p := PaymentPlan{
		Name:         data.Name,
		Frequency:    data.Frequency,
		Amount:       data.Amount,
		Installments: data.Installments,
		CurriculumID: data.CurriculumID,
		IsActive:     data.IsActive == nil || *data.IsActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) (err error) {
		if p, err = svc.repo.CreatePaymentPlan(ctx, p, tx); err != nil {
			return errors.Wrap(err, "creating payment plan")
		}
		return svc.activity.Record(ctx, activity.Created(SubjectTypePaymentPlan, p.ID, "Created payment plan "+p.Name, p), tx)
	})
	return p, err
}

func (svc *service) GetPaymentPlan(ctx context.Context, id int) (PaymentPlan, error) {
	return svc.repo.GetPaymentPlan(ctx, id)
}

func (svc *service) QueryPaymentPlans(ctx context.Context, filter PlanFilter) ([]PaymentPlan, error) {
	return svc.repo.QueryPaymentPlans(ctx, filter)
}

func (svc *service) ActivePlansFor(ctx context.Context, curriculumID int) []PaymentPlan {
	active := true
	plans, err := svc.repo.QueryPaymentPlans(ctx, PlanFilter{CurriculumID: curriculumID, IsActive: &active})
	if err != nil {
		svc.logger.Error("loading active payment plans", errors.Wrapf(err, "curriculum %d", curriculumID))
		return []PaymentPlan{}
	}
	return plans
}

func (svc *service) UpdatePaymentPlan(ctx context.Context, id int, data PaymentPlanData) (PaymentPlan, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return PaymentPlan{}, err
	}

	var p PaymentPlan
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		orig, err := svc.repo.GetPaymentPlan(ctx, id, tx)
		if err != nil {
			return err
		}
		p = orig
		p.Name = data.Name
		p.Frequency = data.Frequency
		p.Amount = data.Amount
		p.Installments = data.Installments
		p.CurriculumID = data.CurriculumID
		if data.IsActive != nil {
			p.IsActive = *data.IsActive
		}
		p.UpdatedAt = NowFunc().UTC()
		if p, err = svc.repo.UpdatePaymentPlan(ctx, p, tx); err != nil {
			return errors.Wrap(err, "updating payment plan")
		}
		return svc.activity.Record(ctx, activity.Updated(SubjectTypePaymentPlan, p.ID, "", orig, p), tx)
	})
	return p, err
}

func (svc *service) DeletePaymentPlan(ctx context.Context, id int) error {
	return core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		p, err := svc.repo.GetPaymentPlan(ctx, id, tx)
		if err != nil {
			return err
		}
		if err = svc.repo.DeletePaymentPlan(ctx, id, tx); err != nil {
			return err
		}
		return svc.activity.Record(ctx, activity.Deleted(SubjectTypePaymentPlan, id, p), tx)
	})
}

// invoices

func (svc *service) CreateInvoice(ctx context.Context, data NewInvoice) (Invoice, error) {
	data.Notes = core.CleanString(data.Notes)
	for i := range data.Items {
		data.Items[i].Description = core.CleanString(data.Items[i].Description)
	}
	if err := svc.validate.Struct(data); err != nil {
		return Invoice{}, err
	}

	now := svc.now()
	issue := core.StartOfDay(now)
	if data.IssueDate != "" {
		issue, _ = core.ParseDate(data.IssueDate, svc.conf.Timezone)
	}
	due, err := core.ParseDate(data.DueDate, svc.conf.Timezone)
	if err != nil {
		return Invoice{}, core.NewFieldError("due_date", err)
	}
	if due.Before(issue) {
		return Invoice{}, core.NewFieldError("due_date", errDueBeforeIssue)
	}

	inv := Invoice{
		ChildProfileID:      data.ChildProfileID,
		AcademicYearID:      data.AcademicYearID,
		CurriculumID:        data.CurriculumID,
		ProgramEnrollmentID: data.ProgramEnrollmentID,
		IssueDate:           issue,
		DueDate:             due,
		Status:              data.Status,
		Notes:               data.Notes,
		CreatedAt:           now.UTC(),
		UpdatedAt:           now.UTC(),
	}
	if inv.Status == "" {
		inv.Status = InvoiceIssued
	}
	for _, it := range data.Items {
		item := InvoiceItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Amount:      int64(it.Quantity) * it.UnitPrice,
		}
		inv.Total += item.Amount
		inv.Items = append(inv.Items, item)
	}

	var child profile.ChildProfile
	err = core.InTx(ctx, svc.db, func(tx core.DBExecutor) (err error) {
		if child, err = svc.profiles.GetChild(ctx, inv.ChildProfileID, tx); err != nil {
			if errors.Cause(err) == profile.ErrChildNotFound {
				return core.NewFieldError("child_profile_id", profile.ErrChildNotFound)
			}
			return errors.Wrap(err, "finding student")
		}

		prefix := InvoicePrefix(now)
		if err = svc.repo.LockInvoiceNumbering(ctx, prefix, tx); err != nil {
			return errors.Wrap(err, "locking invoice numbering")
		}
		last, err := svc.repo.LastInvoiceNumber(ctx, prefix, tx)
		if err != nil {
			return errors.Wrap(err, "finding last invoice number")
		}
		inv.Number = NextInvoiceNumber(last, now)
		if inv, err = svc.repo.CreateInvoice(ctx, inv, tx); err != nil {
			if errors.Cause(err) == ErrDuplicateNumber {
				return err
			}
			return errors.Wrap(err, "creating invoice")
		}

		desc := fmt.Sprintf("Issued invoice %s to %s for %s", inv.Number, child.FullName(), FormatAmount(inv.Total))
		return svc.activity.Record(ctx, activity.Created(SubjectTypeInvoice, inv.ID, desc, inv), tx)
	})
	if err != nil {
		return Invoice{}, err
	}

	if data.SendEmail && inv.Status == InvoiceIssued {
		svc.notifyParent(ctx, inv, child)
	}
	return inv, nil
}

// notifyParent emails the issued invoice to the student's parent; failures are logged only.
func (svc *service) notifyParent(ctx context.Context, inv Invoice, child profile.ChildProfile) {
	parent, err := svc.profiles.GetParent(ctx, child.ParentID)
	if err != nil {
		svc.logger.Error("finding parent of invoiced student", errors.Wrapf(err, "invoice %s", inv.Number))
		return
	}
	if parent.Email == "" {
		svc.logger.Warn("invoice not emailed: parent has no email", inv.Number)
		return
	}

	items := make([]map[string]interface{}, 0, len(inv.Items))
	for _, it := range inv.Items {
		items = append(items, map[string]interface{}{
			"Description": it.Description,
			"Quantity":    it.Quantity,
			"UnitPrice":   FormatAmount(it.UnitPrice),
			"Amount":      FormatAmount(it.Amount),
		})
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: parent.FullName(), Address: parent.Email}},
		Subject:      "Invoice " + inv.Number,
		TemplateName: invoiceIssuedTemplate,
		TemplateData: map[string]interface{}{
			"ID":          inv.ID,
			"Number":      inv.Number,
			"ParentName":  parent.FullName(),
			"StudentName": child.FullName(),
			"Items":       items,
			"Total":       FormatAmount(inv.Total),
			"DueDate":     inv.DueDate.Format(core.DateLayout),
		},
		Refs: map[string]string{"invoice_number": inv.Number},
	})
}

func (svc *service) GetInvoice(ctx context.Context, id int) (Invoice, error) {
	return svc.repo.GetInvoice(ctx, id)
}

func (svc *service) QueryInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	filter.Search = core.CleanString(filter.Search, true /* lower */)
	filter.Status = core.CleanString(filter.Status, true /* lower */)
	return svc.repo.QueryInvoices(ctx, filter)
}

func (svc *service) SetInvoiceStatus(ctx context.Context, id int, data InvoiceStatusData) (Invoice, error) {
	data.Status = core.CleanString(data.Status, true /* lower */)
	if err := svc.validate.Struct(data); err != nil {
		return Invoice{}, err
	}

	var inv Invoice
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		orig, err := svc.repo.GetInvoice(ctx, id, tx)
		if err != nil {
			return err
		}
		if orig.Status == data.Status {
			inv = orig
			return nil
		}
		if orig.Status == InvoicePaid || orig.Status == InvoiceCancelled {
			return core.NewFieldError("status", ErrInvoiceLocked)
		}
		if err = svc.repo.UpdateInvoiceStatus(ctx, id, data.Status, NowFunc().UTC(), tx); err != nil {
			return errors.Wrap(err, "updating invoice status")
		}
		if inv, err = svc.repo.GetInvoice(ctx, id, tx); err != nil {
			return err
		}
		desc := fmt.Sprintf("Invoice %s marked %s", inv.Number, inv.Status)
		return svc.activity.Record(ctx, activity.Updated(SubjectTypeInvoice, inv.ID, desc, orig, inv), tx)
	})
	return inv, err
}

// payments

func (svc *service) RecordPayment(ctx context.Context, data NewPayment) (Payment, error) {
	data.Method = core.CleanString(data.Method, true /* lower */)
	data.Status = core.CleanString(data.Status, true /* lower */)
	data.Reference = core.CleanString(data.Reference)
	data.Notes = core.CleanString(data.Notes)
	if err := svc.validate.Struct(data); err != nil {
		return Payment{}, err
	}

	now := NowFunc().UTC()
	p := Payment{
		ChildProfileID: data.ChildProfileID,
		InvoiceID:      data.InvoiceID,
		PaymentPlanID:  data.PaymentPlanID,
		Amount:         data.Amount,
		Method:         data.Method,
		Status:         data.Status,
		Reference:      data.Reference,
		Notes:          data.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if p.Method == "" {
		p.Method = MethodCash
	}
	if p.Status == "" {
		p.Status = PaymentCompleted
	}
	if data.DueDate != "" {
		due, _ := core.ParseDate(data.DueDate, svc.conf.Timezone)
		p.DueDate = &due
	}
	if data.PaidAt != "" {
		paid, _ := core.ParseDate(data.PaidAt, svc.conf.Timezone)
		p.PaidAt = &paid
	} else if p.Status == PaymentCompleted {
		p.PaidAt = &now
	}

	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) (err error) {
		if _, err = svc.profiles.GetChild(ctx, p.ChildProfileID, tx); err != nil {
			if errors.Cause(err) == profile.ErrChildNotFound {
				return core.NewFieldError("child_profile_id", profile.ErrChildNotFound)
			}
			return errors.Wrap(err, "finding student")
		}
		if p.PaymentPlanID != nil {
			if _, err = svc.repo.GetPaymentPlan(ctx, *p.PaymentPlanID, tx); err != nil {
				if errors.Cause(err) == ErrPlanNotFound {
					return core.NewFieldError("payment_plan_id", ErrPlanNotFound)
				}
				return errors.Wrap(err, "finding payment plan")
			}
		}
		if p.InvoiceID != nil {
			inv, err := svc.repo.GetInvoice(ctx, *p.InvoiceID, tx)
			if err != nil {
				if errors.Cause(err) == ErrInvoiceNotFound {
					return core.NewFieldError("invoice_id", ErrInvoiceNotFound)
				}
				return errors.Wrap(err, "finding invoice")
			}
			if inv.ChildProfileID != p.ChildProfileID || inv.Status == InvoiceCancelled || inv.Status == InvoicePaid {
				return core.NewFieldError("invoice_id", ErrInvoiceNotPayable)
			}
		}

		if p, err = svc.repo.CreatePayment(ctx, p, tx); err != nil {
			return errors.Wrap(err, "creating payment")
		}
		desc := fmt.Sprintf("Recorded %s payment of %s (%s)", p.Method, FormatAmount(p.Amount), p.Status)
		if err = svc.activity.Record(ctx, activity.Created(SubjectTypePayment, p.ID, desc, p), tx); err != nil {
			return err
		}
		return svc.settleInvoice(ctx, p, tx)
	})
	return p, err
}

// settleInvoice marks the invoice of p paid once its completed payments cover the total.
func (svc *service) settleInvoice(ctx context.Context, p Payment, exec core.DBExecutor) error {
	if p.InvoiceID == nil || p.Status != PaymentCompleted {
		return nil
	}
	inv, err := svc.repo.GetInvoice(ctx, *p.InvoiceID, exec)
	if err != nil {
		return errors.Wrap(err, "finding invoice")
	}
	if inv.Status != InvoiceIssued {
		return nil
	}
	payments, err := svc.repo.QueryPayments(ctx, PaymentFilter{InvoiceID: inv.ID, Status: PaymentCompleted}, exec)
	if err != nil {
		return errors.Wrap(err, "querying invoice payments")
	}
	var paid int64
	for _, pmt := range payments {
		paid += pmt.Amount
	}
	if paid < inv.Total {
		return nil
	}
	if err = svc.repo.UpdateInvoiceStatus(ctx, inv.ID, InvoicePaid, NowFunc().UTC(), exec); err != nil {
		return errors.Wrap(err, "settling invoice")
	}
	settled := inv
	settled.Status = InvoicePaid
	desc := fmt.Sprintf("Invoice %s settled", inv.Number)
	return svc.activity.Record(ctx, activity.Updated(SubjectTypeInvoice, inv.ID, desc, inv, settled), exec)
}

func (svc *service) GetPayment(ctx context.Context, id int) (Payment, error) {
	return svc.repo.GetPayment(ctx, id)
}

func (svc *service) QueryPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error) {
	filter.Status = core.CleanString(filter.Status, true /* lower */)
	if filter.Now.IsZero() {
		filter.Now = NowFunc()
	}
	return svc.repo.QueryPayments(ctx, filter)
}

func (svc *service) SetPaymentStatus(ctx context.Context, id int, data PaymentStatusData) (Payment, error) {
	data.Status = core.CleanString(data.Status, true /* lower */)
	data.Reference = core.CleanString(data.Reference)
	if err := svc.validate.Struct(data); err != nil {
		return Payment{}, err
	}

	var p Payment
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		orig, err := svc.repo.GetPayment(ctx, id, tx)
		if err != nil {
			return err
		}
		p = orig
		p.Status = data.Status
		if data.Reference != "" {
			p.Reference = data.Reference
		}
		now := NowFunc().UTC()
		if p.Status == PaymentCompleted && p.PaidAt == nil {
			p.PaidAt = &now
		}
		p.UpdatedAt = now
		if p, err = svc.repo.UpdatePayment(ctx, p, tx); err != nil {
			return errors.Wrap(err, "updating payment")
		}
		desc := fmt.Sprintf("Payment #%d marked %s", p.ID, p.Status)
		if err = svc.activity.Record(ctx, activity.Updated(SubjectTypePayment, p.ID, desc, orig, p), tx); err != nil {
			return err
		}
		return svc.settleInvoice(ctx, p, tx)
	})
	return p, err
}
