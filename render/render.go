// Package render turns email templates into subject/body text against a
// flattened view of a deal. Rendering never fails hard: a broken template
// produces a visible placeholder instead of aborting a dispatch.
package render

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/shopspring/decimal"

	"tcflow/deal"
)

var funcs = template.FuncMap{
	"formatDate":     formatDate,
	"formatDateTime": formatDateTime,
	"formatCurrency": formatCurrency,
	"uppercase":      uppercase,
	"capitalize":     capitalize,
}

// BuildData flattens a deal into the key set templates may reference,
// merged with any extra keys (recipient names, template metadata).
func BuildData(d deal.Deal, extra map[string]any) map[string]any {
	address := d.PropertyAddress
	if address == "" {
		address = "Property Address TBD"
	}

	estimatedCoe := d.EstimatedCoeDate
	if estimatedCoe == nil {
		estimatedCoe = d.CoeDate
	}

	data := map[string]any{
		"property_address": address,
		"deal_id":          d.ID,
		"side":             string(d.Side),
		"status":           string(d.Status),
		"price":            d.Price,

		"offer_acceptance_date": d.OfferAcceptanceDate,
		"coe_date":              d.CoeDate,
		"estimated_coe_date":    estimatedCoe,
		"possession_date":       d.PossessionDate,

		"emd_amount":      d.EmdAmount,
		"emd_due_date":    d.EmdDueDate,
		"emd_received_at": d.EmdReceivedAt,

		"inspection_deadline":               d.InspectionDeadline,
		"inspection_scheduled_at":           d.InspectionScheduledAt,
		"buyer_investigation_due_date":      d.BuyerInvestigationDueDate,
		"inspection_contingency_removed_at": d.InspectionContingencyRemovedAt,

		"seller_disclosures_due_date": d.SellerDisclosuresDueDate,
		"seller_disclosures_sent_at":  d.SellerDisclosuresSentAt,
		"buyer_disclosures_signed_at": d.BuyerDisclosuresSignedAt,

		"loan_type":                d.LoanType,
		"down_payment_percent":     d.DownPaymentPercent,
		"buyer_appraisal_due_date": d.BuyerAppraisalDueDate,
		"buyer_loan_due_date":      d.BuyerLoanDueDate,
		"buyer_insurance_due_date": d.BuyerInsuranceDueDate,
		"appraisal_ordered_at":     d.AppraisalOrderedAt,

		"has_hoa":              d.HasHoa,
		"has_solar":            d.HasSolar,
		"hoa_docs_received_at": d.HoaDocsReceivedAt,

		"tc_fee_amount": d.TcFeeAmount,
		"tc_fee_payer":  d.TcFeePayer,

		"cda_prepared_at":       d.CdaPreparedAt,
		"cda_sent_to_escrow_at": d.CdaSentToEscrowAt,
		"closed_at":             d.ClosedAt,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// Render executes a template against data. Any parse or execution error
// yields a placeholder string so a bad template degrades to visible noise
// rather than a failed dispatch.
func Render(tpl string, data map[string]any) string {
	t, err := template.New("email").Funcs(funcs).Parse(tpl)
	if err != nil {
		return fmt.Sprintf("[template error: %v]", err)
	}
	var buf strings.Builder
	if err := t.Execute(&buf, data); err != nil {
		return fmt.Sprintf("[template error: %v]", err)
	}
	return buf.String()
}

// RenderEmail renders subject and body in one call.
func RenderEmail(subjectTpl, bodyTpl string, data map[string]any) (subject, body string) {
	return Render(subjectTpl, data), Render(bodyTpl, data)
}

func formatDate(v any) string {
	t, ok := asTime(v)
	if !ok {
		return "TBD"
	}
	return t.Format("Jan 2, 2006")
}

func formatDateTime(v any) string {
	t, ok := asTime(v)
	if !ok {
		return "TBD"
	}
	return t.Format("Jan 2, 2006 3:04 PM")
}

func formatCurrency(v any) string {
	var d decimal.Decimal
	switch x := v.(type) {
	case *decimal.Decimal:
		if x == nil {
			return "TBD"
		}
		d = *x
	case decimal.Decimal:
		d = x
	case int:
		d = decimal.NewFromInt(int64(x))
	case int64:
		d = decimal.NewFromInt(x)
	case float64:
		d = decimal.NewFromFloat(x)
	default:
		return "TBD"
	}

	whole := d.Round(0).IntPart()
	neg := whole < 0
	if neg {
		whole = -whole
	}
	s := groupThousands(whole)
	if neg {
		return "-$" + s
	}
	return "$" + s
}

func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func uppercase(v any) string {
	return strings.ToUpper(asString(v))
}

func capitalize(v any) string {
	s := asString(v)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case *string:
		if s == nil {
			return ""
		}
		return *s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}
