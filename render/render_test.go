package render

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tcflow/deal"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestRenderSubstitutesDealData(t *testing.T) {
	coe := time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC)
	price := decimal.NewFromInt(1250000)
	d := deal.Deal{
		ID:              "deal-1",
		PropertyAddress: "123 Main St",
		Side:            deal.SideBuying,
		Price:           &price,
		CoeDate:         timePtr(coe),
	}

	data := BuildData(d, map[string]any{"recipient_names": "Jane Doe"})
	out := Render("{{.property_address}} closes {{formatDate .coe_date}} for {{formatCurrency .price}} ({{.recipient_names}})", data)

	want := "123 Main St closes Dec 15, 2024 for $1,250,000 (Jane Doe)"
	if out != want {
		t.Fatalf("Render = %q, want %q", out, want)
	}
}

func TestRenderNilDateIsTBD(t *testing.T) {
	data := BuildData(deal.Deal{PropertyAddress: "9 Elm"}, nil)
	out := Render("COE: {{formatDate .coe_date}}, EMD: {{formatCurrency .emd_amount}}", data)
	if out != "COE: TBD, EMD: TBD" {
		t.Fatalf("Render = %q", out)
	}
}

func TestRenderBadTemplateYieldsPlaceholder(t *testing.T) {
	out := Render("{{.unclosed", map[string]any{})
	if !strings.HasPrefix(out, "[template error:") {
		t.Fatalf("expected placeholder, got %q", out)
	}
}

func TestEstimatedCoeFallsBackToCoe(t *testing.T) {
	coe := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	data := BuildData(deal.Deal{CoeDate: timePtr(coe)}, nil)
	out := Render("{{formatDate .estimated_coe_date}}", data)
	if out != "Jan 10, 2025" {
		t.Fatalf("Render = %q", out)
	}
}

func TestStringHelpers(t *testing.T) {
	data := map[string]any{"side": "buying"}
	if out := Render("{{uppercase .side}}/{{capitalize .side}}", data); out != "BUYING/Buying" {
		t.Fatalf("Render = %q", out)
	}
}

func TestEmptyAddressDefault(t *testing.T) {
	data := BuildData(deal.Deal{}, nil)
	if data["property_address"] != "Property Address TBD" {
		t.Fatalf("property_address = %v", data["property_address"])
	}
}
