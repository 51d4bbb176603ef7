package alert_test

import (
	"testing"
	"time"

	"tenderwatch/alert-service/internal/alert"
	"tenderwatch/alert-service/internal/model"
)

func f64Ptr(f float64) *float64 { return &f }

func validAlert() model.Alert {
	return model.Alert{Name: "Voirie 33", Keywords: []string{"voirie"}}
}

func TestValidate_AcceptsMinimalAlert(t *testing.T) {
	if err := alert.Validate(validAlert()); err != nil {
		t.Fatalf("minimal valid alert rejected: %v", err)
	}
}

func TestValidate_RequiresKeywords(t *testing.T) {
	cases := [][]string{nil, {}, {""}, {"  ", "\t"}}
	for _, kw := range cases {
		a := validAlert()
		a.Keywords = kw
		if err := alert.Validate(a); err == nil {
			t.Errorf("keywords %q should be rejected", kw)
		}
	}
}

func TestValidate_KeywordMustSurviveNormalization(t *testing.T) {
	// Combining marks alone normalize to the empty string; an alert
	// carrying only such keywords could never match anything real.
	a := validAlert()
	a.Keywords = []string{"́", " ̀"}
	if err := alert.Validate(a); err == nil {
		t.Error("keywords that normalize to empty should be rejected")
	}

	a = validAlert()
	a.Keywords = []string{"́", "école"}
	if err := alert.Validate(a); err != nil {
		t.Errorf("one surviving keyword is enough, got %v", err)
	}
}

func TestValidate_RequiresName(t *testing.T) {
	a := validAlert()
	a.Name = "  "
	if err := alert.Validate(a); err == nil {
		t.Error("blank name should be rejected")
	}
}

func TestValidate_AmountRange(t *testing.T) {
	a := validAlert()
	a.Filters.MinAmount = f64Ptr(-1)
	if err := alert.Validate(a); err == nil {
		t.Error("negative minAmount should be rejected")
	}

	a = validAlert()
	a.Filters.MinAmount = f64Ptr(5000)
	a.Filters.MaxAmount = f64Ptr(1000)
	if err := alert.Validate(a); err == nil {
		t.Error("inverted amount range should be rejected")
	}

	a = validAlert()
	a.Filters.MinAmount = f64Ptr(1000)
	a.Filters.MaxAmount = f64Ptr(1000)
	if err := alert.Validate(a); err != nil {
		t.Errorf("equal min/max amounts are valid, got %v", err)
	}
}

func TestValidate_ServiceType(t *testing.T) {
	bogus := model.ServiceType("PLOMBERIE")
	a := validAlert()
	a.Filters.ServiceType = &bogus
	if err := alert.Validate(a); err == nil {
		t.Error("unknown service type should be rejected")
	}

	ok := model.ServiceTravaux
	a = validAlert()
	a.Filters.ServiceType = &ok
	now := time.Now()
	a.Filters.MinDeadline = &now
	if err := alert.Validate(a); err != nil {
		t.Errorf("known service type rejected: %v", err)
	}
}

func TestValidate_ReturnsTypedError(t *testing.T) {
	a := validAlert()
	a.Keywords = nil
	err := alert.Validate(a)
	if _, ok := err.(*alert.ValidationError); !ok {
		t.Fatalf("want *alert.ValidationError, got %T", err)
	}
}
