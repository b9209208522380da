package overrides

import (
	"testing"
	"time"
)

func ptrFloat(v float64) *float64 { return &v }

func TestConditionsSatisfiedBy(t *testing.T) {
	cases := []struct {
		name      string
		cond      Conditions
		rc        ResourceContext
		satisfied bool
	}{
		{"empty conditions always satisfied", Conditions{}, ResourceContext{}, true},
		{"amount under cap", Conditions{MaxAmount: ptrFloat(1000)}, ResourceContext{Amount: ptrFloat(500)}, true},
		{"amount at cap", Conditions{MaxAmount: ptrFloat(1000)}, ResourceContext{Amount: ptrFloat(1000)}, true},
		{"amount over cap", Conditions{MaxAmount: ptrFloat(1000)}, ResourceContext{Amount: ptrFloat(5000)}, false},
		{"amount missing from context", Conditions{MaxAmount: ptrFloat(1000)}, ResourceContext{}, false},
		{"category allowed", Conditions{AllowedCategories: []string{"repair", "install"}}, ResourceContext{Category: "repair"}, true},
		{"category not allowed", Conditions{AllowedCategories: []string{"repair"}}, ResourceContext{Category: "install"}, false},
		{"category missing from context", Conditions{AllowedCategories: []string{"repair"}}, ResourceContext{}, false},
		{
			"both predicates must hold",
			Conditions{MaxAmount: ptrFloat(1000), AllowedCategories: []string{"repair"}},
			ResourceContext{Amount: ptrFloat(500), Category: "install"},
			false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cond.SatisfiedBy(tc.rc); got != tc.satisfied {
				t.Fatalf("SatisfiedBy = %v, want %v", got, tc.satisfied)
			}
		})
	}
}

func TestConditionsEmpty(t *testing.T) {
	if !(Conditions{}).Empty() {
		t.Fatal("zero conditions should be empty")
	}
	if (Conditions{MaxAmount: ptrFloat(10)}).Empty() {
		t.Fatal("max amount set should not be empty")
	}
	if (Conditions{AllowedCategories: []string{"repair"}}).Empty() {
		t.Fatal("categories set should not be empty")
	}
}

func TestOverrideActiveAt(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	if !(Override{}).ActiveAt(now) {
		t.Fatal("override without expiry or revocation should be active")
	}
	if !(Override{ExpiresAt: &future}).ActiveAt(now) {
		t.Fatal("unexpired override should be active")
	}
	if (Override{ExpiresAt: &past}).ActiveAt(now) {
		t.Fatal("expired override should be inactive")
	}
	if (Override{ExpiresAt: &now}).ActiveAt(now) {
		t.Fatal("override expiring exactly now should be inactive")
	}
	if (Override{RevokedAt: &past}).ActiveAt(now) {
		t.Fatal("revoked override should be inactive")
	}
}
