package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
)

func testRoutingTable() domain.RoutingTable {
	return domain.RoutingTable{
		DefaultIndex:  "general",
		DefaultBudget: domain.Budget{Candidates: 10, Vector: 10, Sparse: 10},
		Domains: []domain.DomainRule{
			{Label: "billing", Index: "billing", Keywords: []string{"Invoice", "refund"}, Budget: domain.Budget{Candidates: 3, Vector: 3, Sparse: 3}},
			{Label: "security", Index: "security", Keywords: []string{"password", "2fa"}, Description: "account security", Budget: domain.Budget{Candidates: 4}},
		},
	}
}

func TestKeywordClassifierCaseNormalizedContainment(t *testing.T) {
	c := NewKeywordClassifier(testRoutingTable().Domains)
	got := c.Classify(context.Background(), "Where is my INVOICE for March?")
	if len(got) != 1 || got[0] != "billing" {
		t.Fatalf("expected billing match, got %v", got)
	}
}

func TestKeywordClassifierBlankQuestionMatchesNothing(t *testing.T) {
	c := NewKeywordClassifier(testRoutingTable().Domains)
	if got := c.Classify(context.Background(), "   "); len(got) != 0 {
		t.Fatalf("expected no matches, got %v", got)
	}
}

func TestKeywordClassifierMatchesEachDomainOnce(t *testing.T) {
	c := NewKeywordClassifier(testRoutingTable().Domains)
	got := c.Classify(context.Background(), "refund the invoice after password reset")
	if len(got) != 2 || got[0] != "billing" || got[1] != "security" {
		t.Fatalf("expected [billing security], got %v", got)
	}
}

func TestIntentRouterDefaultOnlyWithoutKeywords(t *testing.T) {
	table := testRoutingTable()
	router := NewIntentRouter(table, NewKeywordClassifier(table.Domains), nil)

	routes := router.Route(context.Background(), "how do I change the theme")
	if len(routes) != 1 {
		t.Fatalf("expected only default route, got %+v", routes)
	}
	if routes[0].Index != "general" || routes[0].Budget.Candidates != 10 {
		t.Fatalf("unexpected default route: %+v", routes[0])
	}
}

func TestIntentRouterAddsDomainWithIndependentBudget(t *testing.T) {
	table := testRoutingTable()
	router := NewIntentRouter(table, NewKeywordClassifier(table.Domains), nil)

	routes := router.Route(context.Background(), "I need a refund")
	if len(routes) != 2 {
		t.Fatalf("expected default plus billing routes, got %+v", routes)
	}
	if routes[0].Budget.Candidates != 10 {
		t.Fatalf("default budget must not be rebalanced, got %+v", routes[0].Budget)
	}
	if routes[1].Index != "billing" || routes[1].Budget.Candidates != 3 {
		t.Fatalf("unexpected billing route: %+v", routes[1])
	}
}

func TestIntentRouterNormalizesDomainBudget(t *testing.T) {
	table := testRoutingTable()
	router := NewIntentRouter(table, NewKeywordClassifier(table.Domains), nil)

	routes := router.Route(context.Background(), "enable 2FA")
	if len(routes) != 2 || routes[1].Budget.Candidates != 4 {
		t.Fatalf("unexpected routes: %+v", routes)
	}
}

func TestLLMClassifierMatchesOnYes(t *testing.T) {
	completer := &completerFake{responses: map[string]string{"account security": "Yes."}}
	c := NewLLMClassifier(completer, testRoutingTable().Domains)

	got := c.Classify(context.Background(), "my login is locked")
	if len(got) != 1 || got[0] != "security" {
		t.Fatalf("expected security match, got %v", got)
	}
	if len(completer.prompts) != 2 {
		t.Fatalf("expected one prompt per domain, got %d", len(completer.prompts))
	}
}

func TestLLMClassifierFailureIsNotMatched(t *testing.T) {
	c := NewLLMClassifier(&completerFake{err: errors.New("timeout")}, testRoutingTable().Domains)
	if got := c.Classify(context.Background(), "refund please"); len(got) != 0 {
		t.Fatalf("expected no matches on failure, got %v", got)
	}
}

func TestLLMClassifierMalformedAnswerIsNotMatched(t *testing.T) {
	completer := &completerFake{responses: map[string]string{"billing": "probably, it depends"}}
	c := NewLLMClassifier(completer, testRoutingTable().Domains)
	if got := c.Classify(context.Background(), "refund please"); len(got) != 0 {
		t.Fatalf("expected no matches on malformed answer, got %v", got)
	}
}

func TestParseIntentAnswer(t *testing.T) {
	cases := map[string]bool{"yes": true, " YES ": true, "\"no\"": false, "No.": false, "Yes, it does.": true, "no - unrelated": false}
	for raw, want := range cases {
		got, err := parseIntentAnswer(raw)
		if err != nil {
			t.Fatalf("parseIntentAnswer(%q) error = %v", raw, err)
		}
		if got != want {
			t.Fatalf("parseIntentAnswer(%q) = %v, want %v", raw, got, want)
		}
	}
	for _, raw := range []string{"maybe", "yesterday", "nothing", "not sure", "", "42"} {
		if _, err := parseIntentAnswer(raw); err == nil {
			t.Fatalf("expected error for malformed answer %q", raw)
		}
	}
}
