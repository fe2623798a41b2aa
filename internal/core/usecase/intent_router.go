package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
	"github.com/kirillkom/retrieval-fusion/internal/core/ports"
)

const (
	ClassifierKeyword = "keyword"
	ClassifierLLM     = "llm"
)

// KeywordClassifier matches domains by case-normalized substring containment.
type KeywordClassifier struct {
	rules []domain.DomainRule
}

func NewKeywordClassifier(rules []domain.DomainRule) *KeywordClassifier {
	normalized := make([]domain.DomainRule, 0, len(rules))
	for _, rule := range rules {
		keywords := make([]string, 0, len(rule.Keywords))
		for _, kw := range rule.Keywords {
			if kw = normalizeText(kw); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		rule.Keywords = keywords
		normalized = append(normalized, rule)
	}
	return &KeywordClassifier{rules: normalized}
}

func (c *KeywordClassifier) Name() string { return ClassifierKeyword }

func (c *KeywordClassifier) Classify(_ context.Context, question string) []string {
	q := normalizeText(question)
	if q == "" {
		return nil
	}
	var matched []string
	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(q, kw) {
				matched = append(matched, rule.Label)
				break
			}
		}
	}
	return matched
}

// LLMClassifier asks a language model for a yes/no relation judgement per domain.
// Any failure counts as "not matched".
type LLMClassifier struct {
	completer ports.Completer
	rules     []domain.DomainRule
	limiter   *rate.Limiter
	timeout   time.Duration
	logger    *slog.Logger
}

type LLMClassifierOption func(*LLMClassifier)

// WithRateLimit bounds how many completion calls per second the classifier issues.
func WithRateLimit(perSecond float64, burst int) LLMClassifierOption {
	return func(c *LLMClassifier) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithCallTimeout(timeout time.Duration) LLMClassifierOption {
	return func(c *LLMClassifier) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithClassifierLogger(logger *slog.Logger) LLMClassifierOption {
	return func(c *LLMClassifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewLLMClassifier(completer ports.Completer, rules []domain.DomainRule, opts ...LLMClassifierOption) *LLMClassifier {
	c := &LLMClassifier{
		completer: completer,
		rules:     append([]domain.DomainRule(nil), rules...),
		timeout:   10 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *LLMClassifier) Name() string { return ClassifierLLM }

func (c *LLMClassifier) Classify(ctx context.Context, question string) []string {
	if normalizeText(question) == "" {
		return nil
	}
	var matched []string
	for _, rule := range c.rules {
		ok, err := c.judge(ctx, question, rule)
		if err != nil {
			c.logger.Warn("intent_llm_failed", "domain", rule.Label, "error", err)
			continue
		}
		if ok {
			matched = append(matched, rule.Label)
		}
	}
	return matched
}

func (c *LLMClassifier) judge(ctx context.Context, question string, rule domain.DomainRule) (bool, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, err
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.completer.Complete(callCtx, buildIntentPrompt(question, rule))
	if err != nil {
		return false, err
	}
	return parseIntentAnswer(resp)
}

// IntentRouter decides which indices a question queries and with what budgets.
type IntentRouter struct {
	table      domain.RoutingTable
	classifier ports.IntentClassifier
	logger     *slog.Logger
}

func NewIntentRouter(table domain.RoutingTable, classifier ports.IntentClassifier, logger *slog.Logger) *IntentRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntentRouter{
		table:      table,
		classifier: classifier,
		logger:     logger,
	}
}

func (r *IntentRouter) ClassifierName() string {
	if r.classifier == nil {
		return "none"
	}
	return r.classifier.Name()
}

// Route always returns the default index first, followed by one route per matched
// domain index in routing-table order.
func (r *IntentRouter) Route(ctx context.Context, question string) []domain.Route {
	routes := []domain.Route{{
		Index:  r.table.DefaultIndex,
		Budget: r.table.DefaultBudget.Normalize(),
	}}
	if r.classifier == nil {
		return routes
	}

	matched := r.classifier.Classify(ctx, question)
	if len(matched) == 0 {
		return routes
	}
	matchedSet := make(map[string]struct{}, len(matched))
	for _, label := range matched {
		matchedSet[label] = struct{}{}
	}

	position := map[string]int{r.table.DefaultIndex: 0}
	for _, rule := range r.table.Domains {
		if _, ok := matchedSet[rule.Label]; !ok {
			continue
		}
		if i, seen := position[rule.Index]; seen {
			routes[i].Domains = append(routes[i].Domains, rule.Label)
			continue
		}
		position[rule.Index] = len(routes)
		routes = append(routes, domain.Route{
			Index:   rule.Index,
			Budget:  rule.Budget.Normalize(),
			Domains: []string{rule.Label},
		})
	}
	r.logger.Debug("intent_routed", "classifier", r.ClassifierName(), "domains", matched, "routes", len(routes))
	return routes
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
