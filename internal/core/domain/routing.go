package domain

// DomainRule maps a domain label to the index it adds and the keywords that trigger it.
type DomainRule struct {
	Label       string   `json:"label" yaml:"label"`
	Index       string   `json:"index" yaml:"index"`
	Keywords    []string `json:"keywords" yaml:"keywords"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Budget      Budget   `json:"budget" yaml:"budget"`
}

// RoutingTable is the static intent configuration. Budgets are independent per route.
type RoutingTable struct {
	DefaultIndex  string       `json:"default_index" yaml:"default_index"`
	DefaultBudget Budget       `json:"default_budget" yaml:"default_budget"`
	Domains       []DomainRule `json:"domains" yaml:"domains"`
}
