// Package blend checks that batches may be merged into one lot.
package blend

import (
	"cellarcore/pkg/domain"
	"fmt"
	"sort"
	"strings"
)

// Attributes compared across a blend.
const (
	AttributeStrain = "strain"
	AttributeStyle  = "style"
	AttributeRecipe = "recipe_name"
)

// Finding describes an attribute that differs across the blended batches.
type Finding struct {
	Attribute string   `json:"attribute"`
	Values    []string `json:"values"`
}

// Message renders the finding for operators.
func (f Finding) Message() string {
	return fmt.Sprintf("%s differs across blend: %s", f.Attribute, strings.Join(f.Values, ", "))
}

// Report is the outcome of ValidateBlend. Warnings never affect Compatible.
type Report struct {
	Compatible bool      `json:"compatible"`
	Errors     []Finding `json:"errors,omitempty"`
	Warnings   []Finding `json:"warnings,omitempty"`
}

// Err returns an IncompatibleBlendError for the first hard-rule failure.
func (r Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	first := r.Errors[0]
	return domain.IncompatibleBlendError{Attribute: first.Attribute, Values: append([]string(nil), first.Values...)}
}

// WarningMessages returns the soft-rule findings as strings.
func (r Report) WarningMessages() []string {
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, w.Message())
	}
	return out
}

type rule struct {
	attribute string
	hard      bool
	value     func(domain.Recipe) string
}

// Strain must match; style and recipe name should match.
var rules = []rule{
	{attribute: AttributeStrain, hard: true, value: func(r domain.Recipe) string { return r.Strain }},
	{attribute: AttributeStyle, value: func(r domain.Recipe) string { return r.Style }},
	{attribute: AttributeRecipe, value: func(r domain.Recipe) string { return r.Name }},
}

// ValidateBlend loads the batches and their recipes and compares them.
// Unknown batches or recipes are reported as NotFoundError.
func ValidateBlend(view domain.TransactionView, tenantID string, batchIDs []string) (Report, error) {
	if len(batchIDs) == 0 {
		return Report{}, domain.InvalidRequestError{Field: "blend_sources", Reason: "at least one batch required"}
	}
	recipes := make([]domain.Recipe, 0, len(batchIDs))
	seen := make(map[string]struct{}, len(batchIDs))
	for _, id := range batchIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		batch, ok := view.FindBatch(id)
		if !ok || batch.TenantID != tenantID {
			return Report{}, domain.NotFoundError{Entity: domain.EntityBatch, ID: id}
		}
		recipe, ok := view.FindRecipe(batch.RecipeID)
		if !ok || recipe.TenantID != tenantID {
			return Report{}, domain.NotFoundError{Entity: domain.EntityRecipe, ID: batch.RecipeID}
		}
		recipes = append(recipes, recipe)
	}

	report := Report{}
	for _, r := range rules {
		values := distinct(recipes, r.value)
		if len(values) < 2 {
			continue
		}
		finding := Finding{Attribute: r.attribute, Values: values}
		if r.hard {
			report.Errors = append(report.Errors, finding)
		} else {
			report.Warnings = append(report.Warnings, finding)
		}
	}
	report.Compatible = len(report.Errors) == 0
	return report, nil
}

func distinct(recipes []domain.Recipe, value func(domain.Recipe) string) []string {
	set := make(map[string]struct{})
	for _, r := range recipes {
		set[value(r)] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
