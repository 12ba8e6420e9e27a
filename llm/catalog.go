package llm

import "context"

// ModelLister reports the models a provider currently serves.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

var recommended = map[string][]string{
	"watsonx": {
		"meta-llama/llama-3-3-70b-instruct",
		"meta-llama/llama-3-1-70b-instruct",
		"ibm/granite-3-8b-instruct",
		"ibm/granite-3.1-8b-instruct",
		"mistralai/mistral-large",
	},
	"openai": {
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4-turbo",
		"gpt-3.5-turbo",
	},
	"claude": {
		"claude-opus-4-5",
		"claude-sonnet-4-5",
		"claude-sonnet-3-7",
		"claude-3-5-sonnet-20241022",
	},
	"ollama": {
		"llama3",
		"llama3.1",
		"mistral",
		"mixtral",
		"codellama",
	},
}

// Recommended returns the models known to answer well for provider, best
// first. Unknown providers have none.
func Recommended(provider string) []string {
	return append([]string(nil), recommended[provider]...)
}

// CatalogEntry is one listed model.
type CatalogEntry struct {
	ID          string
	Recommended bool
}

// Catalog merges the live listing with the recommended models. Recommended
// models come first in their own order, marked as such even when the
// provider did not list them; the rest follow as listed.
func Catalog(provider string, listed []string) []CatalogEntry {
	rec := recommended[provider]
	out := make([]CatalogEntry, 0, len(rec)+len(listed))
	seen := make(map[string]bool, len(rec)+len(listed))
	for _, id := range rec {
		seen[id] = true
		out = append(out, CatalogEntry{ID: id, Recommended: true})
	}
	for _, id := range listed {
		if !seen[id] {
			seen[id] = true
			out = append(out, CatalogEntry{ID: id})
		}
	}
	return out
}
