// Package catalog holds the curated per-language reference repository
// descriptors that the code-synthesis path feeds into its prompts. The
// descriptors are static data: nothing here is ever fetched over the
// network at generation time.
package catalog

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed repos.yaml
var reposYAML []byte

// Repo describes one verified reference repository.
type Repo struct {
	Name        string   `yaml:"name"`
	URL         string   `yaml:"url"`
	Description string   `yaml:"description"`
	Language    string   `yaml:"language"`
	Stars       int      `yaml:"stars"`
	Topics      []string `yaml:"topics"`
	Frameworks  []string `yaml:"frameworks"`
}

var (
	loadOnce sync.Once
	byLang   map[string][]Repo
	loadErr  error
)

func load() {
	var raw map[string][]Repo
	if err := yaml.Unmarshal(reposYAML, &raw); err != nil {
		loadErr = fmt.Errorf("parse embedded repo catalog: %w", err)
		return
	}
	byLang = make(map[string][]Repo, len(raw))
	for lang, repos := range raw {
		key := strings.ToLower(lang)
		for i := range repos {
			repos[i].Language = key
		}
		byLang[key] = repos
	}
}

// ForLanguage returns the descriptors for a language, or nil when the
// catalog has no coverage for it.
func ForLanguage(lang string) ([]Repo, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return nil, loadErr
	}
	return byLang[strings.ToLower(strings.TrimSpace(lang))], nil
}

// Languages lists the languages with catalog coverage.
func Languages() ([]string, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return nil, loadErr
	}
	out := make([]string, 0, len(byLang))
	for lang := range byLang {
		out = append(out, lang)
	}
	return out, nil
}

// PromptContext renders up to max descriptors as compact prompt
// context lines for the code-synthesis call.
func PromptContext(lang string, max int) string {
	repos, err := ForLanguage(lang)
	if err != nil || len(repos) == 0 {
		return ""
	}
	if max > 0 && len(repos) > max {
		repos = repos[:max]
	}
	var b strings.Builder
	for _, r := range repos {
		fmt.Fprintf(&b, "- %s (%s): %s. Topics: %s. Frameworks: %s.\n",
			r.Name, r.URL, r.Description,
			strings.Join(r.Topics, ", "),
			strings.Join(r.Frameworks, ", "))
	}
	return b.String()
}
