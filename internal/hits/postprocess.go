package hits

import (
	"regexp"
	"strings"

	"github.com/hyperjump/facetsearch/pkg/utils"
)

// DefaultSep joins multi-valued columns in the row store.
const DefaultSep = "@#@"

// SplitOnSep splits columns concatenated with Sep into Hit.Lists.
type SplitOnSep struct {
	Fields []string
	Sep    string
	Suffix string
}

// Process implements PostProcessor.
func (s SplitOnSep) Process(h *Hits) {
	sep := s.Sep
	if sep == "" {
		sep = DefaultSep
	}
	for _, hit := range h.Matches {
		for _, f := range s.Fields {
			v, ok := hit.Values[f]
			if !ok {
				continue
			}
			if hit.Lists == nil {
				hit.Lists = make(map[string][]string)
			}
			if v == "" {
				hit.Lists[f+s.Suffix] = nil
				continue
			}
			hit.Lists[f+s.Suffix] = strings.Split(v, sep)
		}
	}
}

// Highlight wraps query words found in Fields with Pre and Post and stores the
// result under "<field>_highlighted". Values longer than MaxLen are truncated first.
type Highlight struct {
	Fields []string
	Pre    string
	Post   string
	MaxLen int
}

// Process implements PostProcessor.
func (hl Highlight) Process(h *Hits) {
	if len(h.Words) == 0 {
		return
	}
	words := make([]string, len(h.Words))
	for i, w := range h.Words {
		words[i] = regexp.QuoteMeta(w.Word)
	}
	re, err := regexp.Compile(`(?i)\b(` + strings.Join(words, "|") + `)\b`)
	if err != nil {
		return
	}
	pre, post := hl.Pre, hl.Post
	if pre == "" && post == "" {
		pre, post = "<b>", "</b>"
	}
	for _, hit := range h.Matches {
		for _, f := range hl.Fields {
			v, ok := hit.Values[f]
			if !ok {
				continue
			}
			hit.Values[f+"_highlighted"] = re.ReplaceAllString(utils.Truncate(v, hl.MaxLen), pre+"$1"+post)
		}
	}
}
