package policy

import (
	"fmt"
	"strings"

	"github.com/hyperjump/bunko/internal/lexical"
)

// CompareMode selects what a two-document comparison focuses on.
type CompareMode string

// Comparison modes.
const (
	ModeContent     CompareMode = "content"
	ModeMethodology CompareMode = "methodology"
	ModeConclusions CompareMode = "conclusions"
	ModeStructure   CompareMode = "structure"
	ModeLiteral     CompareMode = "literal"
	ModeCustom      CompareMode = "custom"
)

// Modes lists every comparison mode.
var Modes = []CompareMode{ModeContent, ModeMethodology, ModeConclusions, ModeStructure, ModeLiteral, ModeCustom}

// MaxCompareTopK caps the widened top-k of literal and structure comparisons.
const MaxCompareTopK = 10

// DefaultCompareTask is used when a comparison has no task text.
const DefaultCompareTask = "Compare the two documents and highlight their main similarities and differences."

var modeKeywords = map[CompareMode]string{
	ModeMethodology: "method methodology approach dataset sampling evaluation metrics baselines ablation experimental setup",
	ModeConclusions: "conclusion conclusions findings results implications limitations recommendations future work",
	ModeStructure:   "introduction background sections chapters outline organization headings appendix references",
	ModeLiteral:     "exact wording definitions terms values numbers thresholds limits requirements shall must",
}

// ParseMode validates a mode name. The empty string is content.
func ParseMode(s string) (CompareMode, error) {
	if s == "" {
		return ModeContent, nil
	}
	m := CompareMode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Modes {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown comparison mode %q", s)
}

// Keywords returns the retrieval keywords appended for mode, if any.
func Keywords(mode CompareMode) string {
	return modeKeywords[mode]
}

// CompareQuery returns the retrieval query for a comparison task. Content and
// custom modes use the task unchanged.
func CompareQuery(task string, mode CompareMode) string {
	if strings.TrimSpace(task) == "" {
		task = DefaultCompareTask
	}
	kw := Keywords(mode)
	if kw == "" {
		return task
	}
	return task + " " + kw
}

// CompareOptions derives per-side retrieval options from base. Each side gets half
// of the total budget; literal and structure widen top-k by 3.
func CompareOptions(base lexical.Options, mode CompareMode) lexical.Options {
	opts := base
	if opts.TopK < 1 {
		opts.TopK = lexical.DefaultTopK
	}
	if mode == ModeLiteral || mode == ModeStructure {
		opts.TopK = min(opts.TopK+3, MaxCompareTopK)
	}
	total := base.MaxTotalChars
	if total <= 0 {
		total = lexical.DefaultMaxTotalChars
	}
	opts.MaxTotalChars = max(total/2, 1)
	return opts
}
