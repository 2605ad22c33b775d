package filters

import "regexp"

// CompilationThresholds configures the heuristic gate, overridable from
// config.CompilationConfig.
type CompilationThresholds struct {
	CodeHits   int
	LabelHits  int
	PostalHits int
	URLHits    int
	BlockCount int
}

// DefaultCompilationThresholds matches the original system's tuned
// defaults.
var DefaultCompilationThresholds = CompilationThresholds{
	CodeHits: 3, LabelHits: 3, PostalHits: 2, URLHits: 2, BlockCount: 2,
}

var (
	codeMentionRE   = regexp.MustCompile(`(?i)\b(code|assignment|job|id)\s*:\s*\S+`)
	labeledSectionRE = regexp.MustCompile(`(?im)^\s*(subject|rate|address|location)\s*:`)
	postalCodeRE    = regexp.MustCompile(`\b\d{6}\b`)
	urlRE           = regexp.MustCompile(`(?i)https?://\S+`)
	blankLineSplitRE = regexp.MustCompile(`\n\s*\n`)
)

// CompilationResult is the outcome of DetectCompilation.
type CompilationResult struct {
	IsCompilation bool
	Details       []string
	CodeHits      int
	LabelHits     int
	PostalHits    int
	URLHits       int
	BlockCount    int
}

// DetectCompilation flags a message as a likely multi-assignment bundle:
// repeated code mentions, labeled sections, distinct 6-digit postal codes,
// URLs, or blank-line-separated blocks, gated so the labels/blocks rules
// only fire when there are "enough" blocks to begin with.
func DetectCompilation(text string, th CompilationThresholds) CompilationResult {
	codeHits := len(codeMentionRE.FindAllString(text, -1))
	labelHits := len(labeledSectionRE.FindAllString(text, -1))

	postalSeen := map[string]bool{}
	for _, m := range postalCodeRE.FindAllString(text, -1) {
		postalSeen[m] = true
	}
	postalHits := len(postalSeen)

	urlHits := len(urlRE.FindAllString(text, -1))

	blocks := 0
	for _, b := range blankLineSplitRE.Split(text, -1) {
		if len(b) > 0 {
			blocks++
		}
	}

	res := CompilationResult{CodeHits: codeHits, LabelHits: labelHits, PostalHits: postalHits, URLHits: urlHits, BlockCount: blocks}

	enoughBlocks := blocks >= th.BlockCount
	if codeHits >= th.CodeHits {
		res.IsCompilation = true
		res.Details = append(res.Details, "code mentions")
	}
	if enoughBlocks && labelHits >= th.LabelHits {
		res.IsCompilation = true
		res.Details = append(res.Details, "labeled sections")
	}
	if postalHits >= th.PostalHits {
		res.IsCompilation = true
		res.Details = append(res.Details, "distinct postal codes")
	}
	if urlHits >= th.URLHits {
		res.IsCompilation = true
		res.Details = append(res.Details, "urls")
	}
	if enoughBlocks {
		res.IsCompilation = true
		res.Details = append(res.Details, "blank-line-separated blocks")
	}
	return res
}
