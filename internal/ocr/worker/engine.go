package worker

import (
	"image"
	"strings"

	"embykeeper/internal/ocr/charset"
)

// Engine recognises text in a single image. A worker owns one Engine and
// calls it serially.
type Engine interface {
	Classify(img image.Image) (string, error)
	Close() error
}

// ProbabilityEngine additionally exposes the per-position character
// distribution, which lets a charset restriction pick the best allowed
// character instead of post-filtering the greedy decode.
type ProbabilityEngine interface {
	Engine
	Probability(img image.Image) (Probability, error)
}

// Loader builds engines. LoadDefault returns the bundled model; LoadNamed
// loads a downloaded model file together with its JSON metadata.
type Loader interface {
	LoadDefault(set charset.Set) (Engine, error)
	LoadNamed(modelPath, metaPath string, set charset.Set) (Engine, error)
}

// Probability is a recognition result expressed as one distribution over
// Charsets per output position.
type Probability struct {
	Charsets []string
	Rows     [][]float32
}

// Best returns, for every row, the most likely charset entry that set allows.
// Rows where nothing allowed has a positive score contribute nothing.
func (p Probability) Best(set charset.Set) string {
	var b strings.Builder
	for _, row := range p.Rows {
		best := -1
		var bestScore float32
		for i, score := range row {
			if i >= len(p.Charsets) {
				break
			}
			c := p.Charsets[i]
			if c == "" || !set.AllowsString(c) {
				continue
			}
			if best < 0 || score > bestScore {
				best, bestScore = i, score
			}
		}
		if best >= 0 && bestScore > 0 {
			b.WriteString(p.Charsets[best])
		}
	}
	return b.String()
}
