package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, textSimilarity("Sign In", "sign in"))
	assert.Equal(t, 0.0, textSimilarity("", ""))
	assert.Equal(t, 0.0, textSimilarity("login", ""))
	// "kitten" -> "sitting" 距离 3，max 7
	assert.InDelta(t, 1-3.0/7.0, textSimilarity("kitten", "sitting"), 1e-9)
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("abc", "abc"))
	assert.Equal(t, 3, levenshtein("", "abc"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
	assert.Equal(t, 1, levenshtein("login", "logiin"))
}

func TestClassOverlap(t *testing.T) {
	assert.Equal(t, 1.0, classOverlap(nil, nil))
	assert.Equal(t, 0.0, classOverlap([]string{"btn"}, nil))
	assert.Equal(t, 0.5, classOverlap([]string{"btn", "primary"}, []string{"btn", "large"}))
}

func TestSimilarityIdenticalVectors(t *testing.T) {
	fv := &FeatureVector{
		Text:       TextFeatures{Content: "Sign in", VisibleText: "Sign in", AriaLabel: "sign in"},
		Visual:     VisualFeatures{Visible: true, X: 10, Y: 20, Width: 100, Height: 40, Background: "rgb(0,0,255)", Color: "rgb(255,255,255)", FontSize: "14px"},
		Structural: StructuralFeatures{Tag: "button", Classes: []string{"btn", "primary"}, Interactive: true, ChildCount: 1, Depth: 4},
		Semantic:   SemanticFeatures{Role: "button"},
		Context:    ContextFeatures{ParentTag: "form", LabelText: "Login", PrecedingHead: "Welcome"},
	}
	assert.InDelta(t, 1.0, Similarity(fv, fv), 1e-9)
}

func TestSimilarityNilAndDisjoint(t *testing.T) {
	assert.Equal(t, 0.0, Similarity(nil, &FeatureVector{}))

	a := &FeatureVector{
		Text:       TextFeatures{Content: "Submit"},
		Structural: StructuralFeatures{Tag: "button", ID: "a", Depth: 2},
	}
	b := &FeatureVector{
		Text:       TextFeatures{Content: "Cancel order now"},
		Structural: StructuralFeatures{Tag: "a", ID: "b", Depth: 7, ChildCount: 3},
	}
	s := Similarity(a, b)
	assert.Greater(t, s, 0.0)
	assert.Less(t, s, 0.5)
}

func TestSimilaritySkipsEmptyGroups(t *testing.T) {
	// 两侧视觉/语义/上下文均为空，这些组不贡献分数
	a := &FeatureVector{Structural: StructuralFeatures{Tag: "button"}}
	b := &FeatureVector{Structural: StructuralFeatures{Tag: "button"}}
	s := Similarity(a, b)
	assert.Greater(t, s, 0.0)
	assert.LessOrEqual(t, s, weightStructural)
}
