package intent

import (
	"context"
	"fmt"
	"testing"

	"github.com/neoKode1/directorchair-core/internal/catalog"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	vocab, err := LoadVocabulary()
	if err != nil {
		t.Fatalf("failed to load vocabulary: %v", err)
	}
	return NewClassifier(vocab)
}

func TestClassify_Greeting(t *testing.T) {
	c := newTestClassifier(t)

	in := c.Classify(Request{Text: "hello"})
	if in.Category != catalog.CategoryClarification {
		t.Errorf("expected clarification, got %s", in.Category)
	}
	if in.RequiresGeneration {
		t.Error("greeting must not require generation")
	}
	if in.Confidence != 0.2 {
		t.Errorf("expected confidence 0.2, got %v", in.Confidence)
	}
}

func TestClassify_ExplicitGeneration(t *testing.T) {
	c := newTestClassifier(t)

	in := c.Classify(Request{Text: "generate an image of a cat"})
	if in.Category != catalog.CategoryImage {
		t.Errorf("expected image, got %s", in.Category)
	}
	if !in.RequiresGeneration {
		t.Error("expected requiresGeneration")
	}
	if in.Confidence < 0.8 {
		t.Errorf("expected confidence >= 0.8, got %v", in.Confidence)
	}
}

func TestClassify_ForcedCategoryShortCircuits(t *testing.T) {
	c := newTestClassifier(t)

	for _, text := range []string{"hello", "what is this", "generate an image of a cat", ""} {
		in := c.Classify(Request{Text: text, ForcedCategory: catalog.CategoryVideo})
		if in.Category != catalog.CategoryVideo {
			t.Errorf("text %q: expected video, got %s", text, in.Category)
		}
		if in.Confidence != 0.95 {
			t.Errorf("text %q: expected confidence 0.95, got %v", text, in.Confidence)
		}
		if !in.RequiresGeneration {
			t.Errorf("text %q: forced category must require generation", text)
		}
	}
}

func TestClassify_BoundsAndEnum(t *testing.T) {
	c := newTestClassifier(t)

	inputs := []string{
		"", "hello", "hey there", "what is the capital of France",
		"generate an image of a cat", "create a video of waves", "make something",
		"a moody portrait in the style of David Fincher", "close-up with bokeh",
		"analyze this composition", "sdkjhfks dfkjh", "music for a heist scene",
		"narrate this in a calm voice", "write a story about a fox",
	}
	for _, text := range inputs {
		in := c.Classify(Request{Text: text})
		if in.Confidence < 0 || in.Confidence > 1 {
			t.Errorf("text %q: confidence %v out of [0,1]", text, in.Confidence)
		}
		if !in.Category.Valid() {
			t.Errorf("text %q: invalid category %q", text, in.Category)
		}
	}
}

func TestClassify_QuestionIsAnalysis(t *testing.T) {
	c := newTestClassifier(t)

	in := c.Classify(Request{Text: "what makes a good establishing shot?"})
	if in.Category != catalog.CategoryAnalysis {
		t.Errorf("expected analysis, got %s", in.Category)
	}
	if in.RequiresGeneration {
		t.Error("questions must not require generation")
	}
	if in.Confidence != 0.7 {
		t.Errorf("expected confidence 0.7, got %v", in.Confidence)
	}
}

func TestClassify_ImageActionSubtypes(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		text        string
		wantSub     ActionSubtype
		wantCat     catalog.Category
	}{
		{"animate this photo please", SubtypeAnimate, catalog.CategoryVideo},
		{"change the background to a beach", SubtypeContextSwap, catalog.CategoryImage},
		{"remove the lamp post", SubtypeEdit, catalog.CategoryImage},
		{"redo this in the style of an oil sketch", SubtypeStyleTransfer, catalog.CategoryImage},
	}
	for _, tt := range tests {
		in := c.Classify(Request{Text: tt.text, AttachedImageRef: "upload://img-1"})
		if in.ActionSubtype != tt.wantSub {
			t.Errorf("%q: expected subtype %s, got %s", tt.text, tt.wantSub, in.ActionSubtype)
			continue
		}
		if in.Category != tt.wantCat {
			t.Errorf("%q: expected category %s, got %s", tt.text, tt.wantCat, in.Category)
		}
		if in.Confidence != 0.95 {
			t.Errorf("%q: expected confidence 0.95, got %v", tt.text, in.Confidence)
		}
		if in.AttachedImageRef != "upload://img-1" {
			t.Errorf("%q: attached image ref not carried, got %q", tt.text, in.AttachedImageRef)
		}
	}
}

func TestClassify_SubtypeNeedsAttachedImage(t *testing.T) {
	c := newTestClassifier(t)

	// Without an attached image the same phrasing must not produce a subtype.
	in := c.Classify(Request{Text: "change the background to a beach"})
	if in.ActionSubtype != SubtypeNone {
		t.Errorf("expected no subtype without attached image, got %s", in.ActionSubtype)
	}
}

func TestClassify_VideoKeywordsBeatImage(t *testing.T) {
	c := newTestClassifier(t)

	in := c.Classify(Request{Text: "a slow motion clip of rain on glass"})
	if in.Category != catalog.CategoryVideo {
		t.Errorf("expected video, got %s", in.Category)
	}
	if !in.RequiresGeneration {
		t.Error("bare content vocabulary should imply generation")
	}
}

func TestClassify_DirectorMention(t *testing.T) {
	c := newTestClassifier(t)

	for _, text := range []string{
		"a rainy street directed by someone brilliant",
		"something in the mood of denis villeneuve",
	} {
		in := c.Classify(Request{Text: text})
		if in.Category != catalog.CategoryImage {
			t.Errorf("%q: expected image, got %s", text, in.Category)
		}
		if in.Confidence != 0.9 {
			t.Errorf("%q: expected confidence 0.9, got %v", text, in.Confidence)
		}
	}
}

func TestClassify_AnalysisVerb(t *testing.T) {
	c := newTestClassifier(t)

	in := c.Classify(Request{Text: "analyze the framing in this shot"})
	// "shot" is not a content keyword; "analyze" fires the analysis rule
	// unless cinematic vocabulary wins earlier.
	if in.Category != catalog.CategoryAnalysis && in.Category != catalog.CategoryImage {
		t.Errorf("unexpected category %s", in.Category)
	}
}

func TestClassify_FallbackBiasTowardImage(t *testing.T) {
	c := newTestClassifier(t)

	in := c.Classify(Request{Text: "a lonely lighthouse on a cliff"})
	if in.Category != catalog.CategoryImage {
		t.Errorf("expected implicit image fallback, got %s", in.Category)
	}
	if !in.RequiresGeneration {
		t.Error("fallback should attempt generation")
	}
	if in.Confidence != 0.6 {
		t.Errorf("expected confidence 0.6, got %v", in.Confidence)
	}
}

func TestClassify_EmptyIsClarification(t *testing.T) {
	c := newTestClassifier(t)

	in := c.Classify(Request{Text: "   "})
	if in.Category != catalog.CategoryClarification {
		t.Errorf("expected clarification, got %s", in.Category)
	}
	if in.Confidence != 0.3 {
		t.Errorf("expected confidence 0.3, got %v", in.Confidence)
	}
}

// --- re-scoring ---

type fakeAdvisory struct {
	response string
	err      error
}

func (f *fakeAdvisory) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestRescore_RefinesKeywordsOnly(t *testing.T) {
	c := newTestClassifier(t)
	in := c.Classify(Request{Text: "generate an image of a cat"})

	svc := &fakeAdvisory{response: `{"keywords":["cat","whiskers"],"confidence":0.92}`}
	out := Rescore(context.Background(), svc, in)

	if out.Category != in.Category || out.RequiresGeneration != in.RequiresGeneration {
		t.Error("re-scoring must not change category or requiresGeneration")
	}
	if out.Confidence != 0.92 {
		t.Errorf("expected refined confidence 0.92, got %v", out.Confidence)
	}
	if len(out.Keywords) != 2 || out.Keywords[0] != "cat" {
		t.Errorf("expected refined keywords, got %v", out.Keywords)
	}
}

func TestRescore_DiscardedOnFailure(t *testing.T) {
	c := newTestClassifier(t)
	in := c.Classify(Request{Text: "generate an image of a cat"})

	tests := []struct {
		name string
		svc  *fakeAdvisory
	}{
		{"error", &fakeAdvisory{err: fmt.Errorf("timeout")}},
		{"malformed", &fakeAdvisory{response: "not json at all"}},
		{"out of range", &fakeAdvisory{response: `{"keywords":["x"],"confidence":7.5}`}},
		{"extra fields", &fakeAdvisory{response: `{"keywords":["x"],"confidence":0.5,"category":"video"}`}},
		{"empty keywords", &fakeAdvisory{response: `{"keywords":[],"confidence":0.5}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Rescore(context.Background(), tt.svc, in)
			if out.Confidence != in.Confidence || len(out.Keywords) != len(in.Keywords) {
				t.Errorf("expected untouched intent, got %+v", out)
			}
		})
	}
}

func TestRescore_NilService(t *testing.T) {
	c := newTestClassifier(t)
	in := c.Classify(Request{Text: "generate an image of a cat"})
	out := Rescore(context.Background(), nil, in)
	if out.Confidence != in.Confidence {
		t.Error("nil service must be a no-op")
	}
}
