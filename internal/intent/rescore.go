package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/neoKode1/directorchair-core/internal/advisory"
	"github.com/neoKode1/directorchair-core/internal/assets"
	"github.com/neoKode1/directorchair-core/internal/jsonutil"
)

// rescorePayload is the only response shape the re-scoring pass accepts.
// Anything else is discarded wholesale.
type rescorePayload struct {
	Keywords   []string `json:"keywords"`
	Confidence float64  `json:"confidence"`
}

// Rescore optionally refines an intent's keywords and confidence through the
// advisory service. The rule-based result is authoritative: category and
// requiresGeneration are never changed, and on any failure or shape mismatch
// the original intent is returned untouched.
func Rescore(ctx context.Context, svc advisory.Service, in Intent) Intent {
	if svc == nil {
		return in
	}

	userPrompt := fmt.Sprintf(
		"Request: %q\nRule-based category: %s\nRule-based confidence: %.2f\nCurrent keywords: %s",
		in.RawContext, in.Category, in.Confidence, strings.Join(in.Keywords, ", "),
	)

	raw, err := svc.Complete(ctx, assets.RescoreSystemPrompt, userPrompt)
	if err != nil {
		log.Debug().Err(err).Msg("Intent re-scoring unavailable, keeping rule-based result")
		return in
	}

	payload, err := jsonutil.ParseJSON[rescorePayload](raw)
	if err != nil {
		log.Warn().Err(err).Msg("Intent re-scoring response rejected, keeping rule-based result")
		return in
	}
	if payload.Confidence < 0 || payload.Confidence > 1 || len(payload.Keywords) == 0 {
		log.Warn().
			Float64("confidence", payload.Confidence).
			Int("keywords", len(payload.Keywords)).
			Msg("Intent re-scoring payload out of range, keeping rule-based result")
		return in
	}

	refined := in
	refined.Confidence = payload.Confidence
	refined.Keywords = payload.Keywords

	log.Debug().
		Float64("confidence", refined.Confidence).
		Strs("keywords", refined.Keywords).
		Msg("Intent refined by advisory re-scoring")

	return refined
}
