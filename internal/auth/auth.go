// Package auth resolves the advisory-service API key.
package auth

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

// EnvAPIKey is the environment variable consulted first for the Gemini API key.
const EnvAPIKey = "GEMINI_API_KEY"

// EnvSSMParam names the SSM parameter holding the API key when the
// environment variable is unset.
const EnvSSMParam = "DIRECTOR_SSM_API_KEY_PARAM"

// ParameterGetter is the subset of the SSM client used for key retrieval.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// GetAPIKey retrieves the Gemini API key from available sources.
// Priority order:
//  1. GEMINI_API_KEY environment variable
//  2. SSM parameter named by DIRECTOR_SSM_API_KEY_PARAM (decrypted)
//
// ssmClient may be nil when SSM lookup is not configured.
func GetAPIKey(ctx context.Context, ssmClient ParameterGetter) (string, error) {
	if key := os.Getenv(EnvAPIKey); key != "" {
		log.Debug().Msg("Using API key from environment variable")
		return key, nil
	}

	paramName := os.Getenv(EnvSSMParam)
	if paramName != "" && ssmClient != nil {
		out, err := ssmClient.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(paramName),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			log.Error().Err(err).Str("param", paramName).Msg("Failed to read API key from SSM")
			return "", fmt.Errorf("read SSM parameter %s: %w", paramName, err)
		}
		if out.Parameter != nil && out.Parameter.Value != nil && *out.Parameter.Value != "" {
			log.Debug().Str("param", paramName).Msg("Using API key from SSM parameter")
			return *out.Parameter.Value, nil
		}
	}

	return "", fmt.Errorf("API key not found: set %s or %s", EnvAPIKey, EnvSSMParam)
}
