package config

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ParameterStore reads a single SSM parameter.
type ParameterStore interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ResolveSecrets fills the CoinGecko API key from SSM Parameter Store when
// running in prod with api_key_parameter set and no key given directly.
// store may be nil, in which case a client is built from the default AWS
// configuration.
func (c *Config) ResolveSecrets(ctx context.Context, store ParameterStore) error {
	if c.Log.Environment != "prod" || c.CoinGecko.APIKeyParameter == "" || c.CoinGecko.APIKey != "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if store == nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		store = ssm.NewFromConfig(awsCfg)
	}

	key, err := getParameterStoreValue(ctx, store, c.CoinGecko.APIKeyParameter, true)
	if err != nil {
		return err
	}
	c.CoinGecko.APIKey = key
	return nil
}

func getParameterStoreValue(ctx context.Context, store ParameterStore, name string, decrypt bool) (string, error) {
	result, err := store.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &decrypt,
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", name, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", name)
	}
	return *result.Parameter.Value, nil
}
