package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// BedrockSigner signs forwarded requests with AWS SigV4 for providers of
// type "bedrock", which take IAM credentials instead of an API key header.
type BedrockSigner struct {
	creds  aws.CredentialsProvider
	signer *v4.Signer
	region string
}

// NewBedrockSigner loads the default AWS credential chain for the region.
func NewBedrockSigner(ctx context.Context, region string) (*BedrockSigner, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &BedrockSigner{
		creds:  cfg.Credentials,
		signer: v4.NewSigner(),
		region: region,
	}, nil
}

// IsConfigured reports whether usable credentials were resolved.
func (s *BedrockSigner) IsConfigured() bool {
	if s == nil || s.creds == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	creds, err := s.creds.Retrieve(ctx)
	return err == nil && creds.HasKeys()
}

// SignRequest signs req in place for the bedrock service.
func (s *BedrockSigner) SignRequest(ctx context.Context, req *http.Request, body []byte) error {
	creds, err := s.creds.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}
	sum := sha256.Sum256(body)
	return s.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), "bedrock", s.region, time.Now())
}
