// Package secrets resolves secret-valued settings.
//
// A reference is one of:
//
//	plain value                used as is
//	ssm:<parameter name>       AWS SSM Parameter Store, decrypted
//	kms:<base64 ciphertext>    AWS KMS Decrypt
//
// A literal that happens to start with "ssm:" or "kms:" can be written with a
// "plain:" prefix.
package secrets

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/ohowe1/clipboard/internal/xerrors"
)

// ssmGetter is the subset of the SSM API the resolver calls.
type ssmGetter interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// kmsDecrypter is the subset of the KMS API the resolver calls.
type kmsDecrypter interface {
	Decrypt(ctx context.Context, in *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

type Resolver struct {
	ssm ssmGetter
	kms kmsDecrypter
}

// NewResolver accepts nil clients; references needing a missing client fail.
func NewResolver(ssmClient ssmGetter, kmsClient kmsDecrypter) *Resolver {
	return &Resolver{ssm: ssmClient, kms: kmsClient}
}

// NeedsAWS reports whether any of refs will call AWS.
func NeedsAWS(refs ...string) bool {
	for _, r := range refs {
		if strings.HasPrefix(r, "ssm:") || strings.HasPrefix(r, "kms:") {
			return true
		}
	}
	return false
}

func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "plain:"):
		return strings.TrimPrefix(ref, "plain:"), nil
	case strings.HasPrefix(ref, "ssm:"):
		return r.fromSSM(ctx, strings.TrimPrefix(ref, "ssm:"))
	case strings.HasPrefix(ref, "kms:"):
		return r.fromKMS(ctx, strings.TrimPrefix(ref, "kms:"))
	default:
		return ref, nil
	}
}

func (r *Resolver) fromSSM(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", xerrors.New("secrets: empty ssm parameter name")
	}
	if r.ssm == nil {
		return "", xerrors.Newf("secrets: no ssm client for parameter %s", name)
	}
	out, err := r.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "secrets: get ssm parameter %s", name)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("secrets: ssm parameter %s has no value", name)
	}
	return *out.Parameter.Value, nil
}

func (r *Resolver) fromKMS(ctx context.Context, encoded string) (string, error) {
	if r.kms == nil {
		return "", xerrors.New("secrets: no kms client")
	}
	blob, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", xerrors.Wrap(err, "secrets: decode kms ciphertext")
	}
	out, err := r.kms.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: blob})
	if err != nil {
		return "", xerrors.Wrap(err, "secrets: kms decrypt")
	}
	return string(out.Plaintext), nil
}
