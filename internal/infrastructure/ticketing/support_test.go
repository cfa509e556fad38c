package ticketing

import (
	"context"
	"testing"
	"time"

	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEnvCredentialResolver(t *testing.T) {
	env := map[string]string{
		"ITSM_CRED_SNOW_PROD": "svc:pa:ss",
		"ITSM_CRED_JIRA":      "token:abc",
		"ITSM_CRED_BROKEN":    "nocolon",
	}
	r := &EnvCredentialResolver{lookup: func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}}
	ctx := context.Background()

	basic, err := r.Resolve(ctx, "snow-prod")
	require.NoError(t, err)
	assert.Equal(t, Credentials{Username: "svc", Password: "pa:ss"}, basic)
	assert.True(t, basic.IsBasic())

	bearer, err := r.Resolve(ctx, "jira")
	require.NoError(t, err)
	assert.Equal(t, "abc", bearer.Token)
	assert.False(t, bearer.IsBasic())

	_, err = r.Resolve(ctx, "broken")
	assert.ErrorIs(t, err, ErrCredentialNotFound)
	_, err = r.Resolve(ctx, "missing")
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestEnvVarName(t *testing.T) {
	assert.Equal(t, "ITSM_CRED_SNOW_PROD", EnvVarName("snow-prod"))
	assert.Equal(t, "ITSM_CRED_ACME_JIRA_1", EnvVarName(" acme.jira 1 "))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"operation":"insert"}`)
	sig := Sign("s3cret", body)

	assert.NoError(t, VerifySignature("s3cret", body, sig))
	assert.NoError(t, VerifySignature("s3cret", body, "sha256="+sig))
	assert.NoError(t, VerifySignature("", body, ""), "empty secret disables verification")
	assert.ErrorIs(t, VerifySignature("s3cret", body, ""), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("s3cret", body, "zz"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("other", body, sig), ErrInvalidSignature)
}

func TestTemplateProvider(t *testing.T) {
	p := NewTemplateProvider()

	for _, platform := range itsm.AllPlatforms() {
		t.Run(platform.String(), func(t *testing.T) {
			rows, err := p.DefaultMappings(platform)
			require.NoError(t, err)
			require.NotEmpty(t, rows)

			seen := make(map[string]bool)
			for _, row := range rows {
				assert.False(t, seen[row.InternalField], "duplicate internal field %s", row.InternalField)
				seen[row.InternalField] = true
				assert.True(t, row.FieldType.IsValid(), row.InternalField)
				_, err := itsm.ParseTransformRule(row.Transform)
				assert.NoError(t, err, row.InternalField)
			}
			assert.True(t, seen["title"])
		})
	}

	_, err := p.DefaultMappings(itsm.Platform("zendesk"))
	assert.ErrorIs(t, err, itsm.ErrNoDefaultTemplate)
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry(5*time.Second, testCredentials, zap.NewNop())

	for _, platform := range itsm.AllPlatforms() {
		a, err := r.Adapter(platform)
		require.NoError(t, err)
		assert.Equal(t, platform, a.Platform())

		n, err := r.Normalizer(platform)
		require.NoError(t, err)
		assert.Equal(t, platform, n.Platform())
	}

	empty := NewRegistry()
	_, err := empty.Adapter(itsm.PlatformJira)
	assert.ErrorIs(t, err, itsm.ErrAdapterNotFound)
	_, err = empty.Normalizer(itsm.PlatformJira)
	assert.ErrorIs(t, err, itsm.ErrNormalizerNotFound)
}
