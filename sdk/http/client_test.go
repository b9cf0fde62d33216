package http

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestNewClient(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		caPEM     string
		timeout   time.Duration
		wantErrIs error
	}{
		{name: "system-ca", timeout: time.Second},
		{name: "no-timeout"},
		{name: "bad-pem", caPEM: "not a pem", wantErrIs: ErrInvalidCertificatePem},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			c, err := NewClient(tt.caPEM, tt.timeout)
			if tt.wantErrIs != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantErrIs)
				assert.Nil(c)
				return
			}
			require.NoError(err)
			assert.Equal(tt.timeout, c.Timeout)
			assert.NotNil(c.Transport)
		})
	}
}

func TestOidcClientContext(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	c, err := NewClient("", 0)
	require.NoError(err)
	ctx := OidcClientContext(context.Background(), c)
	assert.Equal(c, ctx.Value(oauth2.HTTPClient))
}
