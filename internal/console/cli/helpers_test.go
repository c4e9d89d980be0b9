package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"finitefield.org/crm-console/internal/console/authclient"
)

func testClient(t *testing.T, url string) *authclient.Client {
	t.Helper()
	client, err := authclient.New(url, nil)
	require.NoError(t, err)
	return client
}
