// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cytomine/go-cytomine/cytominetest"
)

func TestParseHost(t *testing.T) {
	for _, tc := range []struct {
		in       string
		host     string
		protocol string
	}{
		{"demo.cytomine.be", "demo.cytomine.be", "http"},
		{"http://demo.cytomine.be", "demo.cytomine.be", "http"},
		{"https://demo.cytomine.be", "demo.cytomine.be", "https"},
		{"https://demo.cytomine.be/", "demo.cytomine.be", "https"},
	} {
		host, protocol, err := parseHost(tc.in)
		assert.NoError(t, err)
		assert.Equal(t, tc.host, host, tc.in)
		assert.Equal(t, tc.protocol, protocol, tc.in)
	}

	_, _, err := parseHost("https://")
	assert.Error(t, err)
}

func TestConnect(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()

	client := testClient(t, server)
	require.NotNil(t, client.CurrentUser())
	assert.Equal(t, "admin", client.CurrentUser().Username)
	assert.True(t, client.IsAlive())
	assert.Same(t, client, CurrentClient())
}

func TestConnectBadCredentialsFails(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	server.AddKeyPair("pub", "priv")
	server.VerifySignatures()

	_, err := Connect(server.URL(), "pub", "wrong",
		WithLogger(quietLogger()),
		WithReadiness(time.Second, 10*time.Millisecond))
	var remote RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 401, remote.Status)
}

func TestSignedRequestsAccepted(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	server.AddKeyPair("pub", "priv")
	server.VerifySignatures()

	client := testClient(t, server)
	id := server.Seed("project", cytominetest.Doc{"name": "signed"})

	project := &Project{}
	project.SetID(id)
	require.NoError(t, client.Fetch(project))
	assert.Equal(t, "signed", project.Name)
}

func TestAdminSession(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)

	assert.False(t, client.CurrentUser().AdminByNow)
	require.True(t, client.OpenAdminSession())
	assert.True(t, client.CurrentUser().AdminByNow)
	require.True(t, client.CloseAdminSession())
	assert.False(t, client.CurrentUser().AdminByNow)
}

func TestWithCredentialsLeavesReceiverUntouched(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)

	derived, err := client.WithCredentials("other-pub", "other-priv")
	require.NoError(t, err)
	assert.Equal(t, "pub", client.PublicKey())
	assert.Equal(t, "other-pub", derived.PublicKey())
	assert.Same(t, client, CurrentClient())
}

func TestConnectUnreachable(t *testing.T) {
	_, err := Connect("127.0.0.1:1", "pub", "priv",
		WithLogger(quietLogger()),
		WithReadiness(50*time.Millisecond, 10*time.Millisecond))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not accept connections")
}
