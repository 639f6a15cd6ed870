// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/cytomine/go-cytomine/cytominetest"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testClient(t *testing.T, server *cytominetest.Server, opts ...Option) *Client {
	opts = append([]Option{
		WithLogger(quietLogger()),
		WithReadiness(5*time.Second, 10*time.Millisecond),
	}, opts...)
	client, err := Connect(server.URL(), "pub", "priv", opts...)
	require.NoError(t, err)
	return client
}
