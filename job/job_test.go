// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package job

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cytomine/go-cytomine/cytomine"
	"github.com/cytomine/go-cytomine/cytominetest"
)

func testClient(t *testing.T, server *cytominetest.Server) *cytomine.Client {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	client, err := cytomine.Connect(server.URL(), "pub", "priv",
		cytomine.WithLogger(logger),
		cytomine.WithReadiness(5*time.Second, 10*time.Millisecond))
	require.NoError(t, err)
	return client
}

func seedSoftware(server *cytominetest.Server) (software, project int64) {
	software = server.Seed("software", cytominetest.Doc{"name": "Classifier"})
	project = server.Seed("project", cytominetest.Doc{"name": "demo"})
	server.Seed("softwareparameter", cytominetest.Doc{
		"software": software,
		"name":     "threshold",
		"type":     "Number",
	})
	server.Seed("softwareparameter", cytominetest.Doc{
		"software":          software,
		"name":              "iterations",
		"type":              "Number",
		"defaultParamValue": "3",
	})
	server.Seed("softwareparameter", cytominetest.Doc{
		"software":    software,
		"name":        "cytomine_id_job",
		"setByServer": true,
	})
	return software, project
}

func TestStartCreatesJobAndSwapsIdentity(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)
	software, project := seedSoftware(server)

	ctrl, err := Start(client, software, project, map[string]string{"threshold": "0.5"})
	require.NoError(t, err)

	job := ctrl.Job()
	require.NotZero(t, job.GetID())
	assert.Equal(t, cytomine.JobRunning, job.Status)
	assert.Equal(t, software, job.Software)
	assert.Equal(t, project, job.Project)

	// The job-owned client signs with the issued key pair; the
	// caller's client is untouched.
	assert.Equal(t, "pub", client.PublicKey())
	assert.NotEqual(t, "pub", ctrl.Client().PublicKey())

	// threshold from the caller, iterations from its default, the
	// server-set parameter skipped.
	assert.Equal(t, 2, server.Count("jobparameter"))
}

func TestRunTerminates(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)
	software, project := seedSoftware(server)

	var jobID int64
	err := Run(client, software, project, nil, func(ctrl *Controller) error {
		jobID = ctrl.Job().GetID()
		return ctrl.UpdateProgress("halfway", 50)
	})
	require.NoError(t, err)

	doc := server.Get("job", jobID)
	require.NotNil(t, doc)
	assert.EqualValues(t, cytomine.JobTerminated, asInt(doc["status"]))
	assert.EqualValues(t, 100, asInt(doc["progress"]))
}

func TestRunReportsFailure(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)
	software, project := seedSoftware(server)

	long := strings.Repeat("x", 400)
	var jobID int64
	err := Run(client, software, project, nil, func(ctrl *Controller) error {
		jobID = ctrl.Job().GetID()
		return errors.New(long)
	})
	require.Error(t, err)
	assert.Equal(t, long, err.Error())

	doc := server.Get("job", jobID)
	require.NotNil(t, doc)
	assert.EqualValues(t, cytomine.JobFailed, asInt(doc["status"]))
	comment, _ := doc["statusComment"].(string)
	assert.Len(t, comment, 255)
	assert.True(t, strings.HasPrefix(long, comment))
}

func TestStartUnderAlgoIdentity(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()

	jobID := server.Seed("job", cytominetest.Doc{
		"status":   int64(cytomine.JobInQueue),
		"software": int64(11),
		"project":  int64(22),
	})
	server.SetCurrentUser(cytominetest.Doc{
		"id":       int64(501),
		"username": fmt.Sprintf("JOB[%d]", jobID),
		"algo":     true,
		"job":      jobID,
	})
	client := testClient(t, server)

	ctrl, err := Start(client, 11, 22, nil)
	require.NoError(t, err)
	assert.Equal(t, jobID, ctrl.Job().GetID())
	assert.Equal(t, cytomine.JobRunning, ctrl.Job().Status)
	// No swap: the orchestrator already runs under the job identity.
	assert.Same(t, client, ctrl.Client())
}

func TestMonitorThrottling(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)
	software, project := seedSoftware(server)

	ctrl, err := Start(client, software, project, nil)
	require.NoError(t, err)
	jobPath := fmt.Sprintf("/api/job/%d.json", ctrl.Job().GetID())

	before := countPuts(server, jobPath)
	monitor := ctrl.Monitor("counting", 10)
	for i := 1; i <= 100; i++ {
		require.NoError(t, monitor.Update("step", i, 100))
	}
	assert.Equal(t, before+10, countPuts(server, jobPath))

	// A fractional period is taken relative to the loop total.
	before = countPuts(server, jobPath)
	monitor = ctrl.Monitor("fraction", 0.25)
	for i := 1; i <= 100; i++ {
		require.NoError(t, monitor.Update("step", i, 100))
	}
	assert.Equal(t, before+4, countPuts(server, jobPath))

	// A period of 1.0 spans the whole loop: one update, on the
	// final iteration.
	before = countPuts(server, jobPath)
	monitor = ctrl.Monitor("whole", 1)
	for i := 1; i <= 8; i++ {
		require.NoError(t, monitor.Update("step", i, 8))
	}
	assert.Equal(t, before+1, countPuts(server, jobPath))
}

func TestMonitorSubRange(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)
	software, project := seedSoftware(server)

	ctrl, err := Start(client, software, project, nil)
	require.NoError(t, err)

	sub := ctrl.Monitor("", 0).Sub(50, 100, "second half")
	require.NoError(t, sub.Update("step", 1, 2))
	assert.Equal(t, 75, ctrl.Job().Progress)
	require.NoError(t, sub.Update("step", 2, 2))
	assert.Equal(t, 100, ctrl.Job().Progress)

	nested := sub.Sub(0, 50, "first quarter of it")
	require.NoError(t, nested.Update("step", 1, 1))
	assert.Equal(t, 75, ctrl.Job().Progress)
}

func TestMonitorEach(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)
	software, project := seedSoftware(server)

	ctrl, err := Start(client, software, project, nil)
	require.NoError(t, err)

	var visited []int
	monitor := ctrl.Monitor("tiles", 0)
	require.NoError(t, monitor.Each(3, func(i int) error {
		visited = append(visited, i)
		return nil
	}))
	assert.Equal(t, []int{0, 1, 2}, visited)
	assert.Equal(t, 100, ctrl.Job().Progress)
	assert.Contains(t, ctrl.Job().StatusComment, "tiles")

	wanted := errors.New("stop")
	err = monitor.Each(3, func(i int) error {
		if i == 1 {
			return wanted
		}
		return nil
	})
	assert.ErrorIs(t, err, wanted)
}

func countPuts(server *cytominetest.Server, path string) int {
	n := 0
	for _, req := range server.RequestsTo(path) {
		if req.Method == "PUT" {
			n++
		}
	}
	return n
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case interface{ Int64() (int64, error) }:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}
