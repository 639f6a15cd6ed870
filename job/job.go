// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

// Package job drives the lifecycle of a server-side Cytomine job: it
// creates the job, routes job-owned requests through the job's own
// algorithmic identity, streams throttled progress updates, and
// guarantees a terminal status on exit.
package job

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cytomine/go-cytomine/cytomine"
)

// statusCommentLimit is the server-side column width for
// statusComment.
const statusCommentLimit = 255

// Controller owns one running job.  The client passed to Start is
// never mutated; job-owned requests go through a second client bound
// to the job's key pair.
type Controller struct {
	client    *cytomine.Client
	jobClient *cytomine.Client
	job       *cytomine.Job
	closed    bool
}

// Start creates a job for (software, project) and elevates to its
// algorithmic identity.  When the connected identity is already
// algorithmic (the job runs under server orchestration), the
// existing job is fetched instead and no credential swap happens.
// The job is then marked RUNNING, and each declared software
// parameter with a value in params (falling back to its declared
// default) is bound as a JobParameter.
func Start(client *cytomine.Client, software, project int64, params map[string]string) (*Controller, error) {
	user, err := client.FetchCurrentUser()
	if err != nil {
		return nil, err
	}

	ctrl := &Controller{client: client}
	if user.Algo {
		ctrl.job = &cytomine.Job{}
		ctrl.job.SetID(user.Job)
		if err := client.Fetch(ctrl.job); err != nil {
			return nil, err
		}
		ctrl.jobClient = client
	} else {
		ctrl.job = cytomine.NewJob(project, software)
		if err := client.Save(ctrl.job); err != nil {
			return nil, err
		}
		userJob := &cytomine.UserJob{}
		userJob.SetID(ctrl.job.UserJob)
		if err := client.Fetch(userJob); err != nil {
			return nil, err
		}
		ctrl.jobClient, err = client.WithCredentials(userJob.PublicKey, userJob.PrivateKey)
		if err != nil {
			return nil, err
		}
	}

	if err := ctrl.SetStatus(cytomine.JobRunning, "Job started"); err != nil {
		return nil, err
	}
	if err := ctrl.bindParameters(software, params); err != nil {
		return nil, err
	}

	client.Logger().WithFields(logrus.Fields{
		"job":      ctrl.job.GetID(),
		"software": software,
		"project":  project,
	}).Info("Job started")
	return ctrl, nil
}

func (c *Controller) bindParameters(software int64, params map[string]string) error {
	if params == nil {
		return nil
	}
	declared := cytomine.NewSoftwareParameterCollection()
	if err := c.jobClient.FetchCollectionWithFilter(declared, "software", software); err != nil {
		return err
	}
	for _, sp := range declared.SoftwareParameters() {
		if sp.SetByServer {
			continue
		}
		value, ok := params[sp.Name]
		if !ok {
			value = sp.DefaultParamValue
		}
		if value == "" {
			continue
		}
		bound := cytomine.NewJobParameter(c.job.GetID(), sp.GetID(), value)
		if err := c.jobClient.Save(bound); err != nil {
			return err
		}
	}
	return nil
}

// Job returns the server-side job record.
func (c *Controller) Job() *cytomine.Job { return c.job }

// Client returns the client bound to the job identity; derived data
// the job produces should be saved through it so ownership is
// attributed to the job.
func (c *Controller) Client() *cytomine.Client { return c.jobClient }

// SetStatus PUTs a status change with a comment.
func (c *Controller) SetStatus(status int, comment string) error {
	c.job.Status = status
	c.job.StatusComment = truncate(comment, statusCommentLimit)
	return c.jobClient.Update(c.job)
}

// UpdateProgress PUTs a progress value in 0..100 with a comment,
// keeping the job RUNNING.
func (c *Controller) UpdateProgress(comment string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	c.job.Progress = progress
	c.job.StatusComment = truncate(comment, statusCommentLimit)
	return c.jobClient.Update(c.job)
}

// Close commits the terminal status: TERMINATED when runErr is nil,
// FAILED with the error text otherwise.  Closing twice is a no-op.
func (c *Controller) Close(runErr error) error {
	if c.closed {
		return nil
	}
	c.closed = true
	if runErr != nil {
		return c.SetStatus(cytomine.JobFailed, runErr.Error())
	}
	c.job.Progress = 100
	return c.SetStatus(cytomine.JobTerminated, "Job successfully terminated")
}

// Run wraps fn between Start and Close so the job reaches a terminal
// status on both normal and error exit.  fn's error is returned
// after the FAILED status has been committed.
func Run(client *cytomine.Client, software, project int64, params map[string]string, fn func(*Controller) error) error {
	ctrl, err := Start(client, software, project, params)
	if err != nil {
		return err
	}
	runErr := fn(ctrl)
	if closeErr := ctrl.Close(runErr); closeErr != nil {
		client.Logger().WithField("err", closeErr).Error("Could not commit terminal job status")
		if runErr == nil {
			return closeErr
		}
	}
	return runErr
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// Monitor maps loop progress into a slice of the job's progress bar.
// The root monitor covers 0..100; Sub carves nested subranges so
// composed stages each report into their own window.
type Monitor struct {
	ctrl   *Controller
	start  float64
	end    float64
	period float64
	prefix string
}

// Monitor returns a progress monitor over the full 0..100 range.
// period throttles server PUTs: a value above one keeps one update in
// n iterations, a value in (0,1] is taken relative to each loop's
// total (1.0 reports once, when the loop completes), and zero
// disables throttling.
func (c *Controller) Monitor(prefix string, period float64) *Monitor {
	return &Monitor{ctrl: c, start: 0, end: 100, period: period, prefix: prefix}
}

// Sub returns a monitor whose 0..100 maps into start..end percent of
// the receiver's range.
func (m *Monitor) Sub(start, end float64, prefix string) *Monitor {
	span := m.end - m.start
	return &Monitor{
		ctrl:   m.ctrl,
		start:  m.start + span*start/100,
		end:    m.start + span*end/100,
		period: m.period,
		prefix: prefix,
	}
}

func (m *Monitor) interval(total int) int {
	switch {
	case m.period <= 0:
		return 1
	case m.period <= 1:
		n := int(m.period * float64(total))
		if n < 1 {
			n = 1
		}
		return n
	default:
		return int(m.period)
	}
}

// Update reports current out of total.  Throttled iterations return
// nil without touching the server.
func (m *Monitor) Update(comment string, current, total int) error {
	if total <= 0 {
		return fmt.Errorf("progress total must be positive, got %d", total)
	}
	if current%m.interval(total) != 0 {
		return nil
	}
	relative := m.start + (m.end-m.start)*float64(current)/float64(total)
	if m.prefix != "" {
		comment = m.prefix + ": " + comment
	}
	return m.ctrl.UpdateProgress(comment, int(relative))
}

// Each runs fn for i in [0, n) and reports (i+1)/n progress after
// every iteration, stopping at the first error.
func (m *Monitor) Each(n int, fn func(i int) error) error {
	for i := 0; i < n; i++ {
		if err := fn(i); err != nil {
			return err
		}
		if err := m.Update(fmt.Sprintf("%d/%d", i+1, n), i+1, n); err != nil {
			return err
		}
	}
	return nil
}
