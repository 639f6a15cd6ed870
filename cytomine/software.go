// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

// Software is a registered executable that can be run as a job.
type Software struct {
	Entity `mapstructure:",squash"`

	Name            string `mapstructure:"name"`
	SoftwareVersion string `mapstructure:"softwareVersion"`
	Deprecated      bool   `mapstructure:"deprecated"`
}

func NewSoftware(name string) *Software {
	return &Software{Name: name}
}

func (s *Software) Kind() string { return "software" }

func (s *Software) CallbackKeys() []string { return []string{"software"} }

type SoftwareCollection struct {
	Collection `mapstructure:",squash"`
}

func NewSoftwareCollection() *SoftwareCollection {
	col := &SoftwareCollection{}
	col.init("software", func() Model { return &Software{} }, "project")
	return col
}

func (c *SoftwareCollection) Softwares() []*Software {
	out := make([]*Software, len(c.data))
	for i, m := range c.data {
		out[i] = m.(*Software)
	}
	return out
}

// SoftwareParameter declares one parameter of a software, with its
// type, default value, and ordering index.
type SoftwareParameter struct {
	Entity `mapstructure:",squash"`

	Software          int64  `mapstructure:"software"`
	Name              string `mapstructure:"name"`
	Type              string `mapstructure:"type"`
	DefaultParamValue string `mapstructure:"defaultParamValue"`
	Required          bool   `mapstructure:"required"`
	Index             int    `mapstructure:"index"`
	SetByServer       bool   `mapstructure:"setByServer"`
	ServerParameter   bool   `mapstructure:"serverParameter"`
}

func (p *SoftwareParameter) Kind() string { return "softwareparameter" }

func (p *SoftwareParameter) CallbackKeys() []string {
	return []string{"softwareparameter", "parameter"}
}

type SoftwareParameterCollection struct {
	Collection `mapstructure:",squash"`
}

func NewSoftwareParameterCollection() *SoftwareParameterCollection {
	col := &SoftwareParameterCollection{}
	col.init("softwareparameter", func() Model { return &SoftwareParameter{} }, "software")
	return col
}

func (c *SoftwareParameterCollection) SoftwareParameters() []*SoftwareParameter {
	out := make([]*SoftwareParameter, len(c.data))
	for i, m := range c.data {
		out[i] = m.(*SoftwareParameter)
	}
	return out
}

// Job statuses, as stored in Job.Status.
const (
	JobNotLaunch     = 0
	JobInQueue       = 1
	JobRunning       = 2
	JobTerminated    = 3
	JobFailed        = 4
	JobIndeterminate = 5
	JobWait          = 6
	JobPreviewDone   = 7
	JobKilled        = 8
)

// Job is one execution of a software in a project, with its status,
// progress, and parameters.
type Job struct {
	Entity `mapstructure:",squash"`

	Project       int64  `mapstructure:"project"`
	Software      int64  `mapstructure:"software"`
	SoftwareName  string `mapstructure:"softwareName"`
	Status        int    `mapstructure:"status"`
	Progress      int    `mapstructure:"progress"`
	StatusComment string `mapstructure:"statusComment"`
	UserJob       int64  `mapstructure:"userJob"`
}

// NewJob creates a job binding a software to a project.
func NewJob(project, software int64) *Job {
	return &Job{Project: project, Software: software}
}

func (j *Job) Kind() string { return "job" }

func (j *Job) CallbackKeys() []string { return []string{"job"} }

type JobCollection struct {
	Collection `mapstructure:",squash"`
}

func NewJobCollection() *JobCollection {
	col := &JobCollection{}
	col.init("job", func() Model { return &Job{} }, "project", "software")
	return col
}

func (c *JobCollection) Jobs() []*Job {
	out := make([]*Job, len(c.data))
	for i, m := range c.data {
		out[i] = m.(*Job)
	}
	return out
}

// JobParameter is one bound parameter value of a job run.
type JobParameter struct {
	Entity `mapstructure:",squash"`

	Job               int64  `mapstructure:"job"`
	SoftwareParameter int64  `mapstructure:"softwareParameter"`
	Value             string `mapstructure:"value"`
}

func NewJobParameter(job, softwareParameter int64, value string) *JobParameter {
	return &JobParameter{Job: job, SoftwareParameter: softwareParameter, Value: value}
}

func (p *JobParameter) Kind() string { return "jobparameter" }

func (p *JobParameter) CallbackKeys() []string {
	return []string{"jobparameter", "parameter"}
}

type JobParameterCollection struct {
	Collection `mapstructure:",squash"`
}

func NewJobParameterCollection() *JobParameterCollection {
	col := &JobParameterCollection{}
	col.init("jobparameter", func() Model { return &JobParameter{} }, "job")
	return col
}

func (c *JobParameterCollection) JobParameters() []*JobParameter {
	out := make([]*JobParameter, len(c.data))
	for i, m := range c.data {
		out[i] = m.(*JobParameter)
	}
	return out
}
