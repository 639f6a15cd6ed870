// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

// Package cytomine provides an HTTP client for a Cytomine digital
// pathology server.  It covers request signing and transport, the
// entity and collection runtime that maps domain objects (projects,
// images, annotations, ontologies, ...) onto REST resources, bulk
// upload and download helpers, and the client façade itself.
//
// Connect to a server with Connect(); the returned *Client performs
// all further operations:
//
//	c, err := cytomine.Connect("https://demo.cytomine.local",
//		publicKey, privateKey)
//	if err != nil { ... }
//	project := &cytomine.Project{}
//	project.SetID(42)
//	err = c.Fetch(project)
//
// Long-running analysis jobs are driven by the job package, which
// builds on this one.
package cytomine
