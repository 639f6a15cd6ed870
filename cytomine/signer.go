// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
)

// SignRequest computes the Cytomine HMAC-SHA1 signature for req and
// attaches it as the authorization header.  The request must already
// carry its date header (and content-type header, if any); both are
// part of the signed canonical string:
//
//	METHOD\n\nCONTENT_TYPE\nDATE\nPATH?QUERY
//
// A missing content-type is rendered as an empty string, leaving the
// leading blank line in place.  The path covers the full request URI,
// so URLs outside the API base (the upload endpoints) sign the same
// way.
func SignRequest(req *http.Request, publicKey, privateKey string) {
	canonical := req.Method + "\n\n" +
		req.Header.Get("content-type") + "\n" +
		req.Header.Get("date") + "\n" +
		req.URL.RequestURI()

	mac := hmac.New(sha1.New, []byte(privateKey))
	mac.Write([]byte(canonical))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("authorization", "CYTOMINE "+publicKey+":"+signature)
}
