// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// UploadImage sends a local image file to the upload server and
// returns the resulting UploadedFile.  When the server has already
// deployed the image (sync uploads, or fast asynchronous
// processing), the Images and ImageInstances fields carry the
// deployed resources.  A nil project skips automatic association;
// properties are attached by the server to the deployed image.
func (c *Client) UploadImage(localPath string, storage *Storage, project *Project, properties map[string]string, sync bool) (*UploadedFile, error) {
	if storage == nil || storage.ID == 0 {
		return nil, fmt.Errorf("image upload needs a saved storage: %w", ErrNoID)
	}

	params := url.Values{}
	params.Set("idStorage", strconv.FormatInt(storage.ID, 10))
	params.Set("cytomine", c.session.baseURL())
	params.Set("sync", strconv.FormatBool(sync))
	if project != nil && project.ID != 0 {
		params.Set("idProject", strconv.FormatInt(project.ID, 10))
	}
	if len(properties) > 0 {
		// The upload server takes properties as two parallel
		// comma-joined lists.
		keys := make([]string, 0, len(properties))
		for k := range properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		values := make([]string, len(keys))
		for i, k := range keys {
			values[i] = properties[k]
		}
		params.Set("keys", strings.Join(keys, ","))
		params.Set("values", strings.Join(values, ","))
	}

	var payload []map[string]interface{}
	uri := c.uploadHost + "/upload"
	if err := c.session.uploadFile(uri, localPath, nil, params, &payload); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("upload of %s returned an empty response", localPath)
	}

	uploaded := &UploadedFile{}
	raw, ok := payload[0]["uploadedFile"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("upload of %s returned no uploadedFile", localPath)
	}
	if err := populate(uploaded, raw); err != nil {
		return nil, err
	}

	images, _ := payload[0]["images"].([]interface{})
	for _, entry := range images {
		group, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if rawImage, ok := group["image"].(map[string]interface{}); ok {
			img := &AbstractImage{}
			if err := populate(img, rawImage); err == nil {
				uploaded.Images = append(uploaded.Images, img)
			}
		}
		instances, _ := group["imageInstances"].([]interface{})
		for _, rawInstance := range instances {
			data, ok := rawInstance.(map[string]interface{})
			if !ok {
				continue
			}
			inst := &ImageInstance{}
			if err := populate(inst, data); err == nil {
				uploaded.ImageInstances = append(uploaded.ImageInstances, inst)
			}
		}
	}

	c.logger.WithField("uploadedFile", uploaded.ID).Info("Uploaded image")
	return uploaded, nil
}

// UploadAttachedFile attaches a local file to any domain resource
// (project, image, annotation...).
func (c *Client) UploadAttachedFile(localPath string, parent Model) (*AttachedFile, error) {
	if parent.GetID() == 0 {
		return nil, fmt.Errorf("attached file needs a saved parent: %w", ErrNoID)
	}

	fields := map[string]string{
		"domainClassName": parent.Kind(),
		"domainIdent":     strconv.FormatInt(parent.GetID(), 10),
	}

	var payload map[string]interface{}
	if err := c.session.uploadFile("attachedfile.json", localPath, fields, nil, &payload); err != nil {
		return nil, err
	}

	attached := &AttachedFile{}
	if err := attached.Domain.setParent(parent); err != nil {
		return nil, err
	}
	if err := c.populateFromResponse(attached, payload); err != nil {
		return nil, err
	}
	return attached, nil
}
