package cloudexport

import (
	"context"
	"os"
	"time"

	"cloud.google.com/go/compute/metadata"
	"github.com/hnakamur/errstack"
	"github.com/hnakamur/ltsvlog"
	"github.com/valyala/fastjson"
)

const metadataTimeout = 5 * time.Second

var projectIDEnvs = []string{"GOOGLE_CLOUD_PROJECT", "GCLOUD_PROJECT"}

// DefaultProjectID discovers the project ID from process-wide ambient state.
// It checks, in order, the GOOGLE_CLOUD_PROJECT and GCLOUD_PROJECT environment
// variables, the project_id of the credentials file named by
// GOOGLE_APPLICATION_CREDENTIALS, and the GCE metadata server.
// An empty string is returned when nothing resolves.
func DefaultProjectID() string {
	for _, env := range projectIDEnvs {
		if id := os.Getenv(env); id != "" {
			return id
		}
	}

	if path := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); path != "" {
		id, err := projectIDFromCredentialsFile(path)
		if err != nil {
			ltsvlog.Logger.Err(errstack.WithLV(errstack.Errorf("failed to read credentials file path=%s err=%+v", path, err)))
		} else if id != "" {
			return id
		}
	}

	if metadata.OnGCE() {
		ctx, cancel := context.WithTimeout(context.Background(), metadataTimeout)
		defer cancel()
		id, err := metadata.ProjectIDWithContext(ctx)
		if err != nil {
			ltsvlog.Logger.Err(errstack.WithLV(errstack.Errorf("failed to get project ID from metadata server err=%+v", err)))
			return ""
		}
		return id
	}
	return ""
}

func projectIDFromCredentialsFile(path string) (string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var p fastjson.Parser
	v, err := p.ParseBytes(buf)
	if err != nil {
		return "", err
	}
	return string(v.GetStringBytes("project_id")), nil
}
