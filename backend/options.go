package backend

import (
	"context"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/masa23/cloudexport"
)

// clientOptions returns the options for a Google Cloud API client. An injected
// connection is used as is; otherwise the configured credentials or, when none
// are configured, the application default credentials are used.
// ownsConn is false when the connection was injected: it stays owned by the
// caller and must not be closed with the client.
func clientOptions(ctx context.Context, cfg cloudexport.Configuration, scopes []string) (opts []option.ClientOption, ownsConn bool, err error) {
	if conn := cfg.Conn(); conn != nil {
		return []option.ClientOption{option.WithGRPCConn(conn)}, false, nil
	}

	if cfg.Endpoint() != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint()))
	}
	creds := cfg.Credentials()
	if creds == nil {
		creds, err = google.FindDefaultCredentials(ctx, scopes...)
		if err != nil {
			return nil, false, &cloudexport.CredentialError{Err: err}
		}
	}
	opts = append(opts, option.WithCredentials(creds))
	return opts, true, nil
}
