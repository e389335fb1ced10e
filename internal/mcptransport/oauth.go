// Package mcptransport builds the HTTP clients internal/dispatch's MCP
// tool handlers use to reach remote MCP servers, layering OAuth2
// client-credentials bearer-token refresh on top of plain HTTP transport
// for servers whose manifest entry opts into it.
package mcptransport

import (
	"context"
	"net/http"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/nexus-core/agentcore/internal/config"
)

// NewHTTPClient returns a client for reaching an MCP server's HTTP
// transport. When oauth is configured with a non-empty TokenURL, the
// returned client transparently attaches and refreshes a bearer token via
// the OAuth2 client-credentials grant; otherwise it is a plain client with
// no auth layer, left to the server entry's own Env-supplied headers.
func NewHTTPClient(ctx context.Context, oauth config.MCPOAuthConfig) *http.Client {
	if oauth.TokenURL == "" {
		return http.DefaultClient
	}
	cc := clientcredentials.Config{
		ClientID:     oauth.ClientID,
		ClientSecret: oauth.ClientSecret,
		TokenURL:     oauth.TokenURL,
	}
	return cc.Client(ctx)
}
