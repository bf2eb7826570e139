package splunkd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type feed[T any] struct {
	Entry []struct {
		Name    string `json:"name"`
		Content T      `json:"content"`
	} `json:"entry"`
}

type passwordContent struct {
	Realm         string `json:"realm"`
	Username      string `json:"username"`
	ClearPassword string `json:"clear_password"`
}

// ServerInfo is the subset of server/info the forwarder reads.
type ServerInfo struct {
	ServerName   string `json:"serverName"`
	Version      string `json:"version"`
	InstanceType string `json:"instance_type"`
}

// IsCloud reports whether splunkd runs as a Splunk Cloud instance.
func (i ServerInfo) IsCloud() bool {
	return i.InstanceType == "cloud"
}

// FindPassword looks up a stored credential by realm and username.
// Params: ctx request lifecycle; realm credential realm (may be empty); username credential user.
// Returns: clear password, presence flag, or API error.
func (c *Client) FindPassword(ctx context.Context, realm, username string) (string, bool, error) {
	var out feed[passwordContent]
	query := url.Values{"count": []string{"0"}}
	if err := c.do(ctx, http.MethodGet, c.namespaced("storage", "passwords"), query, nil, &out); err != nil {
		return "", false, err
	}

	for _, entry := range out.Entry {
		if entry.Content.Realm == realm && entry.Content.Username == username {
			return entry.Content.ClearPassword, true, nil
		}
	}
	return "", false, nil
}

// CreatePassword stores a new credential.
// Params: ctx request lifecycle; realm credential realm; username credential user; password secret.
// Returns: API error (409 when it already exists).
func (c *Client) CreatePassword(ctx context.Context, realm, username, password string) error {
	form := url.Values{
		"name":     []string{username},
		"password": []string{password},
	}
	if realm != "" {
		form.Set("realm", realm)
	}
	return c.do(ctx, http.MethodPost, c.namespaced("storage", "passwords"), nil, form, nil)
}

// DeletePassword removes a credential; a missing credential is not an error.
// Params: ctx request lifecycle; realm credential realm; username credential user.
// Returns: API error other than 404.
func (c *Client) DeletePassword(ctx context.Context, realm, username string) error {
	name := credentialName(realm, username)
	err := c.do(ctx, http.MethodDelete, c.namespaced("storage", "passwords", name), nil, nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

// ReplacePassword deletes then creates a credential.
// Params: ctx request lifecycle; realm credential realm; username credential user; password secret.
// Returns: first failing API error.
func (c *Client) ReplacePassword(ctx context.Context, realm, username, password string) error {
	if err := c.DeletePassword(ctx, realm, username); err != nil {
		return fmt.Errorf("delete credential %q: %w", username, err)
	}
	if err := c.CreatePassword(ctx, realm, username, password); err != nil {
		return fmt.Errorf("create credential %q: %w", username, err)
	}
	return nil
}

// QueryCollection returns all records of a KV store collection in the client's app.
// Params: ctx request lifecycle; collection name.
// Returns: records in storage order; nil when the collection does not exist.
func (c *Client) QueryCollection(ctx context.Context, collection string) ([]map[string]any, error) {
	var out []map[string]any
	path := c.namespaced("storage", "collections", "data", collection)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// ServerInfo reads services/server/info.
// Params: ctx request lifecycle.
// Returns: first entry content or error.
func (c *Client) ServerInfo(ctx context.Context) (ServerInfo, error) {
	var out feed[ServerInfo]
	if err := c.do(ctx, http.MethodGet, "/services/server/info", nil, nil, &out); err != nil {
		return ServerInfo{}, err
	}
	if len(out.Entry) == 0 {
		return ServerInfo{}, fmt.Errorf("splunkd server/info returned no entries")
	}
	return out.Entry[0].Content, nil
}

// credentialName builds the storage/passwords entity name "realm:username:".
func credentialName(realm, username string) string {
	escape := strings.NewReplacer(":", `\:`)
	return escape.Replace(realm) + ":" + escape.Replace(username) + ":"
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
