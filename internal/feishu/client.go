// Package feishu mirrors device state into a Feishu bitable table.
package feishu

import (
	"context"
	"strings"
	"sync"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/httprunner/DeviceScan/internal/env"
)

// tableAPI is the set of open platform calls the device table needs.
type tableAPI interface {
	// FindRecord returns the id of the first row whose field equals value,
	// or "" when none matches.
	FindRecord(ctx context.Context, appToken, tableID, field, value string) (string, error)
	CreateRecord(ctx context.Context, appToken, tableID string, fields map[string]any) (string, error)
	UpdateRecord(ctx context.Context, appToken, tableID, recordID string, fields map[string]any) error
	// WikiObject returns the type and token of the document behind a wiki node.
	WikiObject(ctx context.Context, wikiToken string) (objType, objToken string, err error)
}

// Client maintains rows of a bitable table.
type Client struct {
	api tableAPI

	appTokenMu    sync.RWMutex
	appTokens     map[string]string // wiki token -> app token
	appTokenGroup singleflight.Group
}

// NewClient returns a client for the self-built app identified by appID.
// An empty baseURL selects the public Feishu endpoint.
func NewClient(appID, appSecret, baseURL string) *Client {
	opts := []lark.ClientOptionFunc{lark.WithLogLevel(larkcore.LogLevelError)}
	if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" && baseURL != lark.FeishuBaseUrl {
		opts = append(opts, lark.WithOpenBaseUrl(baseURL))
	}
	return &Client{api: larkAPI{client: lark.NewClient(appID, appSecret, opts...)}}
}

// NewClientFromEnv constructs a Client from FEISHU_APP_ID, FEISHU_APP_SECRET
// and the optional FEISHU_BASE_URL.
func NewClientFromEnv() (*Client, error) {
	appID := env.String(env.AppID, "")
	appSecret := env.String(env.AppSecret, "")
	if appID == "" || appSecret == "" {
		return nil, errors.New("feishu: FEISHU_APP_ID and FEISHU_APP_SECRET must be set in environment")
	}
	return NewClient(appID, appSecret, env.String(env.FeishuBase, "")), nil
}
