package feishu

import (
	"context"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

var hostAllowList = []string{"feishu.cn", "feishuapp.com", "larksuite.com", "larkoffice.com"}

// BitableRef captures identifiers parsed from a Feishu bitable link.
type BitableRef struct {
	RawURL    string
	AppToken  string
	TableID   string
	ViewID    string
	WikiToken string
}

func isAllowedFeishuHost(host string) bool {
	if host == "" {
		return false
	}
	lower := strings.ToLower(host)
	for _, allowed := range hostAllowList {
		if strings.HasSuffix(lower, allowed) {
			return true
		}
	}
	return false
}

// ParseBitableURL extracts the app (or wiki) token and table id from a
// /base/<app> or /wiki/<node> link carrying a table query parameter.
func ParseBitableURL(raw string) (ref BitableRef, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "parse bitable url failed")
		}
	}()

	ref = BitableRef{RawURL: strings.TrimSpace(raw)}
	if ref.RawURL == "" {
		return ref, errors.New("empty url")
	}
	u, err := url.Parse(ref.RawURL)
	if err != nil {
		return ref, errors.Wrap(err, "invalid url")
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return ref, errors.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if !isAllowedFeishuHost(u.Host) {
		return ref, errors.Errorf("host %q is not recognized as Feishu", u.Host)
	}

	segments := strings.FieldsFunc(strings.Trim(u.Path, "/"), func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return ref, errors.New("missing path segments in url")
	}
	for i := 0; i < len(segments)-1 && ref.AppToken == ""; i++ {
		switch segments[i] {
		case "base":
			ref.AppToken = segments[i+1]
		case "wiki":
			ref.WikiToken = segments[i+1]
		}
	}
	if ref.AppToken == "" && ref.WikiToken == "" {
		ref.AppToken = segments[len(segments)-1]
	}

	q := u.Query()
	for _, key := range []string{"table", "tableId", "table_id"} {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			ref.TableID = v
			break
		}
	}
	if ref.TableID == "" {
		return ref, errors.New("missing table id in url query")
	}
	for _, key := range []string{"view", "viewId", "view_id"} {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			ref.ViewID = v
			break
		}
	}
	return ref, nil
}

// resolveAppToken fills ref.AppToken for wiki links by looking up the wiki
// node. Lookups are cached and deduplicated per wiki token.
func (c *Client) resolveAppToken(ctx context.Context, ref *BitableRef) error {
	if ref == nil {
		return errors.New("feishu: bitable reference is nil")
	}
	if strings.TrimSpace(ref.AppToken) != "" {
		return nil
	}
	wikiToken := strings.TrimSpace(ref.WikiToken)
	if wikiToken == "" {
		return errors.New("feishu: bitable app token not found in url")
	}

	c.appTokenMu.RLock()
	cached, ok := c.appTokens[wikiToken]
	c.appTokenMu.RUnlock()
	if ok {
		ref.AppToken = cached
		return nil
	}

	val, err, _ := c.appTokenGroup.Do(wikiToken, func() (any, error) {
		objType, objToken, err := c.api.WikiObject(ctx, wikiToken)
		if err != nil {
			return "", err
		}
		if objType != "bitable" {
			return "", errors.Errorf("feishu: wiki node type %q is not bitable", objType)
		}
		return objToken, nil
	})
	if err != nil {
		return err
	}
	appToken, _ := val.(string)
	if strings.TrimSpace(appToken) == "" {
		return errors.New("feishu: wiki node response missing obj_token")
	}

	c.appTokenMu.Lock()
	if c.appTokens == nil {
		c.appTokens = make(map[string]string)
	}
	c.appTokens[wikiToken] = appToken
	c.appTokenMu.Unlock()
	ref.AppToken = appToken
	return nil
}

func (c *Client) findRecordID(ctx context.Context, ref BitableRef, field, value string) (string, error) {
	return c.api.FindRecord(ctx, ref.AppToken, ref.TableID, field, value)
}

func (c *Client) createRecord(ctx context.Context, ref BitableRef, fields map[string]any) (string, error) {
	return c.api.CreateRecord(ctx, ref.AppToken, ref.TableID, fields)
}

func (c *Client) updateRecord(ctx context.Context, ref BitableRef, recordID string, fields map[string]any) error {
	return c.api.UpdateRecord(ctx, ref.AppToken, ref.TableID, recordID, fields)
}
