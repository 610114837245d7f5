package feishu

import (
	"context"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkbitable "github.com/larksuite/oapi-sdk-go/v3/service/bitable/v1"
	larkwiki "github.com/larksuite/oapi-sdk-go/v3/service/wiki/v2"
	"github.com/pkg/errors"
)

// larkAPI implements tableAPI with the SDK, which fetches and refreshes the
// tenant access token on its own.
type larkAPI struct {
	client *lark.Client
}

func apiFailure(action string, code int, msg string) error {
	return errors.Errorf("feishu: %s failed code=%d msg=%s", action, code, msg)
}

func (a larkAPI) FindRecord(ctx context.Context, appToken, tableID, field, value string) (string, error) {
	body := &larkbitable.SearchAppTableRecordReqBody{
		Filter: &larkbitable.FilterInfo{
			Conjunction: larkcore.StringPtr("and"),
			Conditions: []*larkbitable.Condition{{
				FieldName: larkcore.StringPtr(field),
				Operator:  larkcore.StringPtr("is"),
				Value:     []string{value},
			}},
		},
	}
	req := larkbitable.NewSearchAppTableRecordReqBuilder().
		AppToken(appToken).
		TableId(tableID).
		PageSize(1).
		Body(body).
		Build()
	resp, err := a.client.Bitable.V1.AppTableRecord.Search(ctx, req)
	if err != nil {
		return "", errors.Wrap(err, "feishu: search records")
	}
	if resp == nil {
		return "", errors.New("feishu: empty search response")
	}
	if resp.Code != 0 {
		return "", apiFailure("search records", resp.Code, resp.Msg)
	}
	if resp.Data == nil {
		return "", nil
	}
	for _, item := range resp.Data.Items {
		if item != nil && item.RecordId != nil {
			return *item.RecordId, nil
		}
	}
	return "", nil
}

func (a larkAPI) CreateRecord(ctx context.Context, appToken, tableID string, fields map[string]any) (string, error) {
	req := larkbitable.NewCreateAppTableRecordReqBuilder().
		AppToken(appToken).
		TableId(tableID).
		AppTableRecord(larkbitable.NewAppTableRecordBuilder().Fields(fields).Build()).
		Build()
	resp, err := a.client.Bitable.V1.AppTableRecord.Create(ctx, req)
	if err != nil {
		return "", errors.Wrap(err, "feishu: create record")
	}
	if resp == nil {
		return "", errors.New("feishu: empty create response")
	}
	if resp.Code != 0 {
		return "", apiFailure("create record", resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.Record == nil {
		return "", nil
	}
	return larkcore.StringValue(resp.Data.Record.RecordId), nil
}

func (a larkAPI) UpdateRecord(ctx context.Context, appToken, tableID, recordID string, fields map[string]any) error {
	req := larkbitable.NewUpdateAppTableRecordReqBuilder().
		AppToken(appToken).
		TableId(tableID).
		RecordId(recordID).
		AppTableRecord(larkbitable.NewAppTableRecordBuilder().Fields(fields).Build()).
		Build()
	resp, err := a.client.Bitable.V1.AppTableRecord.Update(ctx, req)
	if err != nil {
		return errors.Wrap(err, "feishu: update record")
	}
	if resp == nil {
		return errors.New("feishu: empty update response")
	}
	if resp.Code != 0 {
		return apiFailure("update record", resp.Code, resp.Msg)
	}
	return nil
}

func (a larkAPI) WikiObject(ctx context.Context, wikiToken string) (string, string, error) {
	req := larkwiki.NewGetNodeSpaceReqBuilder().Token(wikiToken).Build()
	resp, err := a.client.Wiki.V2.Space.GetNode(ctx, req)
	if err != nil {
		return "", "", errors.Wrap(err, "feishu: get wiki node")
	}
	if resp == nil {
		return "", "", errors.New("feishu: empty wiki node response")
	}
	if resp.Code != 0 {
		return "", "", apiFailure("get wiki node", resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.Node == nil {
		return "", "", errors.New("feishu: wiki node response missing node")
	}
	return larkcore.StringValue(resp.Data.Node.ObjType), larkcore.StringValue(resp.Data.Node.ObjToken), nil
}
