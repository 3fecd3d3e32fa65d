package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/rpc"

	"github.com/hashicorp/go-hclog"

	"github.com/schemabounce/waterfall-bridge/artifacts"
	"github.com/schemabounce/waterfall-bridge/exporter"
	"github.com/schemabounce/waterfall-bridge/importer"
	"github.com/schemabounce/waterfall-bridge/types"
	"github.com/schemabounce/waterfall-bridge/waterfall"
)

// BridgeClient implements Bridge over net/rpc.
type BridgeClient struct {
	Client *rpc.Client
	Logger hclog.Logger
}

var _ Bridge = (*BridgeClient)(nil)

// call issues method and waits for the reply or for ctx to end. An
// abandoned call still completes in the plugin.
func (c *BridgeClient) call(ctx context.Context, method string, args, reply any) error {
	done := c.Client.Go("Plugin."+method, args, reply, make(chan *rpc.Call, 1)).Done
	select {
	case call := <-done:
		return call.Error
	case <-ctx.Done():
		return ctx.Err()
	}
}

func credentialOf(ctx context.Context) string {
	token, _ := waterfall.CredentialFrom(ctx)
	return token
}

// Export calls the plugin's Export method via RPC
func (c *BridgeClient) Export(ctx context.Context, opts exporter.Options) (*exporter.Result, error) {
	req := &ExportRequest{Options: opts, Credential: credentialOf(ctx)}
	var resp ExportResponse

	if err := c.call(ctx, "Export", req, &resp); err != nil {
		return nil, fmt.Errorf("export rpc: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	result := &exporter.Result{
		Data:        resp.Data,
		ContentType: resp.ContentType,
		Filename:    resp.Filename,
		Count:       resp.Count,
		Enriched:    resp.Enriched,
		ParentField: resp.ParentField,
	}
	if a := resp.Artifact; a != nil {
		result.Artifact = &artifacts.Artifact{Key: a.Key, ContentType: a.ContentType, Size: a.Size, UpdatedAt: a.UpdatedAt}
	}
	return result, nil
}

// Import calls the plugin's Import method with an uploaded payload.
func (c *BridgeClient) Import(ctx context.Context, opts importer.Options, payload []byte) (*importer.Result, error) {
	return c.importCall(ctx, &ImportRequest{Options: opts, Payload: payload, Credential: credentialOf(ctx)})
}

// ImportArtifact calls the plugin's Import method with an artifact key.
func (c *BridgeClient) ImportArtifact(ctx context.Context, opts importer.Options, key string) (*importer.Result, error) {
	return c.importCall(ctx, &ImportRequest{Options: opts, Source: key, Credential: credentialOf(ctx)})
}

func (c *BridgeClient) importCall(ctx context.Context, req *ImportRequest) (*importer.Result, error) {
	var resp ImportResponse
	if err := c.call(ctx, "Import", req, &resp); err != nil {
		return nil, fmt.Errorf("import rpc: %w", err)
	}

	if resp.Error != nil {
		// The resolution report of an abort is part of the answer.
		if resp.Error.Code == CodeAbort && len(resp.Resolution) > 0 {
			var report types.ResolutionReport
			if err := json.Unmarshal(resp.Resolution, &report); err != nil {
				return nil, fmt.Errorf("decode resolution report: %w", err)
			}
			return nil, &importer.AbortError{Reason: resp.Error.Message, Resolution: &report}
		}
		return nil, resp.Error
	}

	var result importer.Result
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("decode import result: %w", err)
	}
	return &result, nil
}
