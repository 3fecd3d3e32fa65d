package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hashicorp/go-hclog"

	"github.com/schemabounce/waterfall-bridge/importer"
	"github.com/schemabounce/waterfall-bridge/waterfall"
)

// BridgeServer implements the plugin side of the net/rpc interface.
// Operation failures are returned in the response; the call error is
// reserved for transport problems.
type BridgeServer struct {
	Bridge Bridge
	Logger hclog.Logger
}

func requestContext(credential string) context.Context {
	ctx := context.Background()
	if credential != "" {
		ctx = waterfall.WithCredential(ctx, credential)
	}
	return ctx
}

// Export handles the Export RPC call
func (s *BridgeServer) Export(req *ExportRequest, resp *ExportResponse) error {
	s.Logger.Debug("Export called", "type", req.Options.Format, "tree", req.Options.Tree)

	result, err := s.Bridge.Export(requestContext(req.Credential), req.Options)
	if err != nil {
		s.Logger.Error("Export failed", "error", err)
		resp.Error = exportError(err)
		return nil
	}

	resp.Data = result.Data
	resp.ContentType = result.ContentType
	resp.Filename = result.Filename
	resp.Count = result.Count
	resp.Enriched = result.Enriched
	resp.ParentField = result.ParentField
	if a := result.Artifact; a != nil {
		resp.Artifact = &ArtifactRef{Key: a.Key, ContentType: a.ContentType, Size: a.Size, UpdatedAt: a.UpdatedAt}
	}
	s.Logger.Debug("Export completed", "records", result.Count, "bytes", len(result.Data))
	return nil
}

// Import handles the Import RPC call
func (s *BridgeServer) Import(req *ImportRequest, resp *ImportResponse) error {
	s.Logger.Debug("Import called", "type", req.Options.Format, "source", req.Source)

	ctx := requestContext(req.Credential)
	var (
		result *importer.Result
		err    error
	)
	if req.Source != "" {
		result, err = s.Bridge.ImportArtifact(ctx, req.Options, req.Source)
	} else {
		result, err = s.Bridge.Import(ctx, req.Options, req.Payload)
	}

	if err != nil {
		s.Logger.Error("Import failed", "error", err)
		resp.Error = importError(err)
		var abortErr *importer.AbortError
		if errors.As(err, &abortErr) && abortErr.Resolution != nil {
			if resp.Resolution, err = json.Marshal(abortErr.Resolution); err != nil {
				return err
			}
		}
		return nil
	}

	if resp.Result, err = json.Marshal(result); err != nil {
		return err
	}
	s.Logger.Debug("Import completed", "success", result.Import.Success, "failed", result.Import.Failed)
	return nil
}
