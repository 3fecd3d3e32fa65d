package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	bridge "github.com/schemabounce/waterfall-bridge"
	"github.com/schemabounce/waterfall-bridge/exporter"
	"github.com/schemabounce/waterfall-bridge/importer"
	"github.com/schemabounce/waterfall-bridge/types"
	"github.com/schemabounce/waterfall-bridge/waterfall"
)

// statusCarrier is implemented by errors that arrive over the plugin
// boundary already mapped to a status.
type statusCarrier interface {
	HTTPStatus() int
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) version(c *gin.Context) {
	c.JSON(http.StatusOK, bridge.GetInfo())
}

func (s *Server) effectiveConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.config.Effective())
}

// requestContext carries the caller's credential, if any, to the remote
// calls made on its behalf.
func requestContext(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	if token := waterfall.CredentialFromRequest(c.Request); token != "" {
		ctx = waterfall.WithCredential(ctx, token)
	}
	return ctx
}

// boolParam reads a flag that is true only when spelled "true".
func boolParam(value string, def bool) bool {
	if value == "" {
		return def
	}
	return strings.EqualFold(value, "true")
}

// param reads a form field, falling back to the query string.
func param(c *gin.Context, key string) string {
	if v, ok := c.GetPostForm(key); ok {
		return v
	}
	return c.Query(key)
}

func (s *Server) export(c *gin.Context) {
	opts := exporter.DefaultOptions()
	opts.URL = c.Query("url")
	opts.Format = c.DefaultQuery("type", "json")
	opts.Tree = boolParam(c.Query("tree"), false)
	opts.Enrich = boolParam(c.Query("enrich"), true)
	opts.LookupConfig = c.Query("lookup_config")
	opts.DiagramType = c.Query("diagram_type")
	opts.Destination = c.Query("destination")

	result, err := s.bridge.Export(requestContext(c), opts)
	if err != nil {
		status, message := exportFailure(err)
		c.JSON(status, gin.H{"message": message})
		return
	}

	if result.Artifact != nil {
		c.JSON(http.StatusCreated, gin.H{
			"message":  "export stored",
			"artifact": result.Artifact,
			"filename": result.Filename,
			"count":    result.Count,
		})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

func exportFailure(err error) (int, string) {
	status := exporter.StatusCode(err)
	var carrier statusCarrier
	if errors.As(err, &carrier) && carrier.HTTPStatus() != 0 {
		status = carrier.HTTPStatus()
	}
	if status == http.StatusInternalServerError {
		return status, "internal server error"
	}
	return status, exporter.Message(err)
}

func (s *Server) importFile(c *gin.Context) {
	if limit := s.config.Server.MaxUploadBytes; limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.Request.ParseMultipartForm(s.engine.MaxMultipartMemory); err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": fmt.Sprintf("file exceeds %d bytes", maxBytesErr.Limit)})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"message": fmt.Sprintf("invalid multipart form: %v", err)})
			return
		}
	}

	opts := importer.DefaultOptions()
	opts.URL = param(c, "url")
	opts.Format = param(c, "type")
	if opts.Format == "" {
		opts.Format = "json"
	}
	opts.ResolveRefs = boolParam(param(c, "resolve_refs"), true)
	opts.OnAmbiguous = types.Policy(param(c, "on_ambiguous"))
	opts.OnMissing = types.Policy(param(c, "on_missing"))

	ctx := requestContext(c)
	var (
		result *importer.Result
		err    error
	)

	fh, fileErr := c.FormFile("file")
	switch {
	case fileErr == nil:
		payload, readErr := readUpload(fh)
		if readErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": fmt.Sprintf("cannot read uploaded file: %v", readErr)})
			return
		}
		opts.Filename = fh.Filename
		result, err = s.bridge.Import(ctx, opts, payload)
	case param(c, "source") != "":
		result, err = s.bridge.ImportArtifact(ctx, opts, param(c, "source"))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"message": "no file provided"})
		return
	}

	if err != nil {
		status, body := importFailure(err)
		c.JSON(status, body)
		return
	}
	c.JSON(result.StatusCode(), result)
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func importFailure(err error) (int, gin.H) {
	status := importer.StatusCode(err)
	var carrier statusCarrier
	if errors.As(err, &carrier) && carrier.HTTPStatus() != 0 {
		status = carrier.HTTPStatus()
	}
	if status == http.StatusInternalServerError {
		return status, gin.H{"message": "internal server error"}
	}

	body := gin.H{"message": err.Error()}
	var abortErr *importer.AbortError
	if errors.As(err, &abortErr) && abortErr.Resolution != nil {
		body["resolution_report"] = abortErr.Resolution
	}
	return status, body
}
