// Package jimeng drives Volcengine Jimeng video generation through the
// visual service's async submit/get-result task API.
package jimeng

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/jimeng-relay/storyvideo/internal/config"
	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
	"github.com/jimeng-relay/storyvideo/internal/video"
	"github.com/volcengine/volc-sdk-golang/service/visual"
)

type callFunc func(body map[string]interface{}) (map[string]interface{}, int, error)

type Backend struct {
	submitFn    callFunc
	getResultFn callFunc
}

var _ video.Backend = (*Backend)(nil)

// New builds a backend on its own visual instance so concurrent backends do
// not share the SDK's package-level default.
func New(cfg config.VolcConfig) (*Backend, error) {
	if !cfg.Enabled() {
		return nil, &config.MissingCredentialsError{Missing: []string{config.EnvAccessKey, config.EnvSecretKey}}
	}

	v := visual.NewInstance()
	v.Client.SetAccessKey(cfg.AccessKey)
	v.Client.SetSecretKey(cfg.SecretKey)
	v.SetRegion(cfg.Region)
	v.SetHost(cfg.Host)
	if cfg.Timeout > 0 {
		v.Client.SetTimeout(cfg.Timeout)
	}

	return &Backend{
		submitFn: func(body map[string]interface{}) (map[string]interface{}, int, error) {
			return v.CVSync2AsyncSubmitTask(body)
		},
		getResultFn: func(body map[string]interface{}) (map[string]interface{}, int, error) {
			return v.CVSync2AsyncGetResult(body)
		},
	}, nil
}

func (b *Backend) Submit(ctx context.Context, req video.Request) (*video.OperationHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, internalerrors.New(internalerrors.ErrTimeout, "context done before submit", err)
	}

	reqKey, err := reqKeyFor(req.Model, req.HasImage())
	if err != nil {
		return nil, internalerrors.New(internalerrors.ErrConfiguration, "resolve jimeng req_key", err)
	}

	body := map[string]interface{}{
		"req_key": reqKey,
		"prompt":  req.Prompt,
		"frames":  framesFor(req.DurationSeconds),
		"seed":    -1,
	}
	if req.HasImage() {
		body["binary_data_base64"] = []string{base64.StdEncoding.EncodeToString(req.Image.Bytes)}
	} else if req.AspectRatio != "" {
		body["aspect_ratio"] = req.AspectRatio
	}

	raw, _, err := b.submitFn(body)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", ActionSubmitTask, err)
	}

	resp := payload(raw)
	if res := resp.result(); res.code != codeSuccess {
		return nil, res.err(ActionSubmitTask)
	}

	taskID := resp.obj("data").str("task_id")
	if taskID == "" {
		taskID = resp.str("task_id")
	}
	if taskID == "" {
		return nil, internalerrors.New(internalerrors.ErrDecodeFailed, "submit response missing task_id", nil)
	}

	return &video.OperationHandle{Name: handleName(reqKey, taskID)}, nil
}

func (b *Backend) Poll(ctx context.Context, handle *video.OperationHandle) (*video.OperationHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if handle == nil {
		return nil, internalerrors.New(internalerrors.ErrValidationFailed, "operation handle is required", nil)
	}
	reqKey, taskID, err := parseHandleName(handle.Name)
	if err != nil {
		return nil, internalerrors.New(internalerrors.ErrValidationFailed, "parse operation name", err)
	}

	raw, _, err := b.getResultFn(map[string]interface{}{
		"req_key": reqKey,
		"task_id": taskID,
	})
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", ActionGetResult, err)
	}

	resp := payload(raw)
	res := resp.result()
	if res.empty() {
		return nil, internalerrors.New(internalerrors.ErrDecodeFailed, "query task response missing code/status/message/request_id", nil)
	}

	out := &video.OperationHandle{Name: handle.Name}
	if res.code != codeSuccess {
		cerr := res.err(ActionGetResult)
		switch cerr.Code {
		case internalerrors.ErrRateLimited, internalerrors.ErrTransient:
			return nil, cerr
		}
		out.Done = true
		out.ErrorDetail = &video.ErrorDetail{Code: res.code, Kind: cerr.Code, Message: cerr.Message}
		return out, nil
	}

	data := resp.obj("data")
	switch taskStatus := data.str("status"); taskStatus {
	case StatusInQueue, StatusGenerating, "":
		return out, nil
	case StatusDone:
		out.Done = true
		out.Response = &video.Response{}
		if u := data.str("video_url"); u != "" {
			out.Response.GeneratedVideos = append(out.Response.GeneratedVideos, video.GeneratedVideo{
				Video: &video.Video{URI: u, MIMEType: "video/mp4"},
			})
		}
		return out, nil
	default:
		out.Done = true
		out.ErrorDetail = &video.ErrorDetail{Message: fmt.Sprintf("task %s ended with status %s", taskID, taskStatus)}
		return out, nil
	}
}
