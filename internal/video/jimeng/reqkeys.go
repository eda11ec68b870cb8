package jimeng

import (
	"fmt"
	"strings"
)

const (
	ActionSubmitTask = "CVSync2AsyncSubmitTask"
	ActionGetResult  = "CVSync2AsyncGetResult"

	ReqKeyT2VV30_720p       = "jimeng_t2v_v30"
	ReqKeyT2VV30_1080p      = "jimeng_t2v_v30_1080p"
	ReqKeyI2VFirstV30       = "jimeng_i2v_first_v30"
	ReqKeyI2VFirstV30_1080p = "jimeng_i2v_first_v30_1080"
)

const (
	StatusInQueue    = "in_queue"
	StatusGenerating = "generating"
	StatusDone       = "done"
	StatusNotFound   = "not_found"
	StatusExpired    = "expired"
	StatusFailed     = "failed"
)

const (
	codeSuccess = 10000

	frames5s  = 121
	frames10s = 241
)

var imageReqKeys = map[string]string{
	ReqKeyT2VV30_720p:  ReqKeyI2VFirstV30,
	ReqKeyT2VV30_1080p: ReqKeyI2VFirstV30_1080p,
}

// reqKeyFor switches a text-to-video model key to its first-frame
// image-to-video counterpart when an image is attached.
func reqKeyFor(model string, withImage bool) (string, error) {
	model = strings.TrimSpace(model)
	if withImage {
		if key, ok := imageReqKeys[model]; ok {
			return key, nil
		}
		for _, v := range imageReqKeys {
			if v == model {
				return model, nil
			}
		}
		return "", fmt.Errorf("model %q has no image-to-video variant", model)
	}
	if _, ok := imageReqKeys[model]; ok {
		return model, nil
	}
	return "", fmt.Errorf("unsupported jimeng model %q", model)
}

// framesFor maps a duration onto the two frame counts Jimeng accepts.
func framesFor(durationSeconds int) int {
	if durationSeconds > 5 {
		return frames10s
	}
	return frames5s
}

func handleName(reqKey, taskID string) string {
	return reqKey + "/" + taskID
}

func parseHandleName(name string) (reqKey, taskID string, err error) {
	reqKey, taskID, ok := strings.Cut(name, "/")
	if !ok || reqKey == "" || taskID == "" {
		return "", "", fmt.Errorf("invalid jimeng operation name %q", name)
	}
	return reqKey, taskID, nil
}
