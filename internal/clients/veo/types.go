package veo

import (
	"fmt"

	"google.golang.org/genai"
)

// StartRequest is what the start call sends to the service.
type StartRequest struct {
	Prompt         string
	AspectRatio    string
	Resolution     string
	NumberOfVideos int32
}

// Operation is the long-running job as seen by the workflow.
// Name is the opaque token used to re-poll.
type Operation struct {
	Name            string
	Done            bool
	VideoURI        string
	ErrorMessage    string
	FilteredReasons []string
}

func fromGenAI(op *genai.GenerateVideosOperation) *Operation {
	if op == nil {
		return &Operation{}
	}

	out := &Operation{
		Name: op.Name,
		Done: op.Done,
	}

	if op.Error != nil {
		out.ErrorMessage = operationErrorMessage(op.Error)
	}

	if op.Response != nil {
		out.FilteredReasons = op.Response.RAIMediaFilteredReasons
		if len(op.Response.GeneratedVideos) > 0 {
			if v := op.Response.GeneratedVideos[0]; v != nil && v.Video != nil {
				out.VideoURI = v.Video.URI
			}
		}
	}

	return out
}

// The error payload is a google.rpc.Status decoded into a map.
func operationErrorMessage(status map[string]any) string {
	if msg, ok := status["message"].(string); ok && msg != "" {
		return msg
	}
	if code, ok := status["code"]; ok {
		return fmt.Sprintf("operation failed with code %v", code)
	}
	return "operation failed"
}
