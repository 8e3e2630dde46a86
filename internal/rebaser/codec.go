package rebaser

import (
	"encoding/json"
	"fmt"

	"eve.evalgo.org/internal/chash"
	"eve.evalgo.org/internal/id"
)

// JSONCodec is the default Codec, used unless a deployment needs a more
// compact wire format.
type JSONCodec struct{}

type wireRequest struct {
	RequestID       string `json:"request_id"`
	WorkspaceID     string `json:"workspace_id"`
	ChangeSetID     string `json:"change_set_id"`
	UpdatesAddress  string `json:"updates_address"`
	FromChangeSetID string `json:"from_change_set_id,omitempty"`
}

type wireResponse struct {
	RequestID    string   `json:"request_id"`
	Status       string   `json:"status"`
	ConflictKeys []string `json:"conflict_keys,omitempty"`
	Error        string   `json:"error,omitempty"`
}

func statusToWire(s ResponseStatus) string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusConflict:
		return "conflict"
	default:
		return "error"
	}
}

func statusFromWire(s string) ResponseStatus {
	switch s {
	case "success":
		return StatusSuccess
	case "conflict":
		return StatusConflict
	default:
		return StatusError
	}
}

// EncodeRequest serializes req as JSON.
func (JSONCodec) EncodeRequest(req EnqueueUpdatesRequest) ([]byte, error) {
	return json.Marshal(wireRequest{
		RequestID:       req.RequestID.String(),
		WorkspaceID:     req.WorkspaceID,
		ChangeSetID:     req.ChangeSetID,
		UpdatesAddress:  req.UpdatesAddress.String(),
		FromChangeSetID: req.FromChangeSetID,
	})
}

// DecodeRequest parses a JSON-encoded EnqueueUpdatesRequest.
func (JSONCodec) DecodeRequest(data []byte) (EnqueueUpdatesRequest, error) {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return EnqueueUpdatesRequest{}, fmt.Errorf("rebaser: decode request: %w", err)
	}
	requestID, err := id.Parse(w.RequestID)
	if err != nil {
		return EnqueueUpdatesRequest{}, fmt.Errorf("rebaser: decode request id: %w", err)
	}
	updatesAddress, err := chash.Parse(w.UpdatesAddress)
	if err != nil {
		return EnqueueUpdatesRequest{}, fmt.Errorf("rebaser: decode updates address: %w", err)
	}
	return EnqueueUpdatesRequest{
		RequestID:       requestID,
		WorkspaceID:     w.WorkspaceID,
		ChangeSetID:     w.ChangeSetID,
		UpdatesAddress:  updatesAddress,
		FromChangeSetID: w.FromChangeSetID,
	}, nil
}

// EncodeResponse serializes resp as JSON.
func (JSONCodec) EncodeResponse(resp EnqueueUpdatesResponse) ([]byte, error) {
	return json.Marshal(wireResponse{
		RequestID:    resp.RequestID.String(),
		Status:       statusToWire(resp.Status),
		ConflictKeys: resp.ConflictKeys,
		Error:        resp.Error,
	})
}

// DecodeResponse parses a JSON-encoded EnqueueUpdatesResponse.
func (JSONCodec) DecodeResponse(data []byte) (EnqueueUpdatesResponse, error) {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return EnqueueUpdatesResponse{}, fmt.Errorf("rebaser: decode response: %w", err)
	}
	requestID, err := id.Parse(w.RequestID)
	if err != nil {
		return EnqueueUpdatesResponse{}, fmt.Errorf("rebaser: decode response id: %w", err)
	}
	return EnqueueUpdatesResponse{
		RequestID:    requestID,
		Status:       statusFromWire(w.Status),
		ConflictKeys: w.ConflictKeys,
		Error:        w.Error,
	}, nil
}
