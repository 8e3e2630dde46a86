package rebaser_test

import (
	"testing"

	"eve.evalgo.org/internal/chash"
	"eve.evalgo.org/internal/id"
	"eve.evalgo.org/internal/rebaser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodecRequestRoundTrip(t *testing.T) {
	var codec rebaser.JSONCodec
	req := rebaser.EnqueueUpdatesRequest{
		RequestID:       id.New(),
		WorkspaceID:     "workspace-1",
		ChangeSetID:     "change-set-1",
		UpdatesAddress:  chash.Of([]byte("paradise city")),
		FromChangeSetID: "change-set-0",
	}

	body, err := codec.EncodeRequest(req)
	require.NoError(t, err)

	decoded, err := codec.DecodeRequest(body)
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}

func TestJSONCodecResponseRoundTrip(t *testing.T) {
	var codec rebaser.JSONCodec
	resp := rebaser.EnqueueUpdatesResponse{
		RequestID:    id.New(),
		Status:       rebaser.StatusConflict,
		ConflictKeys: []string{id.New().String(), id.New().String()},
	}

	body, err := codec.EncodeResponse(resp)
	require.NoError(t, err)

	decoded, err := codec.DecodeResponse(body)
	require.NoError(t, err)
	assert.Equal(t, resp, decoded)
}

func TestJSONCodecRejectsMalformedRequest(t *testing.T) {
	var codec rebaser.JSONCodec
	_, err := codec.DecodeRequest([]byte("not json"))
	assert.Error(t, err)
}
