package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/realm"
)

func TestClientRequest_MsgpackRoundTrip(t *testing.T) {
	req := ClientRequest{
		Kind:   ClientRequestLocationChange,
		Target: LocationTarget{Kind: LocationTargetRealmByAsset, Owner: "alice", Asset: "home"},
	}
	data, err := msgpack.Marshal(req)
	require.NoError(t, err)

	got, err := DecodeClientRequest(data)
	require.NoError(t, err)
	assert.Equal(t, req.Kind, got.Kind)
	assert.Equal(t, req.Target, got.Target)
}

func TestClientResponse_MsgpackRoundTrip(t *testing.T) {
	resp := ClientResponse{
		Kind:          ClientResponseRealm,
		RealmResponse: realm.RealmResponse{Kind: realm.ResponseAccessChange, AccessChangeOK: true},
	}
	data, err := EncodeClientResponse(resp)
	require.NoError(t, err)

	var got ClientResponse
	require.NoError(t, msgpack.Unmarshal(data, &got))
	assert.Equal(t, resp.Kind, got.Kind)
	assert.True(t, got.RealmResponse.AccessChangeOK)
}

func TestClientRequest_JSONFallbackRoundTrip(t *testing.T) {
	req := ClientRequest{
		Kind:      ClientRequestDirectMessageSend,
		Recipient: model.Remote("bob", "remote.example"),
		Body:      "hi",
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	got, err := DecodeClientRequestJSON(data)
	require.NoError(t, err)
	assert.Equal(t, req.Kind, got.Kind)
	assert.Equal(t, req.Recipient, got.Recipient)
	assert.Equal(t, req.Body, got.Body)
}

func TestNoOperation_IsTheDroppedFrameResponse(t *testing.T) {
	assert.Equal(t, ClientResponseNoOperation, NoOperation.Kind)
}
