package dgraph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"server-rewards-app/internal/app/referral"
)

const sampleResp = `{
	"data": [{
		"u": 1,
		"l": [
			{"u": 2, "l": [{"u": 4}, {"u": 1}]},
			{"u": 3, "l": [{"u": 5, "l": [{"u": 6}]}]}
		]
	}]
}`

func TestDecodeTree(t *testing.T) {
	node, err := decodeTree([]byte(sampleResp), 1, 5)
	require.NoError(t, err)

	want := referral.Node{UserID: 1, Children: []referral.Node{
		{UserID: 2, Children: []referral.Node{{UserID: 4}}},
		{UserID: 3, Children: []referral.Node{{UserID: 5, Children: []referral.Node{{UserID: 6}}}}},
	}}
	assert.Equal(t, want, node, "the loop back to 1 is dropped")
}

func TestDecodeTreeDepth(t *testing.T) {
	node, err := decodeTree([]byte(sampleResp), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, referral.Node{UserID: 1, Children: []referral.Node{{UserID: 2}, {UserID: 3}}}, node)
}

func TestDecodeTreeEmpty(t *testing.T) {
	node, err := decodeTree([]byte(`{"data":[]}`), 9, 3)
	require.NoError(t, err)
	assert.Equal(t, referral.Node{UserID: 9}, node)

	_, err = decodeTree([]byte(`{"data":`), 9, 3)
	assert.Error(t, err)
}

func TestUserRespCount(t *testing.T) {
	var r struct {
		Users []UserResp `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(sampleResp), &r))
	assert.Equal(t, 7, r.Users[0].Count())
}
