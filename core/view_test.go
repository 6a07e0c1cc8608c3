package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/young-rocks/aptos-core/core/types"
)

func TestExecuteViewFunction_ReturnsRawValues(t *testing.T) {
	pipeline := newTestPipeline()
	module := types.ModuleId{Address: [32]byte{1}, Name: "coin"}

	out, err := pipeline.ExecuteViewFunction(module, "balance", nil, [][]byte{{1, 2, 3}}, 1000, fakeBaseResolver{})
	require.NoError(t, err)
	assert.Empty(t, out, "noopSession.ExecuteFunctionBypassVisibility returns an empty CallResult")
}
