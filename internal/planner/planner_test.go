package planner

import (
	"testing"

	"github.com/flowforge/autoflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_MapsActionsToCommands(t *testing.T) {
	steps := []model.CanonicalStep{
		{Action: model.ActionNavigate, Value: "https://x.test"},
		{Action: model.ActionFill, Target: &model.Target{Strategy: model.RefCSS, Selector: "#email"}, Value: "a@b.com"},
		{Action: model.ActionClick, Target: &model.Target{Strategy: model.RefTestID, Selector: "submit"}},
		{Action: model.ActionWaitFor, Target: &model.Target{Strategy: model.RefCSS, Selector: "#dashboard"}},
		{Action: model.ActionAssert, Target: &model.Target{Strategy: model.RefCSS, Selector: "#ok"}},
	}
	cmds := Generate(steps)
	require.Len(t, cmds, 4)
	assert.Equal(t, OpGoto, cmds[0].Op)
	assert.Equal(t, OpFill, cmds[1].Op)
	assert.Equal(t, OpClick, cmds[2].Op)
	assert.Equal(t, `[data-testid="submit"]`, cmds[2].Selector)
	assert.Equal(t, OpWaitFor, cmds[3].Op)
}

func TestGenerate_ClickWithoutTargetIsDropped(t *testing.T) {
	cmds := Generate([]model.CanonicalStep{{Action: model.ActionClick}})
	assert.Empty(t, cmds)
}

func TestGenerate_WaitForWithoutSelectorSleeps(t *testing.T) {
	cmds := Generate([]model.CanonicalStep{{Action: model.ActionWaitFor}})
	require.Len(t, cmds, 1)
	assert.Equal(t, OpSleep, cmds[0].Op)
}

func TestEncodeDecodeTarget_RoundTrip(t *testing.T) {
	cases := []model.Target{
		{Strategy: model.RefCSS, Selector: "#foo"},
		{Strategy: model.RefXPath, Selector: "//div"},
		{Strategy: model.RefText, Selector: "Sign in"},
		{Strategy: model.RefRole, Selector: "button"},
		{Strategy: model.RefTestID, Selector: "submit-btn"},
		{Strategy: model.RefLabel, Selector: "Email"},
	}
	for _, tc := range cases {
		encoded := EncodeTarget(tc)
		decoded := DecodeSelector(encoded)
		assert.Equal(t, encoded, EncodeTarget(decoded), "round-trip for %+v", tc)
	}
}
