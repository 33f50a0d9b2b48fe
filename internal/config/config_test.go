package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProfile(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 50, p.HistoryWindow)
	assert.Equal(t, 5*time.Second, p.MergeWindow)
	assert.Equal(t, 60*time.Second, p.ModelTimeout)
	assert.Equal(t, Throttle{SameTextWindow: 10 * time.Second, ShortTextWindow: 4 * time.Second, ShortTextMaxLen: 10}, p.Throttle)
	assert.Equal(t, Template{Name: "order_confirmation", Language: "en_US"}, p.Template)
	assert.Equal(t, "Sorry, I couldn't process your request at the moment.", p.Texts.Apology)
	assert.Equal(t, "⚠️ No pending order found to confirm.", p.Texts.NoPendingOrder)
	assert.Empty(t, p.Branches)
}

func TestRenderSystemPrompt(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	out, err := p.RenderSystemPrompt(PromptData{
		CustomerID: "42",
		Catalog:    "[a] Tawouk = LBP250000",
		Branches:   "Achrafieh (Sassine)",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "You are Order Assistant")
	assert.Contains(t, out, "Customer ID: 42")
	assert.Contains(t, out, "[a] Tawouk = LBP250000")
	assert.Contains(t, out, "Branches: Achrafieh (Sassine)")
	assert.Contains(t, out, "[ORDER_SUMMARY]")
	assert.NotContains(t, out, "Catalog link")
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bot_name: Malak AI
catalog_link: https://wa.me/c/000
merge_window: 3s
confirm_button: Place order
branches:
  - name: Achrafieh
    location: Sassine Square
    delivery_time: 30-45 min
`), 0o600))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Malak AI", p.BotName)
	assert.Equal(t, 3*time.Second, p.MergeWindow)
	assert.Equal(t, 50, p.HistoryWindow, "unset fields keep the default")
	require.Len(t, p.Branches, 1)
	assert.Equal(t, models.Branch{Name: "Achrafieh", Location: "Sassine Square", DeliveryTime: "30-45 min"}, p.Branches[0].Model())

	assert.True(t, p.IsConfirmButton(" place ORDER "))
	assert.False(t, p.IsConfirmButton("confirm"))

	out, err := p.RenderSystemPrompt(PromptData{})
	require.NoError(t, err)
	assert.Contains(t, out, "https://wa.me/c/000")
}

func TestLoadRejectsInvalidProfiles(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"history":  "history_window: 0\n",
		"template": "system_prompt: \"{{.Nope\"\n",
		"texts":    "texts:\n  apology: \"\"\n",
		"yaml":     "bot_name: [unterminated\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		_, err := Load(path)
		assert.Error(t, err, name)
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
