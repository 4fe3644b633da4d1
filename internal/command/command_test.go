package command

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cmd, err := Parse([]byte(`{"command":"panic_sell","market":"KRW-BTC"}`))
	require.NoError(t, err)
	assert.Equal(t, PanicSell, cmd.Kind)
	assert.Equal(t, "KRW-BTC", cmd.Market)

	_, err = Parse([]byte(`{"command":"master_stop"}`))
	assert.NoError(t, err)

	for _, raw := range []string{
		`{"command":"sell_everything"}`,
		`{"command":"panic_sell"}`,
		`{"command":"cancel_buy_order","market":"btc"}`,
		`{"market":"KRW-BTC"}`,
		`not json`,
	} {
		_, err := Parse([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestMailboxDrainsOnce(t *testing.T) {
	box := NewMailbox(filepath.Join(t.TempDir(), "command.json"))

	cmd, err := box.Drain()
	require.NoError(t, err)
	assert.Nil(t, cmd)

	require.NoError(t, box.Post(Command{Kind: CancelBuyOrder, Market: "KRW-XRP"}))
	cmd, err = box.Drain()
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, CancelBuyOrder, cmd.Kind)
	assert.False(t, cmd.IssuedAt.IsZero())

	cmd, err = box.Drain()
	require.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestMailboxDiscardsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "command.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"command":"nope"}`), 0o644))
	box := NewMailbox(path)

	_, err := box.Drain()
	assert.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPostRejectsInvalid(t *testing.T) {
	box := NewMailbox(filepath.Join(t.TempDir(), "command.json"))
	assert.Error(t, box.Post(Command{Kind: PanicSell}))
	_, err := os.Stat(box.Path())
	assert.True(t, os.IsNotExist(err))
}
