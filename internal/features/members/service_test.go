package members_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/community-leaderboard/internal/common"
	"serotonyl.ru/community-leaderboard/internal/features/activity"
	"serotonyl.ru/community-leaderboard/internal/features/members"
	"serotonyl.ru/community-leaderboard/internal/testutil/memstore"
)

func TestRegisterCommunity(t *testing.T) {
	svc := members.NewService(memstore.New())
	ctx := context.Background()

	c := &members.Community{ID: " comm_1 ", Name: "Гильдия", LedgerAccountID: "ledger_1", Currency: " USD "}
	require.NoError(t, svc.RegisterCommunity(ctx, c))

	got, err := svc.GetCommunity(ctx, "comm_1")
	require.NoError(t, err)
	assert.Equal(t, "usd", got.Currency)
	assert.Equal(t, "ledger_1", got.LedgerAccountID)

	err = svc.RegisterCommunity(ctx, &members.Community{ID: "comm_2", Currency: "usd"})
	var ve *common.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "ledgerAccountId", ve.Field)

	_, err = svc.GetCommunity(ctx, "comm_2")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSetChannels(t *testing.T) {
	svc := members.NewService(memstore.New())
	ctx := context.Background()

	out, err := svc.SetChannels(ctx, "comm_1", []members.Channel{
		{ChannelID: "f1", Kind: activity.KindForum},
		{ChannelID: " c1 ", Kind: activity.KindChat},
		{ChannelID: "f1", Kind: activity.KindChat}, // последний тип побеждает
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	set, err := svc.Channels(ctx, "comm_1")
	require.NoError(t, err)
	assert.Empty(t, set.Forum)
	assert.Equal(t, []string{"f1", "c1"}, set.Chat)

	ids, err := svc.CommunitiesToSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"comm_1"}, ids)

	_, err = svc.SetChannels(ctx, "comm_1", []members.Channel{{ChannelID: "x", Kind: "voice"}})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = svc.SetChannels(ctx, "comm_1", []members.Channel{{ChannelID: " ", Kind: activity.KindForum}})
	assert.ErrorIs(t, err, common.ErrValidation)

	// пустой список снимает сообщество с синхронизации
	_, err = svc.SetChannels(ctx, "comm_1", nil)
	require.NoError(t, err)
	ids, err = svc.CommunitiesToSync(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestLevelTable(t *testing.T) {
	svc := members.NewService(memstore.New())
	ctx := context.Background()

	require.NoError(t, svc.SetLevelName(ctx, "comm_1", 2, "Подмастерье"))

	table, err := svc.LevelTable(ctx, "comm_1")
	require.NoError(t, err)
	info := table.NextLevelInfo(10)
	assert.Equal(t, 2, info.Current.Level)
	assert.Equal(t, "Подмастерье", info.Current.Title)

	other, err := svc.LevelTable(ctx, "comm_2")
	require.NoError(t, err)
	assert.NotEqual(t, "Подмастерье", other.NextLevelInfo(10).Current.Title)

	assert.ErrorIs(t, svc.SetLevelName(ctx, "comm_1", 11, "x"), common.ErrValidation)
	assert.ErrorIs(t, svc.SetLevelName(ctx, "comm_1", 1, "  "), common.ErrValidation)
	assert.ErrorIs(t, svc.SetLevelName(ctx, "comm_1", 1, strings.Repeat("я", 65)), common.ErrValidation)
}

func TestSplitChannelsAndName(t *testing.T) {
	set := members.SplitChannels([]members.Channel{
		{ChannelID: "a", Kind: activity.KindForum},
		{ChannelID: "b", Kind: activity.KindChat},
		{ChannelID: "c", Kind: activity.KindForum},
	})
	assert.Equal(t, []string{"a", "c"}, set.Forum)
	assert.Equal(t, []string{"b"}, set.Chat)
	assert.False(t, set.Empty())
	assert.True(t, members.ChannelSet{}.Empty())

	assert.Equal(t, "Алиса", (&members.User{ID: "u1", Username: "alice", DisplayName: "Алиса"}).Name())
	assert.Equal(t, "@alice", (&members.User{ID: "u1", Username: "alice"}).Name())
	assert.Equal(t, "u1", (&members.User{ID: "u1"}).Name())
}
