package bot

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"

	"github.com/albapepper/donation-tracker/internal/cache"
	"github.com/albapepper/donation-tracker/internal/provider"
	"github.com/albapepper/donation-tracker/internal/provider/coc"
	"github.com/albapepper/donation-tracker/internal/store"
)

const (
	CommandDonations = "donations"
	CommandSeason    = "season"
	CommandPlayer    = "player"
	CommandLink      = "link"
	CommandTrack     = "track"
)

// leaderboardMax keeps /donations inside one embed.
const leaderboardMax = 50

var (
	manageServer int64 = discordgo.PermissionManageServer
	minLimit           = 1.0
)

var commands = []*discordgo.ApplicationCommand{
	{
		Name:        CommandDonations,
		Description: "Show the donation leaderboard for the current season",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "clan",
				Description: "Only players of this clan tag",
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "limit",
				Description: "Number of players to show",
				MinValue:    &minLimit,
				MaxValue:    leaderboardMax,
			},
		},
	},
	{
		Name:        CommandSeason,
		Description: "Show the current season and the time left",
	},
	{
		Name:        CommandPlayer,
		Description: "Show a player's donations and achievement progress this season",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "tag",
				Description: "Player tag, e.g. #2PP",
				Required:    true,
			},
		},
	},
	{
		Name:        CommandLink,
		Description: "Link a player tag to your Discord account",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "tag",
				Description: "Player tag, e.g. #2PP",
				Required:    true,
			},
		},
	},
	{
		Name:                     CommandTrack,
		Description:              "Start or stop tracking a clan in this channel",
		DefaultMemberPermissions: &manageServer,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "clan",
				Description: "Clan tag",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "remove",
				Description: "Stop tracking instead",
			},
		},
	},
}

// invocation is one parsed slash command.
type invocation struct {
	Name      string
	Options   map[string]*discordgo.ApplicationCommandInteractionDataOption
	UserID    string
	GuildID   string
	ChannelID string
}

func (inv invocation) str(name string) string {
	if o, ok := inv.Options[name]; ok {
		return o.StringValue()
	}
	return ""
}

func (inv invocation) integer(name string, def int) int {
	if o, ok := inv.Options[name]; ok {
		return int(o.IntValue())
	}
	return def
}

func (inv invocation) boolean(name string) bool {
	if o, ok := inv.Options[name]; ok {
		return o.BoolValue()
	}
	return false
}

// reply is what a command answers with.
type reply struct {
	Content string
	Embeds  []*discordgo.MessageEmbed
}

func text(s string) reply { return reply{Content: s} }

func embed(e *discordgo.MessageEmbed) reply {
	return reply{Embeds: []*discordgo.MessageEmbed{e}}
}

// ephemeral reports whether only the invoking user should see the reply.
func ephemeral(name string) bool {
	return name == CommandLink || name == CommandTrack
}

func (b *Bot) execute(ctx context.Context, inv invocation) reply {
	switch inv.Name {
	case CommandDonations:
		return b.donations(ctx, inv)
	case CommandSeason:
		return b.season(ctx)
	case CommandPlayer:
		return b.player(ctx, inv)
	case CommandLink:
		return b.link(ctx, inv)
	case CommandTrack:
		return b.track(ctx, inv)
	}
	return text(InputNotValid("unknown command " + inv.Name))
}

func (b *Bot) currentSeason(ctx context.Context) (store.Season, bool, error) {
	s, err := b.store.LatestSeason(ctx, b.now())
	if errors.Is(err, store.ErrNotFound) {
		return store.Season{}, false, nil
	}
	return s, err == nil, err
}

func (b *Bot) donations(ctx context.Context, inv invocation) reply {
	clanTag := ""
	if raw := inv.str("clan"); raw != "" {
		clanTag = provider.NormalizeTag(raw)
		if !provider.ValidTag(clanTag) {
			return text(InputNotValid("invalid clan tag " + raw))
		}
	}
	limit := min(max(inv.integer("limit", store.DefaultLeaderboardLimit), 1), leaderboardMax)

	season, ok, err := b.currentSeason(ctx)
	if err != nil {
		return b.fail("donations", err)
	}
	if !ok {
		return text(NoSeason())
	}

	entries, err := b.store.Leaderboard(ctx, store.LeaderboardQuery{SeasonID: season.ID, ClanTag: clanTag, Limit: limit})
	if err != nil {
		return b.fail("donations", err)
	}
	return embed(LeaderboardEmbed(season, clanTag, entries))
}

func (b *Bot) season(ctx context.Context) reply {
	season, ok, err := b.currentSeason(ctx)
	if err != nil {
		return b.fail("season", err)
	}
	if !ok {
		return text(NoSeason())
	}
	return embed(SeasonEmbed(season, b.now()))
}

func (b *Bot) player(ctx context.Context, inv invocation) reply {
	tag := provider.NormalizeTag(inv.str("tag"))
	if !provider.ValidTag(tag) {
		return text(InputNotValid("invalid player tag " + inv.str("tag")))
	}

	season, ok, err := b.currentSeason(ctx)
	if err != nil {
		return b.fail("player", err)
	}
	if !ok {
		return text(NoSeason())
	}

	rec, err := b.store.PlayerRecord(ctx, tag, season.ID)
	if errors.Is(err, store.ErrNotFound) {
		return text(PlayerNoRecord(tag, season.ID))
	}
	if err != nil {
		return b.fail("player", err)
	}

	var (
		delta *store.Counters
		live  bool
	)
	switch {
	case rec.StartUpdate && rec.FinalUpdate:
		d := rec.End.Sub(rec.Start)
		delta = &d
	case rec.StartUpdate:
		snap, err := b.game.GetPlayer(ctx, tag)
		if err != nil {
			b.logger.Warn("Live player fetch failed", "tag", tag, "error", err)
			break
		}
		d := countersOf(snap).Sub(rec.Start)
		delta, live = &d, true
	}
	return embed(PlayerEmbed(rec, delta, live))
}

func countersOf(s *provider.PlayerSnapshot) store.Counters {
	return store.Counters{
		FriendInNeed:    s.FriendInNeed,
		SharingIsCaring: s.SharingIsCaring,
		AttackWins:      s.AttackWins,
		DefenseWins:     s.DefenseWins,
		Trophies:        s.Trophies,
		BestTrophies:    s.BestTrophies,
	}
}

func (b *Bot) link(ctx context.Context, inv invocation) reply {
	tag := provider.NormalizeTag(inv.str("tag"))
	if !provider.ValidTag(tag) {
		return text(InputNotValid("invalid player tag " + inv.str("tag")))
	}
	if inv.UserID == "" {
		return text(InputNotValid("could not determine your account"))
	}

	err := b.store.LinkPlayer(ctx, tag, inv.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return text(PlayerNotTracked(tag))
	}
	if err != nil {
		return b.fail("link", err)
	}
	b.invalidate(cache.KeyPlayer + tag + ":")
	b.logger.Info("Player linked", "tag", tag, "user_id", inv.UserID)
	return text(PlayerLinked(tag))
}

func (b *Bot) track(ctx context.Context, inv invocation) reply {
	tag := provider.NormalizeTag(inv.str("clan"))
	if !provider.ValidTag(tag) {
		return text(InputNotValid("invalid clan tag " + inv.str("clan")))
	}

	if inv.boolean("remove") {
		err := b.store.UntrackClan(ctx, tag)
		if errors.Is(err, store.ErrNotFound) {
			return text(ClanNotTracked(tag))
		}
		if err != nil {
			return b.fail("track", err)
		}
		b.logger.Info("Clan untracked", "clan", tag, "guild_id", inv.GuildID)
		return text(ClanUntracked(tag))
	}

	clan, err := b.game.GetClan(ctx, tag)
	if errors.Is(err, coc.ErrNotFound) {
		return text(ClanNotFound(tag))
	}
	if err != nil {
		return b.fail("track", err)
	}

	err = b.store.TrackClan(ctx, store.Clan{
		Tag:       clan.Tag,
		Name:      clan.Name,
		GuildID:   inv.GuildID,
		ChannelID: inv.ChannelID,
		InUse:     true,
	})
	if err != nil {
		return b.fail("track", err)
	}
	b.logger.Info("Clan tracked", "clan", clan.Tag, "name", clan.Name, "guild_id", inv.GuildID)
	return text(ClanTracked(clan.Name, clan.Tag))
}

func (b *Bot) fail(command string, err error) reply {
	b.logger.Error("Command failed", "command", command, "error", err)
	return text(InternalError())
}
