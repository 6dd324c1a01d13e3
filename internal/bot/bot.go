// Package bot serves the Discord slash commands: leaderboards, season info,
// player lookups, account linking and clan tracking.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/albapepper/donation-tracker/internal/provider"
	"github.com/albapepper/donation-tracker/internal/store"
)

const commandTimeout = 15 * time.Second

// Store is the subset of persistence used by commands.
type Store interface {
	LatestSeason(ctx context.Context, asOf time.Time) (store.Season, error)
	Leaderboard(ctx context.Context, q store.LeaderboardQuery) ([]store.LeaderboardEntry, error)
	PlayerRecord(ctx context.Context, tag string, seasonID int) (store.PlayerRecord, error)
	LinkPlayer(ctx context.Context, tag, userID string) error
	TrackClan(ctx context.Context, c store.Clan) error
	UntrackClan(ctx context.Context, tag string) error
}

// Game looks up live data from the game API.
type Game interface {
	GetPlayer(ctx context.Context, tag string) (*provider.PlayerSnapshot, error)
	GetClan(ctx context.Context, tag string) (*provider.Clan, error)
}

// Invalidator drops cached API responses by key prefix.
type Invalidator interface {
	InvalidatePrefix(prefix string) int
}

type Bot struct {
	session *discordgo.Session
	guildID string
	store   Store
	game    Game
	cache   Invalidator
	logger  *slog.Logger
	now     func() time.Time

	ctx context.Context
}

// New creates the Discord session. The connection is opened by Start.
func New(token, guildID string, st Store, game Game, c Invalidator, logger *slog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds
	return newBot(session, guildID, st, game, c, logger), nil
}

func newBot(session *discordgo.Session, guildID string, st Store, game Game, c Invalidator, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		session: session,
		guildID: guildID,
		store:   st,
		game:    game,
		cache:   c,
		logger:  logger.With("component", "bot"),
		now:     time.Now,
		ctx:     context.Background(),
	}
}

// Start opens the gateway connection and registers the slash commands.
// Commands run under ctx and are cancelled with it.
func (b *Bot) Start(ctx context.Context) error {
	b.ctx = ctx
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.logger.Info("Discord session ready", "user", s.State.User.Username, "guilds", len(r.Guilds))
	})
	b.session.AddHandler(b.handleInteraction)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("opening discord connection: %w", err)
	}
	if err := b.registerCommands(); err != nil {
		_ = b.session.Close()
		return err
	}
	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop() error {
	return b.session.Close()
}

func (b *Bot) registerCommands() error {
	created, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, b.guildID, commands)
	if err != nil {
		return fmt.Errorf("registering commands: %w", err)
	}
	scope := "global"
	if b.guildID != "" {
		scope = b.guildID
	}
	b.logger.Info("Registered commands", "count", len(created), "scope", scope)
	return nil
}

func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	inv := parseInvocation(i)

	var flags discordgo.MessageFlags
	if ephemeral(inv.Name) {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags},
	})
	if err != nil {
		b.logger.Error("Deferring interaction failed", "command", inv.Name, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	start := time.Now()
	out := b.execute(ctx, inv)

	edit := &discordgo.WebhookEdit{}
	if len(out.Embeds) > 0 {
		edit.Embeds = &out.Embeds
	}
	if out.Content != "" {
		edit.Content = &out.Content
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, edit); err != nil {
		b.logger.Error("Sending command response failed", "command", inv.Name, "error", err)
		return
	}
	b.logger.Debug("Command handled", "command", inv.Name, "guild_id", inv.GuildID, "elapsed", time.Since(start))
}

func parseInvocation(i *discordgo.InteractionCreate) invocation {
	data := i.ApplicationCommandData()
	inv := invocation{
		Name:      data.Name,
		Options:   make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(data.Options)),
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
	}
	for _, o := range data.Options {
		inv.Options[o.Name] = o
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		inv.UserID = i.Member.User.ID
	case i.User != nil:
		inv.UserID = i.User.ID
	}
	return inv
}

func (b *Bot) invalidate(prefix string) {
	if b.cache != nil {
		b.cache.InvalidatePrefix(prefix)
	}
}
