package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/albapepper/donation-tracker/internal/store"
)

// Use clan-gold for every embed
const color int = 0xF1C40F

// maxDescription is Discord's embed description limit.
const maxDescription = 4096

func LeaderboardEmbed(season store.Season, clanTag string, entries []store.LeaderboardEntry) *discordgo.MessageEmbed {
	title := fmt.Sprintf("Donations · season %d", season.ID)
	if clanTag != "" {
		title += " · " + clanTag
	}
	embed := &discordgo.MessageEmbed{Title: title, Color: color}

	if len(entries) == 0 {
		embed.Description = "No donations recorded yet."
		return embed
	}

	var b strings.Builder
	for _, e := range entries {
		line := fmt.Sprintf("`%2d.` **%s** `%s` %d / %d (%.2f)\n",
			e.Rank, escape(e.Name), e.Tag, e.Donations, e.Received, e.Ratio)
		if b.Len()+len(line) > maxDescription {
			break
		}
		b.WriteString(line)
	}
	embed.Description = b.String()
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "donated / received (ratio)"}
	return embed
}

func SeasonEmbed(season store.Season, now time.Time) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Title: fmt.Sprintf("Season %d", season.ID), Color: color}
	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{Name: "Start", Value: discordTime(season.Start), Inline: true},
		&discordgo.MessageEmbedField{Name: "Finish", Value: discordTime(season.Finish), Inline: true},
		&discordgo.MessageEmbedField{Name: "Remaining", Value: FormatRemaining(season.Remaining(now)), Inline: true},
	)
	return embed
}

// PlayerEmbed renders a season record. live marks a delta computed against
// a fresh fetch rather than the end-of-season snapshot.
func PlayerEmbed(rec store.PlayerRecord, delta *store.Counters, live bool) *discordgo.MessageEmbed {
	name := rec.Name
	if name == "" {
		name = rec.Tag
	}
	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("%s · season %d", escape(name), rec.SeasonID),
		Color: color,
	}
	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{Name: "Tag", Value: "`" + rec.Tag + "`", Inline: true},
		&discordgo.MessageEmbedField{Name: "Donations", Value: fmt.Sprintf("%d", rec.Donations), Inline: true},
		&discordgo.MessageEmbedField{Name: "Received", Value: fmt.Sprintf("%d", rec.Received), Inline: true},
	)
	if rec.ClanTag != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Clan", Value: "`" + rec.ClanTag + "`", Inline: true})
	}

	switch {
	case delta != nil:
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  deltaTitle(live),
			Value: formatCounters(*delta),
		})
	case !rec.StartUpdate:
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Achievements",
			Value: "Start of season not captured yet.",
		})
	}
	return embed
}

func deltaTitle(live bool) string {
	if live {
		return "This season so far"
	}
	return "This season"
}

func formatCounters(c store.Counters) string {
	return fmt.Sprintf(
		"Friend in Need: %+d\nSharing is caring: %+d\nAttack wins: %+d\nDefense wins: %+d\nTrophies: %+d\nBest trophies: %+d",
		c.FriendInNeed, c.SharingIsCaring, c.AttackWins, c.DefenseWins, c.Trophies, c.BestTrophies,
	)
}

// FormatRemaining renders a duration as days, hours and minutes.
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "finished"
	}
	d = d.Round(time.Minute)
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

func discordTime(t time.Time) string {
	return fmt.Sprintf("<t:%d:f>", t.Unix())
}

var markdown = strings.NewReplacer("*", `\*`, "_", `\_`, "`", "\\`", "~", `\~`, "|", `\|`)

func escape(s string) string {
	return markdown.Replace(s)
}

func InputNotValid(message string) string {
	return fmt.Sprintf("Input not valid: \n> %s", message)
}

func NoSeason() string {
	return "No season has started yet."
}

func PlayerNotTracked(tag string) string {
	return fmt.Sprintf("Player `%s` is not tracked. Track their clan with `/track` first.", tag)
}

func PlayerNoRecord(tag string, seasonID int) string {
	return fmt.Sprintf("Player `%s` has no record for season %d.", tag, seasonID)
}

func PlayerLinked(tag string) string {
	return fmt.Sprintf("Player `%s` is now linked to your account.", tag)
}

func ClanTracked(clan string, tag string) string {
	return fmt.Sprintf("Now tracking **%s** `%s`. Members appear after the next sync.", escape(clan), tag)
}

func ClanUntracked(tag string) string {
	return fmt.Sprintf("Stopped tracking `%s`.", tag)
}

func ClanNotTracked(tag string) string {
	return fmt.Sprintf("Clan `%s` was not being tracked.", tag)
}

func ClanNotFound(tag string) string {
	return fmt.Sprintf("Clan `%s` does not exist.", tag)
}

func InternalError() string {
	return "Something went wrong, please try again later."
}
