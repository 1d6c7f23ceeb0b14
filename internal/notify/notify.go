// Package notify posts a short report to Discord when a coaching session ends.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	colorDone   = 0x2ECC71
	colorFailed = 0xE74C3C

	// Discord rejects embed field values longer than this.
	maxFieldLen = 1024
)

// Summary describes a finished session.
type Summary struct {
	SessionID string
	Mode      string
	Started   time.Time
	Ended     time.Time
	Turns     int
	LastReply string
	Err       error
}

// Notifier delivers session summaries.
type Notifier interface {
	Notify(ctx context.Context, s Summary) error
}

// Poster sends an embed to a channel.
type Poster interface {
	Post(channelID string, embed *discordgo.MessageEmbed) error
}

// Discord is a [Notifier] posting an embed to one channel.
type Discord struct {
	poster    Poster
	channelID string
}

var _ Notifier = (*Discord)(nil)

// NewDiscord creates a REST-only discordgo session for a bot token. No
// gateway connection is opened.
func NewDiscord(token, channelID string) (*Discord, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("notify: create discord session: %w", err)
	}
	return NewDiscordWith(sessionPoster{s}, channelID), nil
}

// NewDiscordWith posts through p.
func NewDiscordWith(p Poster, channelID string) *Discord {
	return &Discord{poster: p, channelID: channelID}
}

// Notify implements [Notifier].
func (d *Discord) Notify(ctx context.Context, s Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.poster.Post(d.channelID, buildEmbed(s)); err != nil {
		return fmt.Errorf("notify: post to %s: %w", d.channelID, err)
	}
	slog.Debug("session report posted", "channel", d.channelID, "session_id", s.SessionID)
	return nil
}

type sessionPoster struct{ s *discordgo.Session }

func (p sessionPoster) Post(channelID string, embed *discordgo.MessageEmbed) error {
	_, err := p.s.ChannelMessageSendEmbed(channelID, embed)
	return err
}

func buildEmbed(s Summary) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:     "Morning routine complete",
		Color:     colorDone,
		Timestamp: s.Ended.Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Turns", Value: fmt.Sprintf("%d", s.Turns), Inline: true},
			{Name: "Duration", Value: s.Ended.Sub(s.Started).Round(time.Second).String(), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Session " + s.SessionID},
	}
	if s.Mode != "" {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Mode", Value: s.Mode, Inline: true})
	}
	if s.LastReply != "" {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Last reply", Value: truncate(s.LastReply, maxFieldLen)})
	}
	if s.Err != nil {
		e.Title = "Morning routine ended early"
		e.Color = colorFailed
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Error", Value: truncate(s.Err.Error(), maxFieldLen)})
	}
	return e
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
