package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/coah80/vidfix/internal/config"
	xlog "github.com/coah80/vidfix/internal/log"
)

var (
	mu                sync.Mutex
	categoryCooldowns = make(map[string]time.Time)

	client = &http.Client{Timeout: 10 * time.Second}
)

const (
	colorOrange = 0xFFA500
	colorRed    = 0xFF4444
	colorGreen  = 0x2ECC71
)

// send posts an embed to the configured webhook in the background. Alerts in
// the same category inside cooldown are dropped.
func send(category string, cooldown time.Duration, ping bool, color int, title, description string, fields []*discordgo.MessageEmbedField) {
	if !config.DiscordAlerts || config.DiscordWebhookURL == "" {
		return
	}

	mu.Lock()
	now := time.Now()
	if cooldown > 0 {
		if last, ok := categoryCooldowns[category]; ok && now.Sub(last) < cooldown {
			mu.Unlock()
			return
		}
	}
	categoryCooldowns[category] = now
	mu.Unlock()

	for i := range fields {
		fields[i].Value = truncate(fields[i].Value, 1024)
	}

	p := discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       title,
			Description: truncate(description, 2048),
			Color:       color,
			Fields:      fields,
			Timestamp:   now.UTC().Format(time.RFC3339),
			Footer:      &discordgo.MessageEmbedFooter{Text: "vidfix " + config.Version},
		}},
	}
	if ping && config.DiscordPingUserID != "" {
		p.Content = fmt.Sprintf("<@%s>", config.DiscordPingUserID)
		p.AllowedMentions = &discordgo.MessageAllowedMentions{Users: []string{config.DiscordPingUserID}}
	}

	body, err := json.Marshal(p)
	if err != nil {
		return
	}
	url := config.DiscordWebhookURL
	go func() {
		logger := xlog.WithComponent("alerts")
		resp, err := client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			logger.Warn().Err(err).Str("category", category).Msg("discord send failed")
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			logger.Warn().Int(xlog.FieldStatus, resp.StatusCode).Str("category", category).Msg("discord rejected alert")
		}
	}()
}

func ServerStarted() {
	send("server-start", 0, false, colorGreen, "Server Started",
		fmt.Sprintf("vidfix %s listening on :%s (%s)", config.Version, config.Port, config.EnvMode), nil)
}

func ServerStopping() {
	send("server-stop", 0, false, colorOrange, "Server Stopping", "vidfix is shutting down", nil)
}

func TranscodeFailed(jobID, filename string, err error) {
	send("transcode", 5*time.Second, true, colorRed, "Video Processing Failed", err.Error(), []*discordgo.MessageEmbedField{
		{Name: "Job", Value: jobID, Inline: true},
		{Name: "File", Value: truncate(filename, 200), Inline: true},
	})
}

// truncate caps s at maxLen bytes, cutting on a rune boundary.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
