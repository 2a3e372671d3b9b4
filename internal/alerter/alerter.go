package alerter

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/webhook"
	"go.uber.org/zap"

	"l2-order-book/internal/domain"
	"l2-order-book/internal/orderbook"
	"l2-order-book/internal/platform/metrics"
)

type Sender interface {
	Send(ctx context.Context, embed discord.Embed) error
}

// DiscordSender posts embeds to one webhook.
type DiscordSender struct {
	WebhookUrl string
}

func (d DiscordSender) Send(ctx context.Context, embed discord.Embed) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := webhook.NewWithURL(d.WebhookUrl)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	defer client.Close(ctx)

	if _, err := client.CreateEmbeds([]discord.Embed{embed}); err != nil {
		return fmt.Errorf("failed to send message to discord: %w", err)
	}
	return nil
}

// CrossedBookAlerter alerts once when the book becomes crossed (best bid at
// or above best ask) and logs when it recovers.
type CrossedBookAlerter struct {
	instrument string
	provider   string
	sender     Sender
	logger     *zap.Logger
	crossed    bool
}

func New(instrument, provider string, sender Sender, logger *zap.Logger) *CrossedBookAlerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrossedBookAlerter{instrument: instrument, provider: provider, sender: sender, logger: logger}
}

func (a *CrossedBookAlerter) Name() string { return "crossed-book-alerter" }

func (a *CrossedBookAlerter) Observe(ctx context.Context, view orderbook.BookView) error {
	top := view.Top(a.instrument)
	crossed := top.Crossed()
	defer func() { a.crossed = crossed }()

	switch {
	case crossed && !a.crossed:
		metrics.CrossedBookAlertsTotal.Inc()
		a.logger.Warn("Order book crossed",
			zap.Float64("best_bid", top.BestBid),
			zap.Float64("best_ask", top.BestAsk),
			zap.Uint64("sequence", top.Sequence))
		return a.sender.Send(ctx, crossedEmbed(a.provider, top))
	case !crossed && a.crossed:
		a.logger.Info("Order book no longer crossed", zap.Uint64("sequence", top.Sequence))
	}
	return nil
}

func crossedEmbed(provider string, top domain.TopOfBook) discord.Embed {
	spread, _ := top.Spread()
	return discord.NewEmbedBuilder().
		SetTitle("Crossed order book").
		SetColor(0xff0000).
		AddField("Provider", provider, true).
		AddField("Instrument", top.Instrument, true).
		AddField("\u200B", "\u200B", false).
		AddField("Best Bid", fmt.Sprintf("%f", top.BestBid), true).
		AddField("Best Ask", fmt.Sprintf("%f", top.BestAsk), true).
		AddField("Spread", fmt.Sprintf("%f", spread), true).
		AddField("Sequence", fmt.Sprintf("%d", top.Sequence), true).
		Build()
}
