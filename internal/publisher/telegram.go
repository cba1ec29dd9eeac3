package publisher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	sentry "github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	ta "github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"
)

// MaxMessageLength is Telegram's limit for a text message.
const MaxMessageLength = 4096

const (
	defaultMaxRetries = 3
	defaultRetryWait  = 2 * time.Second
)

// Receipt identifies the message a publish produced.
type Receipt struct {
	MessageID int64
	ChannelID int64
}

// Sender is the part of the bot API the publisher needs.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// TelegramPublisher sends content to a Telegram channel.
type TelegramPublisher struct {
	bot        Sender
	limiter    *rate.Limiter
	maxRetries uint64
	retryWait  time.Duration
}

// NewTelegramPublisher creates a publisher pacing channel sends to sendsPerMinute.
func NewTelegramPublisher(bot Sender, sendsPerMinute int) *TelegramPublisher {
	if sendsPerMinute <= 0 {
		sendsPerMinute = 20
	}
	return &TelegramPublisher{
		bot:        bot,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(sendsPerMinute)), 1),
		maxRetries: defaultMaxRetries,
		retryWait:  defaultRetryWait,
	}
}

// Publish sends content to the channel, split into several messages when it exceeds
// MaxMessageLength. The receipt names the first message. Once the first message is out,
// a failure on a later part is reported but not returned.
func (p *TelegramPublisher) Publish(ctx context.Context, channelID int64, content string) (Receipt, error) {
	chunks := SplitMessage(content, MaxMessageLength)
	if len(chunks) == 0 {
		return Receipt{}, errors.New("content is empty")
	}

	first, err := p.send(ctx, channelID, chunks[0])
	if err != nil {
		return Receipt{}, err
	}
	receipt := Receipt{MessageID: int64(first.MessageID), ChannelID: first.Chat.ID}

	for i, chunk := range chunks[1:] {
		if _, err := p.send(ctx, channelID, chunk); err != nil {
			err = fmt.Errorf("message %d: part %d/%d not sent: %w", receipt.MessageID, i+2, len(chunks), err)
			log.Printf("[Publisher] %v", err)
			sentry.CaptureException(err)
			break
		}
	}
	return receipt, nil
}

func (p *TelegramPublisher) send(ctx context.Context, channelID int64, text string) (*telego.Message, error) {
	logPrefix := fmt.Sprintf("[Publisher Channel:%d]", channelID)
	params := tu.Message(tu.ID(channelID), text)

	policy := &retryAfterBackOff{BackOff: backoff.NewExponentialBackOff()}
	policy.BackOff.(*backoff.ExponentialBackOff).InitialInterval = p.retryWait
	b := backoff.WithContext(backoff.WithMaxRetries(policy, p.maxRetries), ctx)

	attempt := 0
	op := func() (*telego.Message, error) {
		attempt++
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		msg, err := p.bot.SendMessage(ctx, params)
		if err == nil {
			if attempt > 1 {
				log.Printf("%s Successfully sent after %d attempt(s)", logPrefix, attempt)
			}
			return msg, nil
		}

		seconds, limited := rateLimited(err)
		if !limited {
			return nil, backoff.Permanent(err)
		}
		if seconds > 0 {
			log.Printf("%s Rate limit hit (attempt %d), waiting %d seconds", logPrefix, attempt, seconds)
			policy.next = time.Duration(seconds) * time.Second
		} else {
			log.Printf("%s Rate limit hit (attempt %d), couldn't parse retry time. Error: %v", logPrefix, attempt, err)
		}
		return nil, err
	}

	msg, err := backoff.RetryWithData(op, b)
	if err != nil {
		return nil, fmt.Errorf("failed to send message after %d attempt(s): %w", attempt, err)
	}
	return msg, nil
}

// retryAfterBackOff waits the server-provided delay when one is known.
type retryAfterBackOff struct {
	backoff.BackOff
	next time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	if b.next > 0 {
		d := b.next
		b.next = 0
		b.BackOff.NextBackOff()
		return d
	}
	return b.BackOff.NextBackOff()
}

func (b *retryAfterBackOff) Reset() {
	b.next = 0
	b.BackOff.Reset()
}

// rateLimited reports whether Telegram refused the request with 429 and how many
// seconds it asked to wait, zero when unknown.
func rateLimited(err error) (int, bool) {
	var apiErr *ta.Error
	if errors.As(err, &apiErr) {
		if apiErr.ErrorCode != http.StatusTooManyRequests {
			return 0, false
		}
		if apiErr.Parameters != nil && apiErr.Parameters.RetryAfter > 0 {
			return apiErr.Parameters.RetryAfter, true
		}
		return 0, true
	}

	// errors that lost the API type on the way keep only their text
	errStr := err.Error()
	if !strings.Contains(errStr, "Too Many Requests") {
		return 0, false
	}
	seconds, _ := parseRetryAfter(errStr)
	return seconds, true
}

// parseRetryAfter extracts retry duration from error string.
func parseRetryAfter(errorString string) (int, bool) {
	var retryAfter int
	fields := strings.Fields(errorString)
	if len(fields) >= 3 && fields[len(fields)-2] == "after" {
		_, err := fmt.Sscan(fields[len(fields)-1], &retryAfter)
		if err == nil && retryAfter > 0 {
			return retryAfter, true
		}
	}
	return 0, false
}

// SplitMessage cuts text into parts of at most limit characters, preferring line breaks.
// Blank text yields no parts.
func SplitMessage(text string, limit int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var chunks []string
	for utf8.RuneCountInString(text) > limit {
		runes := []rune(text)
		cut := limit
		if i := strings.LastIndex(string(runes[:limit]), "\n"); i > 0 {
			cut = utf8.RuneCountInString(string(runes[:limit])[:i]) + 1
		}
		if part := string(runes[:cut]); strings.TrimSpace(part) != "" {
			chunks = append(chunks, part)
		}
		text = string(runes[cut:])
	}
	if strings.TrimSpace(text) != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
