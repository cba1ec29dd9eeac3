package auth

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
)

// DefaultCacheTTL is how long a channel membership answer is reused.
const DefaultCacheTTL = 5 * time.Minute

// MemberGetter is the part of the bot API the checker needs.
type MemberGetter interface {
	GetChatMember(ctx context.Context, params *telego.GetChatMemberParams) (telego.ChatMember, error)
}

type cachedStatus struct {
	isAdmin   bool
	expiresAt time.Time
}

// AdminChecker decides who may drive the content workflow.
// With restrict disabled every user is allowed.
type AdminChecker struct {
	bot             MemberGetter
	targetChannelID int64
	restrict        bool
	ttl             time.Duration
	now             func() time.Time

	mu    sync.Mutex
	cache map[int64]cachedStatus
}

// NewAdminChecker creates a new AdminChecker.
// It requires a non-nil bot instance and a non-zero target channel ID.
func NewAdminChecker(bot MemberGetter, channelID int64, restrict bool) (*AdminChecker, error) {
	if bot == nil {
		return nil, fmt.Errorf("telego bot instance cannot be nil")
	}
	if channelID == 0 {
		return nil, fmt.Errorf("target channel ID cannot be zero")
	}
	return &AdminChecker{
		bot:             bot,
		targetChannelID: channelID,
		restrict:        restrict,
		ttl:             DefaultCacheTTL,
		now:             time.Now,
		cache:           make(map[int64]cachedStatus),
	}, nil
}

// IsAdmin checks if a user is an administrator or creator in the target channel.
// Answers are cached per user for DefaultCacheTTL; errors are never cached.
func (ac *AdminChecker) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	if !ac.restrict {
		return true, nil
	}

	ac.mu.Lock()
	entry, ok := ac.cache[userID]
	ac.mu.Unlock()
	if ok && ac.now().Before(entry.expiresAt) {
		return entry.isAdmin, nil
	}

	isAdmin, err := ac.lookup(ctx, userID)
	if err != nil {
		return false, err
	}

	ac.mu.Lock()
	ac.cache[userID] = cachedStatus{isAdmin: isAdmin, expiresAt: ac.now().Add(ac.ttl)}
	ac.mu.Unlock()
	return isAdmin, nil
}

func (ac *AdminChecker) lookup(ctx context.Context, userID int64) (bool, error) {
	member, err := ac.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: telego.ChatID{ID: ac.targetChannelID},
		UserID: userID,
	})
	if err != nil {
		// A user not found in the channel is simply not an admin.
		if strings.Contains(strings.ToLower(err.Error()), "user not found") {
			return false, nil
		}
		log.Printf("[AdminCheck User:%d Channel:%d] Error checking chat member: %v", userID, ac.targetChannelID, err)
		return false, fmt.Errorf("failed to get chat member info: %w", err)
	}
	if member == nil {
		return false, fmt.Errorf("failed to get chat member info (nil interface)")
	}

	status := member.MemberStatus()
	return status == telego.MemberStatusCreator || status == telego.MemberStatusAdministrator, nil
}
