package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mkucukkoc/google-auth-sub001/internal/domain/model"
	pgrepo "github.com/mkucukkoc/google-auth-sub001/internal/repo/postgres"
)

// ErrUnresolvable means no internal account could be matched to the billing
// identity; the caller must not guess.
var ErrUnresolvable = errors.New("billing identity unresolvable")

// AnonymousIDPrefix marks provider-generated anonymous app user ids. They
// never map to an internal account.
const AnonymousIDPrefix = "$RCAnonymousID:"

type Directory interface {
	FindIDByEmail(ctx context.Context, email string) (string, bool, error)
	GetProfile(ctx context.Context, userID string) (pgrepo.UserProfile, bool, error)
}

type DeletedAccounts interface {
	FindLatestByEmail(ctx context.Context, email string) (model.DeletedAccount, bool, error)
}

// Event is the billing identity material attached to a provider event or
// subscriber record.
type Event struct {
	AppUserID      string
	InternalUserID string
	Email          string
	Aliases        []string
}

type Resolver struct {
	directory Directory
	deleted   DeletedAccounts
	log       *zap.Logger
}

func NewResolver(directory Directory, deleted DeletedAccounts, log *zap.Logger) *Resolver {
	return &Resolver{directory: directory, deleted: deleted, log: log}
}

// Resolve maps a billing identity to an internal user id. Priority: explicit
// internal id attribute, then verified email attribute, then an email-shaped
// app user id, then the app user id itself checked against the directory.
func (r *Resolver) Resolve(ctx context.Context, ev Event) (string, error) {
	if uid := strings.TrimSpace(ev.InternalUserID); uid != "" {
		return uid, nil
	}

	email := strings.TrimSpace(ev.Email)
	if email == "" && isEmailShaped(ev.AppUserID) && !IsAnonymous(ev.AppUserID) {
		email = strings.TrimSpace(ev.AppUserID)
	}
	if email == "" {
		for _, alias := range ev.Aliases {
			if isEmailShaped(alias) && !IsAnonymous(alias) {
				email = strings.TrimSpace(alias)
				break
			}
		}
	}
	if email != "" {
		id, found, err := r.directory.FindIDByEmail(ctx, strings.ToLower(email))
		if err != nil {
			return "", fmt.Errorf("resolve by email: %w", err)
		}
		if found {
			return id, nil
		}
	}

	if id := strings.TrimSpace(ev.AppUserID); id != "" && !IsAnonymous(id) && !isEmailShaped(id) {
		_, found, err := r.directory.GetProfile(ctx, id)
		if err != nil {
			return "", fmt.Errorf("resolve by app user id: %w", err)
		}
		if found {
			return id, nil
		}
	}

	r.log.Warn("billing identity not resolved",
		zap.String("app_user_id", ev.AppUserID),
		zap.Bool("had_email", email != ""))
	return "", ErrUnresolvable
}

// PriorBillingID finds the app user id a restore should fetch: the explicit
// one when the caller supplied it, otherwise the one recorded for a deleted
// account with the same email.
func (r *Resolver) PriorBillingID(ctx context.Context, userID, explicit string) (string, bool, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit, true, nil
	}
	profile, found, err := r.directory.GetProfile(ctx, userID)
	if err != nil {
		return "", false, fmt.Errorf("load profile: %w", err)
	}
	if !found || profile.Email == "" {
		return "", false, nil
	}
	acc, found, err := r.deleted.FindLatestByEmail(ctx, strings.ToLower(profile.Email))
	if err != nil {
		return "", false, fmt.Errorf("lookup deleted account: %w", err)
	}
	if !found || acc.PriorAppUserID == "" {
		return "", false, nil
	}
	return acc.PriorAppUserID, true, nil
}

func IsAnonymous(appUserID string) bool {
	return strings.HasPrefix(appUserID, AnonymousIDPrefix)
}

func isEmailShaped(s string) bool {
	s = strings.TrimSpace(s)
	at := strings.Index(s, "@")
	if at <= 0 || at != strings.LastIndex(s, "@") {
		return false
	}
	domain := s[at+1:]
	return strings.Contains(domain, ".") && !strings.ContainsAny(s, " \t")
}
