package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/markdave123-py/Rentora/internal/core"
	"github.com/markdave123-py/Rentora/internal/models"
)

// whatsAppPrefix marks chat identities whose recipient part is a phone number.
const whatsAppPrefix = "wa"

// AccountService binds chat identities to durable accounts. Phones are kept in
// international form for countryCode.
type AccountService struct {
	accounts    core.AccountDirectory
	newID       func() string
	countryCode string
	log         *slog.Logger
}

func NewAccountService(accounts core.AccountDirectory, newID func() string, countryCode string, logger *slog.Logger) *AccountService {
	if newID == nil {
		newID = uuid.NewString
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{accounts: accounts, newID: newID, countryCode: countryCode, log: logger.With("component", "accounts")}
}

// chatPhone returns the phone number a chat identity is keyed by, if any.
func (s *AccountService) chatPhone(chatIdentity string) string {
	prefix, recipient, ok := strings.Cut(chatIdentity, ":")
	if !ok || prefix != whatsAppPrefix {
		return ""
	}
	return models.NormalizePhone(recipient, s.countryCode)
}

// Ensure returns the account bound to chatIdentity, creating an anonymous one
// the first time the identity is seen.
func (s *AccountService) Ensure(ctx context.Context, chatIdentity, name string) (*models.Account, error) {
	if chatIdentity == "" {
		return nil, errors.New("chat identity is empty")
	}
	a, err := s.accounts.FindAccountByChat(ctx, chatIdentity)
	if err != nil {
		return nil, fmt.Errorf("find account by chat: %w", err)
	}
	if a != nil {
		return a, nil
	}
	a = &models.Account{ID: s.newID(), Name: name, ChatIdentity: chatIdentity, Phone: s.chatPhone(chatIdentity)}
	if err := s.accounts.CreateAccount(ctx, a); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	s.log.Info("account created", "account_id", a.ID, "chat_identity", chatIdentity)
	return a, nil
}

// LinkByID binds chatIdentity to the account with accountID. It returns
// (nil, nil) when no such account exists.
func (s *AccountService) LinkByID(ctx context.Context, accountID, chatIdentity string) (*models.Account, error) {
	target, err := s.accounts.GetAccount(ctx, strings.TrimSpace(accountID))
	if err != nil || target == nil {
		return nil, err
	}
	return s.link(ctx, target, chatIdentity)
}

// LinkByEmail binds chatIdentity to the account registered with email. It
// returns (nil, nil) when no such account exists.
func (s *AccountService) LinkByEmail(ctx context.Context, email, chatIdentity string) (*models.Account, error) {
	target, err := s.accounts.FindAccountByEmail(ctx, email)
	if err != nil || target == nil {
		return nil, err
	}
	return s.link(ctx, target, chatIdentity)
}

// link moves chatIdentity onto target. An anonymous account previously bound to
// the identity is deleted; a registered one only loses the binding.
func (s *AccountService) link(ctx context.Context, target *models.Account, chatIdentity string) (*models.Account, error) {
	if target.ChatIdentity == chatIdentity {
		return target, nil
	}
	stale, err := s.accounts.FindAccountByChat(ctx, chatIdentity)
	if err != nil {
		return nil, fmt.Errorf("find account by chat: %w", err)
	}
	if stale != nil && stale.ID != target.ID {
		if err := s.release(ctx, stale); err != nil {
			return nil, err
		}
	}
	if target.Role == models.RoleUnset && stale != nil {
		target.Role = stale.Role
	}
	target.ChatIdentity = chatIdentity
	if err := s.accounts.UpdateAccount(ctx, target); err != nil {
		return nil, fmt.Errorf("link account: %w", err)
	}
	s.log.Info("chat identity linked", "account_id", target.ID, "chat_identity", chatIdentity)
	return target, nil
}

func (s *AccountService) release(ctx context.Context, a *models.Account) error {
	if a.Email == "" {
		err := s.accounts.DeleteAccount(ctx, a.ID)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("delete stale account: %w", err)
		}
		s.log.Info("stale account deleted", "account_id", a.ID)
		return nil
	}
	a.ChatIdentity = ""
	if err := s.accounts.UpdateAccount(ctx, a); err != nil {
		return fmt.Errorf("unlink account: %w", err)
	}
	return nil
}

// SetRole persists role on the account.
func (s *AccountService) SetRole(ctx context.Context, accountID string, role models.Role) error {
	a, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if a == nil {
		return core.ErrNotFound
	}
	if a.Role == role {
		return nil
	}
	a.Role = role
	return s.accounts.UpdateAccount(ctx, a)
}

func (s *AccountService) Get(ctx context.Context, id string) (*models.Account, error) {
	if id == "" {
		return nil, nil
	}
	return s.accounts.GetAccount(ctx, id)
}

// ResolveOwnerChat returns the chat identity of the listing owner. When the
// owner account has no chat identity but another account with the same phone
// has talked to the bot, that identity is moved onto the owner. An empty
// identity means the owner cannot be reached by chat; owner may still be set.
func (s *AccountService) ResolveOwnerChat(ctx context.Context, l *models.Listing) (string, *models.Account, error) {
	owner, err := s.accounts.GetAccount(ctx, l.OwnerID)
	if err != nil {
		return "", nil, fmt.Errorf("get owner: %w", err)
	}
	if owner != nil && owner.ChatIdentity != "" {
		return owner.ChatIdentity, owner, nil
	}

	phone := l.ContactPhone
	if owner != nil && owner.Phone != "" {
		phone = owner.Phone
	}
	if phone == "" {
		return "", owner, nil
	}
	other, err := s.findByPhone(ctx, phone)
	if err != nil {
		return "", owner, fmt.Errorf("find owner by phone: %w", err)
	}
	if other == nil {
		return "", owner, nil
	}
	chat := other.ChatIdentity
	if owner == nil {
		return chat, other, nil
	}

	// Best effort: a failed move still lets this request reach the owner.
	if other.Email == "" {
		other.ChatIdentity = ""
		if err := s.accounts.UpdateAccount(ctx, other); err != nil {
			s.log.Warn("owner chat cache failed", "account_id", owner.ID, "err", err)
			return chat, owner, nil
		}
		owner.ChatIdentity = chat
		if err := s.accounts.UpdateAccount(ctx, owner); err != nil {
			s.log.Warn("owner chat cache failed", "account_id", owner.ID, "err", err)
			owner.ChatIdentity = ""
			return chat, owner, nil
		}
		s.log.Info("owner chat identity cached", "account_id", owner.ID, "chat_identity", chat)
	}
	return chat, owner, nil
}

// findByPhone looks phone up in international form first, then as written,
// since accounts registered elsewhere may store either.
func (s *AccountService) findByPhone(ctx context.Context, phone string) (*models.Account, error) {
	candidates := []string{models.NormalizePhone(phone, s.countryCode)}
	if raw := strings.TrimSpace(phone); raw != candidates[0] {
		candidates = append(candidates, raw)
	}
	for _, p := range candidates {
		a, err := s.accounts.FindAccountByPhone(ctx, p)
		if err != nil || a != nil {
			return a, err
		}
	}
	return nil, nil
}

func (s *AccountService) FindByChat(ctx context.Context, chatIdentity string) (*models.Account, error) {
	return s.accounts.FindAccountByChat(ctx, chatIdentity)
}
