// Package fakeplatform подменяет API платформы в тестах: каналы
// с заранее заданными постами, счёт с балансом и журнал переводов.
package fakeplatform

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"serotonyl.ru/community-leaderboard/internal/common"
	"serotonyl.ru/community-leaderboard/internal/platform"
)

// Platform реализует источник активности и счёт.
type Platform struct {
	mu sync.Mutex

	forums        map[string][]platform.ForumPost
	chats         map[string][]platform.ChatMessage
	channelErrors map[string]error

	balances     map[string]platform.Balance
	failFor      map[string]error // получатель → ошибка перевода
	transfers    []platform.TransferRequest
	byKey        map[string]string // ключ идемпотентности → ID перевода
	fetchCounter int
}

// New создаёт пустую платформу.
func New() *Platform {
	return &Platform{
		forums:        make(map[string][]platform.ForumPost),
		chats:         make(map[string][]platform.ChatMessage),
		channelErrors: make(map[string]error),
		balances:      make(map[string]platform.Balance),
		failFor:       make(map[string]error),
		byKey:         make(map[string]string),
	}
}

// SetForum задаёт посты форума.
func (p *Platform) SetForum(channelID string, posts ...platform.ForumPost) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range posts {
		posts[i].ChannelID = channelID
	}
	p.forums[channelID] = posts
}

// SetChat задаёт сообщения чата.
func (p *Platform) SetChat(channelID string, msgs ...platform.ChatMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range msgs {
		msgs[i].ChannelID = channelID
	}
	p.chats[channelID] = msgs
}

// FailChannel заставляет загрузку канала падать.
func (p *Platform) FailChannel(channelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channelErrors[channelID] = &platform.APIError{Operation: "list", StatusCode: 503}
}

// Fetches: сколько раз загружались каналы.
func (p *Platform) Fetches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetchCounter
}

func (p *Platform) ListForumPosts(_ context.Context, channelID string) ([]platform.ForumPost, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchCounter++
	if err := p.channelErrors[channelID]; err != nil {
		return nil, err
	}
	return slices.Clone(p.forums[channelID]), nil
}

func (p *Platform) ListChatMessages(_ context.Context, channelID string) ([]platform.ChatMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchCounter++
	if err := p.channelErrors[channelID]; err != nil {
		return nil, err
	}
	return slices.Clone(p.chats[channelID]), nil
}

// SetBalance задаёт доступный баланс счёта в центах.
func (p *Platform) SetBalance(accountID string, availableCents int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances[accountID] = platform.Balance{BalanceCents: availableCents, AvailableCents: availableCents, Currency: "usd"}
}

// FailTransfersTo заставляет переводы получателю падать.
func (p *Platform) FailTransfersTo(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failFor[userID] = errors.New("получатель не может принимать платежи")
}

// Transfers возвращает журнал успешных переводов.
func (p *Platform) Transfers() []platform.TransferRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.transfers)
}

func (p *Platform) GetBalance(_ context.Context, accountID string) (platform.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.balances[accountID]
	if !ok {
		return platform.Balance{}, &platform.APIError{Operation: "get_balance", StatusCode: 404, Message: "account not found"}
	}
	return b, nil
}

func (p *Platform) Transfer(_ context.Context, tr platform.TransferRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	// повтор с тем же ключом не двигает деньги, как и на платформе
	if id, ok := p.byKey[tr.IdempotencyKey]; ok && tr.IdempotencyKey != "" {
		return id, nil
	}
	if err := p.failFor[tr.DestinationID]; err != nil {
		return "", &platform.TransferError{DestinationID: tr.DestinationID, Cause: err}
	}
	b := p.balances[tr.OriginID]
	if b.AvailableCents < tr.AmountCents {
		return "", &platform.TransferError{DestinationID: tr.DestinationID, Cause: common.ErrInsufficientBalance}
	}
	b.AvailableCents -= tr.AmountCents
	b.BalanceCents -= tr.AmountCents
	p.balances[tr.OriginID] = b
	p.transfers = append(p.transfers, tr)
	id := fmt.Sprintf("tr_%d", len(p.transfers))
	if tr.IdempotencyKey != "" {
		p.byKey[tr.IdempotencyKey] = id
	}
	return id, nil
}
