package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"serotonyl.ru/community-leaderboard/internal/common"
	"serotonyl.ru/community-leaderboard/internal/metrics"
)

// defaultMaxPages ограничивает обход курсоров, чтобы зацикленный курсор не повесил синхронизацию.
const defaultMaxPages = 500

// Options: параметры клиента.
type Options struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	RPS      float64
	Burst    int
	PageSize int
	MaxPages int
}

// Client ходит в API платформы. Все запросы проходят через общий
// token bucket, чтобы не упираться в лимиты платформы.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	pageSize int
	maxPages int
}

// New создаёт клиент платформы.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.RPS <= 0 {
		opts.RPS = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaultMaxPages
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		apiKey:   opts.APIKey,
		http:     &http.Client{Timeout: opts.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
		pageSize: opts.PageSize,
		maxPages: opts.MaxPages,
	}
}

// ListForumPosts возвращает все посты форума, обходя страницы курсором.
func (c *Client) ListForumPosts(ctx context.Context, channelID string) ([]ForumPost, error) {
	raw, err := fetchAll[rawForumPost](ctx, c, "list_forum_posts", "/forums/"+url.PathEscape(channelID)+"/posts")
	if err != nil {
		return nil, err
	}
	out := make([]ForumPost, 0, len(raw))
	for _, p := range raw {
		if p.ID == "" || p.User.ID == "" {
			continue
		}
		out = append(out, p.normalize(channelID))
	}
	return out, nil
}

// ListChatMessages возвращает все сообщения канала чата.
func (c *Client) ListChatMessages(ctx context.Context, channelID string) ([]ChatMessage, error) {
	raw, err := fetchAll[rawChatMessage](ctx, c, "list_chat_messages", "/chat_channels/"+url.PathEscape(channelID)+"/messages")
	if err != nil {
		return nil, err
	}
	out := make([]ChatMessage, 0, len(raw))
	for _, m := range raw {
		if m.ID == "" || m.User.ID == "" {
			continue
		}
		out = append(out, m.normalize(channelID))
	}
	return out, nil
}

// GetBalance возвращает баланс счёта в центах.
func (c *Client) GetBalance(ctx context.Context, accountID string) (Balance, error) {
	var raw rawBalance
	req, err := c.newRequest(ctx, http.MethodGet, "/ledger_accounts/"+url.PathEscape(accountID), nil, nil)
	if err != nil {
		return Balance{}, err
	}
	if err := c.do(req, "get_balance", &raw); err != nil {
		return Balance{}, err
	}
	return Balance{
		BalanceCents:   common.DecimalToCents(raw.Balance),
		AvailableCents: common.DecimalToCents(raw.AvailableBalance),
		Currency:       strings.ToLower(raw.Currency),
	}, nil
}

// Transfer переводит средства и возвращает ID перевода.
// Повтор с тем же IdempotencyKey не создаёт второй перевод.
// Любая ошибка оборачивается в *TransferError.
func (c *Client) Transfer(ctx context.Context, tr TransferRequest) (string, error) {
	if tr.AmountCents <= 0 {
		return "", &TransferError{DestinationID: tr.DestinationID, Cause: errors.New("сумма перевода должна быть положительной")}
	}

	body := rawTransferRequest{
		Amount:         common.CentsToDecimal(tr.AmountCents),
		Currency:       tr.Currency,
		OriginID:       tr.OriginID,
		DestinationID:  tr.DestinationID,
		IdempotenceKey: tr.IdempotencyKey,
		Notes:          tr.Notes,
	}
	header := http.Header{}
	if tr.IdempotencyKey != "" {
		header.Set("Idempotency-Key", tr.IdempotencyKey)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/transfers", body, header)
	if err != nil {
		return "", &TransferError{DestinationID: tr.DestinationID, Cause: err}
	}

	var out rawTransfer
	if err := c.do(req, "transfer", &out); err != nil {
		return "", &TransferError{DestinationID: tr.DestinationID, Cause: err}
	}
	if out.ID == "" {
		return "", &TransferError{DestinationID: tr.DestinationID, Cause: errors.New("платформа не вернула ID перевода")}
	}
	return out.ID, nil
}

// fetchAll обходит все страницы списка. Результат полностью материализован,
// повторный вызов начинает обход заново. Неполный список не возвращается:
// при достижении лимита страниц вызов завершается ErrPageLimit.
func fetchAll[T any](ctx context.Context, c *Client, op, path string) ([]T, error) {
	var (
		out    []T
		cursor string
	)
	for range c.maxPages {
		q := url.Values{}
		q.Set("first", strconv.Itoa(c.pageSize))
		if cursor != "" {
			q.Set("after", cursor)
		}

		req, err := c.newRequest(ctx, http.MethodGet, path+"?"+q.Encode(), nil, nil)
		if err != nil {
			return nil, err
		}

		var resp rawPage[T]
		if err := c.do(req, op, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Data...)

		if !resp.PageInfo.HasNextPage || resp.PageInfo.EndCursor == "" || resp.PageInfo.EndCursor == cursor {
			return out, nil
		}
		cursor = resp.PageInfo.EndCursor
	}

	log.WithFields(log.Fields{
		"operation": op,
		"path":      path,
		"pages":     c.maxPages,
		"items":     len(out),
	}).Warn("Достигнут лимит страниц, список не загружен")
	return nil, fmt.Errorf("%s %s: %d страниц: %w", op, path, c.maxPages, ErrPageLimit)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any, header http.Header) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("ошибка кодирования запроса: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, op string, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		metrics.PlatformRequests.WithLabelValues(op, "cancelled").Inc()
		return fmt.Errorf("%s: ожидание лимита прервано: %w", op, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.PlatformRequests.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("%s: %w: %w", op, common.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.PlatformRequests.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()
		apiErr := &APIError{Operation: op, StatusCode: resp.StatusCode}
		var raw rawError
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); readErr == nil && json.Unmarshal(data, &raw) == nil {
			apiErr.Type = raw.Error.Type
			apiErr.Message = raw.Error.Message
		}
		return apiErr
	}

	metrics.PlatformRequests.WithLabelValues(op, "ok").Inc()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w: ошибка разбора ответа: %w", op, common.ErrUpstream, err)
	}
	return nil
}
