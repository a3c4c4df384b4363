package paygate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ticket-marketplace/utils"
)

type ClientConfig struct {
	BaseURL   string `json:"baseUrl"`
	PartnerID string `json:"partnerId"`
	ClientID  string `json:"clientId"`
	ClientKey string `json:"clientKey"`
	HMACKey   string `json:"hmacKey"`

	// Timeout bounds every gateway call; past it the call is treated as
	// failed and retry is left to the caller.
	Timeout time.Duration
}

type Client struct {
	// baseURL is the base url of the gateway backend.
	baseURL string

	// partnerID identifies the marketplace to the gateway.
	partnerID string

	// clientID / clientKey authenticate against the gateway.
	clientID  string
	clientKey string

	// hmacKey signs every request body.
	hmacKey string

	// accessToken authenticates follow-up calls.
	accessToken string

	// mu guards the access token.
	mu sync.Mutex

	// toggleTokenRefresher notifies the refresher loop on a 401.
	toggleTokenRefresher chan struct{}

	// breaker fails fast when the gateway is down.
	breaker *utils.CircuitBreaker

	// hc is the http client.
	hc *http.Client
}

func newClient(_ context.Context, c *ClientConfig) *Client {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:   c.BaseURL,
		partnerID: c.PartnerID,
		clientID:  c.ClientID,
		clientKey: c.ClientKey,
		hmacKey:   c.HMACKey,

		// make a buffered channel to avoid blocking.
		toggleTokenRefresher: make(chan struct{}, 1),

		breaker: utils.NewCircuitBreaker("paygate"),

		hc: &http.Client{
			Timeout: timeout,
		},
	}
}

// notifyAccessTokenExpired loops for the lifetime of ctx renewing the
// access token, with exponential backoff when the gateway is unreachable.
func (c *Client) notifyAccessTokenExpired(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			return

		case <-ticker.C:

		case <-c.toggleTokenRefresher:
			log.Println("notifyAccessTokenExpired: toggleTokenRefresher => token refreshed")
		}

		backOff := time.Second

	Retry:
		for {
			token, err := c.connect(ctx)
			switch err {
			case nil:
				c.setAccessToken(token)

				break Retry

			default:
				log.Printf("notifyAccessTokenExpired: %v", err)
				select {
				case <-ctx.Done():
					return

				case <-time.After(backOff):
					backOff *= 2
				}
			}
		}
	}
}

func (c *Client) setAccessToken(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
}

func (c *Client) getAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// connect performs authentication with the gateway backend.
func (c *Client) connect(ctx context.Context) (string, error) {
	number, err := randomNumber()
	if err != nil {
		return "", fmt.Errorf("paygate connect: randomNumber: %w", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"partnerId":%q,"clientId":%q,"clientSecret":%q}`,
		number, c.partnerID, c.clientID, c.clientKey)

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AccessToken string `json:"accessToken"`
			TokenType   string `json:"tokenType"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/api/partner/authenticate", body, false, &reply); err != nil {
		return "", fmt.Errorf("paygate connect: %w", err)
	}
	if reply.Status != "OK" {
		return "", fmt.Errorf("paygate connect: status %q: %s", reply.Status, reply.Message)
	}

	return fmt.Sprintf("%s %s", reply.Data.TokenType, reply.Data.AccessToken), nil
}

// createSession asks the gateway for a checkout session bound to a
// booking reference.
func (c *Client) createSession(ctx context.Context, f *SessionForm) (*Session, error) {
	number, err := randomNumber()
	if err != nil {
		return nil, fmt.Errorf("paygate createSession: randomNumber: %w", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"partnerId":%q,"orderId":%q,"reference":%q,"txnAmount":%s,"currency":%q}`,
		number, c.partnerID, f.OrderID, f.Reference, f.Amount, f.Currency)

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			SessionID   string `json:"sessionId"`
			RedirectURL string `json:"redirectUrl"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/api/partner/checkout/create", body, true, &reply); err != nil {
		return nil, fmt.Errorf("paygate createSession: %w", err)
	}
	if reply.Status != "OK" {
		return nil, fmt.Errorf("paygate createSession: status %q: %s", reply.Status, reply.Message)
	}

	return &Session{
		SessionID:   reply.Data.SessionID,
		RedirectURL: reply.Data.RedirectURL,
	}, nil
}

// checkTransaction queries the settlement status of a session.
func (c *Client) checkTransaction(ctx context.Context, sessionID string) (*Transaction, error) {
	number, err := randomNumber()
	if err != nil {
		return nil, fmt.Errorf("paygate checkTransaction: randomNumber: %w", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"sessionId":%q}`, number, sessionID)

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			SessionID string          `json:"sessionId"`
			TxnRef    string          `json:"txnRef"`
			Payer     string          `json:"payerName"`
			Amount    decimal.Decimal `json:"txnAmount"`
			PaidAt    string          `json:"txnDateTime"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/api/partner/checkout/status", body, true, &reply); err != nil {
		return nil, fmt.Errorf("paygate checkTransaction: %w", err)
	}
	if reply.Status != "OK" {
		if reply.Status == "NOT_FOUND" {
			return nil, errors.New("paygate checkTransaction: session not settled")
		}
		return nil, fmt.Errorf("paygate checkTransaction: status %q: %s", reply.Status, reply.Message)
	}

	paidAt, err := time.ParseInLocation("2006-01-02 15:04:05", reply.Data.PaidAt, time.Local)
	if err != nil {
		return nil, fmt.Errorf("paygate checkTransaction: txnDateTime: %w", err)
	}

	return &Transaction{
		SessionID: reply.Data.SessionID,
		TxnRef:    reply.Data.TxnRef,
		Payer:     reply.Data.Payer,
		Amount:    reply.Data.Amount,
		PaidAt:    paidAt,
	}, nil
}

// post signs and sends a request body, decoding the JSON reply. All
// gateway traffic funnels through the circuit breaker.
func (c *Client) post(ctx context.Context, path, body string, authed bool, reply any) error {
	_, err := c.breaker.Execute(ctx, func() (any, error) {
		base, err := url.Parse(c.baseURL)
		if err != nil {
			return nil, fmt.Errorf("base url: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String()+path, bytes.NewReader([]byte(body)))
		if err != nil {
			return nil, fmt.Errorf("http.NewRequest: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("SignedHash", Hmac256([]byte(body), []byte(c.hmacKey)))
		if authed {
			req.Header.Set("Authorization", c.getAccessToken())
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http.Do: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			select {
			case c.toggleTokenRefresher <- struct{}{}:
			default:
			}
			return nil, errors.New("unauthorized")
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
		}

		dec := json.NewDecoder(resp.Body)
		if err := dec.Decode(reply); err != nil {
			return nil, fmt.Errorf("json.Decode: %w", err)
		}
		return nil, nil
	})
	return err
}
