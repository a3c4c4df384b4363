// Package paygate is the client for the external payment gateway. It
// exposes checkout session creation and settlement checks over the
// gateway's signed HTTP API, and surfaces the gateway's asynchronous
// payment notifications (delivered over PubNub) on a channel.
package paygate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	pubnub "github.com/pubnub/go/v7"
	"github.com/shopspring/decimal"

	"ticket-marketplace/config"
)

type PayGate struct {
	partnerID string

	pnUUID      string
	pnSubKey    string
	pnSubSecret string
	pnChannels  []string
	pnCipherKey string

	sub *subscription

	client *Client
}

// SessionForm is the input for creating a checkout session.
type SessionForm struct {
	OrderID   string
	Reference string
	Amount    decimal.Decimal
	Currency  string
}

// Session is the opaque handle the gateway hands back for a checkout.
type Session struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

// Transaction is a settled payment as reported by the gateway.
type Transaction struct {
	SessionID string          `json:"session_id"`
	TxnRef    string          `json:"txn_ref"`
	Payer     string          `json:"payer"`
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    time.Time       `json:"paid_at"`
}

// New connects to the gateway, starts the token refresher and the
// notification subscription.
func New(ctx context.Context, cfg *config.PayGateConfig, timeout time.Duration) (*PayGate, error) {
	client := newClient(ctx, &ClientConfig{
		BaseURL:   cfg.BaseURL,
		PartnerID: cfg.PartnerID,
		ClientID:  cfg.ClientID,
		ClientKey: cfg.ClientKey,
		HMACKey:   cfg.HMACKey,
		Timeout:   timeout,
	})

	token, err := client.connect(ctx)
	if err != nil {
		return nil, err
	}
	client.setAccessToken(token)

	go client.notifyAccessTokenExpired(ctx)

	p := &PayGate{
		partnerID: cfg.PartnerID,

		pnUUID:      cfg.PNUUID,
		pnSubKey:    cfg.PNSubKey,
		pnSubSecret: cfg.PNSubSecret,
		pnChannels:  []string{cfg.PNChannel},
		pnCipherKey: cfg.PNCipherKey,

		client: client,
	}

	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(p.pnUUID))
	pnCfg.SubscribeKey = p.pnSubKey
	pnCfg.CipherKey = p.pnCipherKey
	pnCfg.SecretKey = p.pnSubSecret

	sub, err := p.newSubscription(ctx, pnCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to gateway notifications: %w", err)
	}
	sub.pn.AddListener(sub.lis)
	sub.pn.Subscribe().Channels(p.pnChannels).Execute()
	p.sub = sub

	return p, nil
}

// CreateSession asks the gateway for a checkout session for a booking.
func (p *PayGate) CreateSession(ctx context.Context, f *SessionForm) (*Session, error) {
	if f.Currency == "" {
		f.Currency = "USD"
	}
	return p.client.createSession(ctx, f)
}

// CheckTransaction queries the settlement status of a session.
func (p *PayGate) CheckTransaction(ctx context.Context, sessionID string) (*Transaction, error) {
	return p.client.checkTransaction(ctx, sessionID)
}

// SetNotificationChannel sets the channel on which settled transactions
// from the gateway's async notifications are delivered.
func (p *PayGate) SetNotificationChannel(ch chan *Transaction) {
	p.sub.ch = ch
}

type subscription struct {
	pn  *pubnub.PubNub
	lis *pubnub.Listener
	ch  chan *Transaction
}

func (p *PayGate) newSubscription(ctx context.Context, pnCfg *pubnub.Config) (*subscription, error) {
	sub := &subscription{
		pn:  pubnub.NewPubNub(pnCfg),
		lis: pubnub.NewListener(),
	}

	go sub.processSubscription(ctx)

	return sub, nil
}

// notificationPayload is the wire shape of the gateway's async
// settlement notification.
type notificationPayload struct {
	SessionID string          `json:"sessionId"`
	TxnRef    string          `json:"txnRef"`
	Payer     string          `json:"payerName"`
	Amount    decimal.Decimal `json:"txnAmount"`
	PaidAt    string          `json:"txnDateTime"`
}

func (s *subscription) processSubscription(ctx context.Context) {
	listener := s.lis
	for {
		select {
		case status := <-listener.Status:
			switch status.Category {
			case pubnub.PNConnectedCategory:
				log.Println("connected to gateway notifications")

			case pubnub.PNReconnectedCategory:
				log.Println("reconnected to gateway notifications")

			case pubnub.PNDisconnectedCategory:
				log.Println("disconnected from gateway notifications")

			default:
				log.Printf("gateway notification status: %v", status.Category)
			}

		case message := <-listener.Message:
			raw, ok := message.Message.(string)
			if !ok {
				log.Printf("gateway notification: unexpected message type %T", message.Message)
				continue
			}

			var p notificationPayload
			dec := json.NewDecoder(strings.NewReader(raw))
			if err := dec.Decode(&p); err != nil {
				log.Println(err)
				continue
			}

			tran, err := p.toDomain()
			if err != nil {
				log.Println(err)
				continue
			}
			if s.ch != nil {
				s.ch <- tran
			}

		case <-ctx.Done():
			log.Println("closing gateway notification subscription")
			return
		}
	}
}

func (p *notificationPayload) toDomain() (*Transaction, error) {
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", p.PaidAt, time.Local)
	if err != nil {
		return nil, err
	}

	return &Transaction{
		SessionID: p.SessionID,
		TxnRef:    p.TxnRef,
		Payer:     p.Payer,
		Amount:    p.Amount,
		PaidAt:    ts,
	}, nil
}
