package services

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lvanfai123/moving-service-sub001/config"
	"github.com/lvanfai123/moving-service-sub001/models"
)

var errWhishCredentials = errors.New("missing Whish credentials: set WHISH_CHANNEL, WHISH_SECRET and WHISH_WEBSITE_URL")

// WhishGateway handles interactions with the Whish collect API
type WhishGateway struct {
	baseURL     string
	channel     string
	secret      string
	websiteURL  string
	callbackURL string
	currency    string
	debug       bool
	client      *http.Client
	logger      *zap.Logger
}

// NewWhishGateway creates a gateway from the loaded configuration
func NewWhishGateway(cfg *config.Config, logger *zap.Logger) *WhishGateway {
	g := &WhishGateway{
		baseURL:     cfg.WhishBaseURL,
		channel:     cfg.WhishChannel,
		secret:      cfg.WhishSecret,
		websiteURL:  cfg.WhishWebsiteURL,
		callbackURL: cfg.CallbackBaseURL,
		currency:    cfg.Currency,
		debug:       cfg.WhishDebug,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      logger.Named("whish"),
	}

	if !g.Configured() {
		g.logger.Warn("whish credentials not fully configured",
			zap.Bool("channel", g.channel != ""),
			zap.Bool("secret", g.secret != ""),
			zap.Bool("websiteUrl", g.websiteURL != ""))
	} else {
		g.logger.Info("whish gateway configured",
			zap.String("baseUrl", g.baseURL),
			zap.String("channel", g.channel),
			zap.String("websiteUrl", g.websiteURL))
	}
	return g
}

// Configured reports whether all credentials are present
func (g *WhishGateway) Configured() bool {
	return g.channel != "" && g.secret != "" && g.websiteURL != ""
}

func (g *WhishGateway) headers() map[string]string {
	return map[string]string{
		"Content-Type": "application/json",
		"channel":      g.channel,
		"secret":       g.secret,
		"websiteurl":   g.websiteURL,
	}
}

// do performs a request against the Whish API and checks the status envelope
func (g *WhishGateway) do(ctx context.Context, method, endpoint string, payload interface{}) (*models.WhishResponse, error) {
	if !g.Configured() {
		return nil, errWhishCredentials
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	url := g.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range g.headers() {
		req.Header.Set(key, value)
	}

	if g.debug {
		g.logger.Debug("whish request", zap.String("method", method), zap.String("url", url))
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if g.debug {
		g.logger.Debug("whish response", zap.Int("status", resp.StatusCode), zap.ByteString("body", respBody))
	}

	var whishResp models.WhishResponse
	if err := json.Unmarshal(respBody, &whishResp); err != nil {
		return nil, fmt.Errorf("failed to parse response (http %d): %w", resp.StatusCode, err)
	}

	if !whishResp.Status {
		code := "unknown"
		if whishResp.Code != nil {
			code = fmt.Sprintf("%v", whishResp.Code)
		}
		msg := ""
		if dialog, ok := whishResp.Dialog.(map[string]interface{}); ok {
			msg, _ = dialog["message"].(string)
		}
		g.logger.Warn("whish api error", zap.String("code", code), zap.String("message", msg))
		if msg != "" {
			return &whishResp, fmt.Errorf("whish API error: %s - %s", code, msg)
		}
		return &whishResp, fmt.Errorf("whish API error: %s", code)
	}

	return &whishResp, nil
}

// CreateIntent posts a collect request. The numeric externalId is the intent
// id and the collect URL is handed to the client as its secret.
func (g *WhishGateway) CreateIntent(ctx context.Context, req IntentRequest) (*models.GatewayIntent, error) {
	externalID := newExternalID()
	amount := centsToAmount(req.Amount)

	payload := models.WhishRequest{
		Amount:             &amount,
		Currency:           g.currency,
		Invoice:            fmt.Sprintf("Moving order %s (%s)", req.OrderID, req.Method),
		ExternalID:         &externalID,
		SuccessCallbackURL: fmt.Sprintf("%s/api/payments/callback/success?paymentId=%s", g.callbackURL, req.PaymentID),
		FailureCallbackURL: fmt.Sprintf("%s/api/payments/callback/failure?paymentId=%s", g.callbackURL, req.PaymentID),
	}

	resp, err := g.do(ctx, http.MethodPost, "payment/whish", payload)
	if err != nil {
		return nil, err
	}

	collectURL, ok := resp.Data["collectUrl"].(string)
	if !ok {
		return nil, fmt.Errorf("failed to parse collect URL from response")
	}
	return &models.GatewayIntent{
		IntentID:     strconv.FormatInt(externalID, 10),
		ClientSecret: collectURL,
	}, nil
}

// GetIntentStatus maps the Whish collect status onto the intent status
func (g *WhishGateway) GetIntentStatus(ctx context.Context, intentID string) (models.IntentStatus, error) {
	externalID, err := strconv.ParseInt(intentID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid whish intent id %q: %w", intentID, err)
	}

	resp, err := g.do(ctx, http.MethodPost, "payment/collect/status", models.WhishRequest{
		Currency:   g.currency,
		ExternalID: &externalID,
	})
	if err != nil {
		return "", err
	}

	status, _ := resp.Data["collectStatus"].(string)
	switch status {
	case models.WhishCollectSuccess:
		return models.IntentSettled, nil
	case models.WhishCollectFailed:
		return models.IntentFailed, nil
	default:
		return models.IntentPending, nil
	}
}

// IssueRefund reverses part or all of a settled collect
func (g *WhishGateway) IssueRefund(ctx context.Context, intentID string, amount int64) (string, error) {
	externalID, err := strconv.ParseInt(intentID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid whish intent id %q: %w", intentID, err)
	}
	value := centsToAmount(amount)

	resp, err := g.do(ctx, http.MethodPost, "payment/whish/refund", models.WhishRequest{
		Amount:     &value,
		Currency:   g.currency,
		ExternalID: &externalID,
	})
	if err != nil {
		return "", err
	}

	switch id := resp.Data["refundId"].(type) {
	case string:
		return id, nil
	case float64:
		return strconv.FormatInt(int64(id), 10), nil
	}
	return "", fmt.Errorf("failed to parse refund id from response")
}

// Whish amounts are decimal currency units
func centsToAmount(cents int64) float64 {
	return decimal.New(cents, -2).InexactFloat64()
}

// newExternalID derives a positive int64 from a random uuid
func newExternalID() int64 {
	id := uuid.New()
	return int64(binary.BigEndian.Uint64(id[:8]) >> 1)
}
