package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/murphlabs/murph/backend/internal/model/review"
	"github.com/murphlabs/murph/backend/pkg/apperr"
)

// Credentials is a login form.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is a sign-up form. Role is "student" or "teacher".
type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Name     string `json:"name"`
	Bio      string `json:"bio,omitempty"`
}

// AuthResult identifies the signed-in user. AccessToken may be empty after
// registration when the backend requires email confirmation.
type AuthResult struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, creds Credentials) (AuthResult, error) {
	const op = "backend.Login"
	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Email == "" || creds.Password == "" {
		return AuthResult{}, apperr.New(apperr.ValidationFailed, op, "email and password are required")
	}

	var resp AuthResult
	if err := c.call(ctx, op, http.MethodPost, "/auth/login", nil, creds, &resp, classifyDefault); err != nil {
		return AuthResult{}, err
	}
	return resp, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, reg Registration) (AuthResult, error) {
	const op = "backend.Register"
	reg.Email = strings.TrimSpace(reg.Email)
	reg.Name = strings.TrimSpace(reg.Name)
	switch {
	case reg.Email == "" || reg.Name == "":
		return AuthResult{}, apperr.New(apperr.ValidationFailed, op, "email and name are required")
	case len(reg.Password) < 6:
		return AuthResult{}, apperr.New(apperr.ValidationFailed, op, "password must be at least 6 characters")
	case reg.Role != "student" && reg.Role != "teacher":
		return AuthResult{}, apperr.New(apperr.ValidationFailed, op, "role must be student or teacher")
	}

	var resp AuthResult
	if err := c.call(ctx, op, http.MethodPost, "/auth/register", nil, reg, &resp, classifyDefault); err != nil {
		return AuthResult{}, err
	}
	return resp, nil
}

type reviewRequest struct {
	SessionID  string `json:"session_id"`
	StudentID  string `json:"student_id"`
	Rating     int    `json:"rating"`
	ReviewText string `json:"review_text"`
}

type reviewResponse struct {
	ReviewID           string          `json:"review_id"`
	CredibilityScore   float64         `json:"credibility_score"`
	BonusPercentage    int             `json:"bonus_percentage"`
	AppliedBonusAmount decimal.Decimal `json:"applied_bonus_amount"`
}

// SubmitReview sends a review for an ended session.
func (c *Client) SubmitReview(ctx context.Context, req review.Request) (review.BackendResult, error) {
	const op = "backend.SubmitReview"

	body := reviewRequest{
		SessionID:  req.SessionID,
		StudentID:  req.UserID,
		Rating:     req.Rating,
		ReviewText: req.Text,
	}

	var resp reviewResponse
	if err := c.call(ctx, op, http.MethodPost, "/reviews/submit", nil, body, &resp, classifyReview); err != nil {
		return review.BackendResult{}, err
	}

	return review.BackendResult{
		ReviewID:           resp.ReviewID,
		QualityScore:       resp.CredibilityScore,
		BonusPercentage:    resp.BonusPercentage,
		AppliedBonusAmount: resp.AppliedBonusAmount,
	}, nil
}

// WalletBalance is the user's spendable credit.
type WalletBalance struct {
	UserID        string          `json:"userId"`
	WalletAddress string          `json:"walletAddress,omitempty"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
}

type walletPayload struct {
	UserID        string          `json:"user_id"`
	WalletAddress string          `json:"wallet_address"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
}

func (p walletPayload) toBalance(userID string) WalletBalance {
	out := WalletBalance{
		UserID:        p.UserID,
		WalletAddress: p.WalletAddress,
		Balance:       p.Balance,
		Currency:      p.Currency,
	}
	if out.UserID == "" {
		out.UserID = userID
	}
	if out.Currency == "" {
		out.Currency = "USD"
	}
	return out
}

// WalletBalance reads the connected wallet's balance.
func (c *Client) WalletBalance(ctx context.Context, userID string) (WalletBalance, error) {
	const op = "backend.WalletBalance"
	if userID == "" {
		return WalletBalance{}, apperr.New(apperr.InvalidArgument, op, "user id is required")
	}

	var resp walletPayload
	query := url.Values{"user_id": []string{userID}}
	if err := c.call(ctx, op, http.MethodGet, "/wallet/balance", query, nil, &resp, classifyDefault); err != nil {
		return WalletBalance{}, err
	}
	return resp.toBalance(userID), nil
}

// WalletConnect provisions or reattaches the user's wallet.
func (c *Client) WalletConnect(ctx context.Context, userID string) (WalletBalance, error) {
	const op = "backend.WalletConnect"
	if userID == "" {
		return WalletBalance{}, apperr.New(apperr.InvalidArgument, op, "user id is required")
	}

	var resp walletPayload
	body := map[string]string{"user_id": userID}
	if err := c.call(ctx, op, http.MethodPost, "/wallet/connect", nil, body, &resp, classifyDefault); err != nil {
		return WalletBalance{}, err
	}
	return resp.toBalance(userID), nil
}
