package models

import (
	"time"
)

// Account is a named credential bundle for one provider. The bundle is stored
// encrypted and only decrypted when a publisher needs it.
type Account struct {
	ID                   string     `db:"id" json:"id"`
	Provider             Provider   `db:"provider" json:"provider"`
	Name                 string     `db:"name" json:"name"`
	EncryptedCredentials string     `db:"credentials" json:"-"`
	IsDefault            bool       `db:"is_default" json:"is_default"`
	TokenExpiresAt       *time.Time `db:"token_expires_at" json:"token_expires_at,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

type AccountSummary struct {
	ID        string   `json:"id"`
	Provider  Provider `json:"provider"`
	Name      string   `json:"name"`
	IsDefault bool     `json:"is_default"`
}

func (a *Account) Summary() AccountSummary {
	return AccountSummary{
		ID:        a.ID,
		Provider:  a.Provider,
		Name:      a.Name,
		IsDefault: a.IsDefault,
	}
}

// XCredentials are OAuth 1.0a user-context keys.
type XCredentials struct {
	APIKey       string `json:"api_key"`
	APISecret    string `json:"api_secret"`
	AccessToken  string `json:"access_token"`
	AccessSecret string `json:"access_secret"`
}

func (c *XCredentials) Complete() bool {
	return c != nil && c.APIKey != "" && c.APISecret != "" && c.AccessToken != "" && c.AccessSecret != ""
}

// InstagramCredentials hold a long-lived Graph API token for a business account.
type InstagramCredentials struct {
	BusinessAccountID string    `json:"business_account_id"`
	AppID             string    `json:"app_id"`
	AppSecret         string    `json:"app_secret"`
	AccessToken       string    `json:"access_token"`
	ExpiresAt         time.Time `json:"expires_at,omitempty"`
}

func (c *InstagramCredentials) Complete() bool {
	return c != nil && c.BusinessAccountID != "" && c.AccessToken != ""
}

// Credentials is the decrypted bundle handed to a publisher. Exactly one of
// the provider sections is set, matching Provider.
type Credentials struct {
	AccountID string                `json:"account_id"`
	Provider  Provider              `json:"provider"`
	X         *XCredentials         `json:"x,omitempty"`
	Instagram *InstagramCredentials `json:"instagram,omitempty"`
}

// ExpiresAt returns the token expiry of the bundle, if the provider has one.
func (c *Credentials) ExpiresAt() *time.Time {
	if c.Instagram != nil && !c.Instagram.ExpiresAt.IsZero() {
		t := c.Instagram.ExpiresAt
		return &t
	}
	return nil
}
