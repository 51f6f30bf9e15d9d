package transfer

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/maheshrc27/autopost/internal/models"
)

// AccountCreation is the body of POST /api/accounts/add. Only the section
// matching Provider is read.
type AccountCreation struct {
	Provider  string                       `json:"provider"`
	Name      string                       `json:"name"`
	Default   bool                         `json:"default"`
	X         *models.XCredentials         `json:"x,omitempty"`
	Instagram *models.InstagramCredentials `json:"instagram,omitempty"`
}

type OperatorClaims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}
