package dto

import "github.com/stablemarket/custody/internal/models"

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type WalletResponse struct {
	Wallet         *models.Wallet `json:"wallet"`
	DepositAddress string         `json:"deposit_address,omitempty"`
}

type DepositAddressResponse struct {
	Address string `json:"address"`
	Network string `json:"network"`
}
